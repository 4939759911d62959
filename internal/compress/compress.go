// Package compress handles compressed model documents. The codec is chosen by
// the document name: ".zst" for zstd, ".lz4" for the lz4 frame format,
// anything else is stored as is.
package compress

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"github.com/mirecl/xgbmerge/internal/storage"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None indicates no compression.
	None Type = iota
	// ZSTD indicates a zstd frame.
	ZSTD
	// LZ4 indicates an lz4 frame.
	LZ4
)

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// ForName returns the compression implied by name.
func ForName(name string) Type {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return ZSTD
	case strings.HasSuffix(name, ".lz4"):
		return LZ4
	default:
		return None
	}
}

// Decode decompresses data read from a document called name.
func Decode(name string, data []byte) ([]byte, error) {
	switch ForName(name) {
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, nil)
		return out, errors.Wrapf(err, "zstd decode %s", name)
	case LZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		return out, errors.Wrapf(err, "lz4 decode %s", name)
	default:
		return data, nil
	}
}

// Encode compresses data for a document called name.
func Encode(name string, data []byte) ([]byte, error) {
	switch ForName(name) {
	case ZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, errors.Wrapf(err, "lz4 encode %s", name)
		}
		if err := w.Close(); err != nil {
			return nil, errors.Wrapf(err, "lz4 encode %s", name)
		}
		return buf.Bytes(), nil
	default:
		return data, nil
	}
}

// Store wraps a storage.Store, compressing and decompressing by name.
type Store struct {
	inner storage.Store
}

// Wrap returns inner with transparent compression.
func Wrap(inner storage.Store) *Store {
	return &Store{inner: inner}
}

// List implements storage.Store.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return Decode(name, data)
}

// Put implements storage.Store.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	encoded, err := Encode(name, data)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, name, encoded)
}
