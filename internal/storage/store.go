// Package storage reads local model documents and writes the global model.
//
// Three backends share the Store interface: the local filesystem (through
// afero), Amazon S3 and MinIO / S3-compatible servers. Names are slash
// separated and relative to the configured root or prefix.
package storage

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/mirecl/xgbmerge/internal/config"
)

// ErrNotFound is returned when a document does not exist.
//
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Store is a flat namespace of documents.
type Store interface {
	// List returns the names starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get reads a whole document.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put writes a whole document, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
}

// Open creates the Store selected by cfg.
func Open(ctx context.Context, cfg config.Storage) (Store, error) {
	switch cfg.Backend {
	case config.BackendLocal, "":
		return NewLocalStore(cfg.Root)
	case config.BackendS3:
		return NewS3Store(ctx, cfg)
	case config.BackendMinio:
		return NewMinioStore(cfg)
	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
