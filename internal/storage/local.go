package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// LocalStore implements Store on a filesystem.
type LocalStore struct {
	fs afero.Afero
}

// NewLocalStore creates a LocalStore rooted at the given directory. A
// relative root is resolved against the working directory.
func NewLocalStore(root string) (*LocalStore, error) {
	dir, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return NewFsStore(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewFsStore creates a LocalStore on fs, e.g. afero.NewMemMapFs() in tests.
func NewFsStore(fs afero.Fs) *LocalStore {
	return &LocalStore{fs: afero.Afero{Fs: fs}}
}

// abs anchors name at the filesystem root so every backend of afero sees the
// same path for the same name.
func abs(name string) string {
	return path.Join("/", name)
}

// List returns all documents under prefix.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	err := s.fs.Walk("/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "/")
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Get reads a document.
func (s *LocalStore) Get(_ context.Context, name string) ([]byte, error) {
	return s.fs.ReadFile(abs(name))
}

// Put writes a document, creating parent directories.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	p := abs(name)
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	return s.fs.WriteFile(p, data, 0o644)
}
