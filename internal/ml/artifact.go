package ml

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArtifactStore gives read-only access to serialized models by path.
type ArtifactStore interface {
	Open(path string) (io.ReadCloser, error)
}

// FileStore resolves artifact paths relative to a models directory.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) Root() string { return s.root }

func (s *FileStore) Open(path string) (io.ReadCloser, error) {
	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(s.root, path)
	}

	f, err := os.Open(filepath.Clean(full))
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", full, err)
	}
	return f, nil
}
