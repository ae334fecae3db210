package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore keeps attachment bytes on local disk under a flat directory.
// Stored names are generated server-side; client-supplied names never touch
// the filesystem.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create file store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes data under a fresh generated name, preserving the original
// extension, and returns the stored name.
func (f *FileStore) Save(originalName string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(f.dir, name), data, 0o640); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return name, nil
}

// Read returns the stored bytes. The name must be one returned by Save.
func (f *FileStore) Read(name string) ([]byte, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("file %q: %w", name, ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Delete removes the stored bytes. Deleting a missing file is not an error.
func (f *FileStore) Delete(name string) error {
	if name != filepath.Base(name) {
		return fmt.Errorf("file %q: %w", name, ErrNotFound)
	}
	if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}
