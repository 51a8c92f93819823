package ledger

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for export artifact storage
type Storage interface {
	// Save saves an artifact and returns the path/filename
	Save(filename string, data []byte) (string, error)

	// Get retrieves an artifact by filename
	Get(filename string) ([]byte, error)
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save writes an artifact to local storage, overwriting a same-day export.
// The filename is reduced to its base name so writes stay inside basePath.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	name := filepath.Base(filename)
	path := filepath.Join(l.basePath, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Get retrieves an artifact from local storage
func (l *LocalStorage) Get(filename string) ([]byte, error) {
	fullPath := filepath.Join(l.basePath, filepath.Base(filename))
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}
