// Package storage keeps uploaded invoice documents.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zombor/invoice-extractor/internal/apperr"
)

// Storage defines the interface for document storage operations
type Storage interface {
	// Save stores data under name and returns the path to read it back with
	Save(ctx context.Context, name string, data []byte) (string, error)

	// Get retrieves a document by path
	Get(ctx context.Context, path string) ([]byte, error)

	// Delete removes a document
	Delete(ctx context.Context, path string) error
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// resolve keeps every path inside the base directory
func (l *LocalStorage) resolve(path string) (string, error) {
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("%w: document path %q", apperr.ErrInvalidInput, path)
	}
	return filepath.Join(l.basePath, path), nil
}

// Save saves a document to local storage
func (l *LocalStorage) Save(ctx context.Context, name string, data []byte) (string, error) {
	path, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Get retrieves a document from local storage
func (l *LocalStorage) Get(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("document %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a document from local storage
func (l *LocalStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
