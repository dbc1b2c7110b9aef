package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const localScheme = "file://"

// LocalStore keeps uploads under a base directory on disk.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates the base directory if missing.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

func (l *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	target, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return localScheme + key, nil
}

func (l *LocalStore) Fetch(_ context.Context, location string) ([]byte, error) {
	target, err := l.resolve(location)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Delete ignores files that are already gone.
func (l *LocalStore) Delete(_ context.Context, location string) error {
	target, err := l.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (l *LocalStore) resolve(location string) (string, error) {
	key, ok := strings.CutPrefix(location, localScheme)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLocation, location)
	}
	return l.path(key)
}

// path keeps keys flat inside the base directory.
func (l *LocalStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.basePath, key), nil
}
