// Package persist provides best-effort snapshot stores for the relay
// SDK. Persistence is an optimization, never a correctness dependency:
// callers treat every failure as a cache miss.
package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	relay "github.com/relayhq/relay-go"
)

var (
	_ relay.Store = (*FileStore)(nil)
	_ relay.Store = (*RedisStore)(nil)
)

// FileStore keeps one JSON file per storage key inside a directory.
// Writes go through a temp file and rename so readers never observe a
// torn snapshot. Concurrent writers sharing the same key race; last
// writer wins.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	// Storage keys contain ':'; keep filenames portable.
	safe := strings.NewReplacer(":", "_", "/", "_").Replace(key)
	return filepath.Join(s.dir, safe+".json")
}

// Save writes data for key atomically.
func (s *FileStore) Save(_ context.Context, key string, data []byte) error {
	dst := s.path(key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("persist: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("persist: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist: rename temp file: %w", err)
	}
	return nil
}

// Load returns the stored data for key, or (nil, nil) when nothing is
// stored.
func (s *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: read snapshot file: %w", err)
	}
	return data, nil
}
