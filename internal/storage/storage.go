package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

const fileExt = ".json"

// AferoStore keeps one file per key on an afero filesystem. Production code
// passes a base-path OS filesystem, tests an in-memory one.
type AferoStore struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
}

// NewAferoStore creates a new AferoStore rooted at dir on fs.
func NewAferoStore(fs afero.Fs, dir string) *AferoStore {
	return &AferoStore{fs: fs, dir: dir}
}

// NewDiskStore creates an AferoStore backed by the OS filesystem under dir.
func NewDiskStore(dir string) (*AferoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return NewAferoStore(afero.NewBasePathFs(afero.NewOsFs(), dir), "/"), nil
}

// path maps a key to a file name. Keys may contain '/', so they are escaped
// into a single path segment.
func (s *AferoStore) path(key string) string {
	return filepath.Join(s.dir, KeyFile(key))
}

// Get reads the file for key.
func (s *AferoStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return data, nil
}

// Set replaces the file for key. The value is written to a temporary file
// first and renamed into place so a crash never leaves a torn value.
func (s *AferoStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	target := s.path(key)
	tmp := target + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, value, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to commit %q: %w", key, err)
	}
	return nil
}

// Delete removes the file for key. Deleting a missing key is not an error.
func (s *AferoStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Close is a no-op; files are closed after every operation.
func (s *AferoStore) Close() error {
	return nil
}
