// Package tablestore provides single-slot persistence for the ratings
// table: one opaque payload per process, mirroring a browser's
// local-storage key.
package tablestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps the table payload in a single JSON file. Writes go
// through a temp file and rename so readers never observe a torn write.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the given file path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("tablestore: file path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("tablestore: create directory %s: %w", dir, err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the slot. A missing file means the slot was never written.
func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("tablestore: read %s: %w", s.path, err)
	}
	return payload, nil
}

// Save atomically replaces the slot contents.
func (s *FileStore) Save(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("tablestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("tablestore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("tablestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("tablestore: replace %s: %w", s.path, err)
	}
	return nil
}
