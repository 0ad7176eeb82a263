// Package file stores each slot as <key>.json inside a data directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"ledger/internal/storage"
)

type Slot struct {
	dir string
}

var _ storage.Slot = (*Slot)(nil)

func New(dir string) *Slot {
	if dir == "" {
		dir = "data"
	}
	return &Slot{dir: dir}
}

func (s *Slot) Dir() string {
	return s.dir
}

// Path returns the file backing key.
func (s *Slot) Path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Slot) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read slot %s: %w", key, err)
	}
	return b, true, nil
}

// Put writes through a temp file and renames it over the previous value,
// so readers never observe a half-written blob.
func (s *Slot) Put(_ context.Context, key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync slot %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close slot %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		return fmt.Errorf("replace slot %s: %w", key, err)
	}
	return nil
}
