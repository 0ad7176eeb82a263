package storage

import (
	"context"
	"errors"
	"strings"
)

// Slot is a key-value persistence slot holding opaque blobs.
type Slot interface {
	// Get returns the value stored under key. ok is false when nothing
	// was ever stored.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Put replaces the value stored under key.
	Put(ctx context.Context, key string, value []byte) error
}

var ErrInvalidKey = errors.New("invalid slot key")

// ValidateKey rejects empty keys and keys that could escape a directory.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return ErrInvalidKey
	}
	return nil
}
