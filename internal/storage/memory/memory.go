package memory

import (
	"context"
	"sync"

	"ledger/internal/storage"
)

// Slot keeps values in process memory. Nothing survives a restart.
type Slot struct {
	mu    sync.Mutex
	items map[string][]byte
}

var _ storage.Slot = (*Slot)(nil)

func New() *Slot {
	return &Slot{items: map[string][]byte{}}
}

// Get returns a copy of the stored value.
func (s *Slot) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Slot) Put(_ context.Context, key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = append([]byte(nil), value...)
	return nil
}
