package backend

import (
	"context"

	"ledger/internal/ledger"
	"ledger/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Pinger is implemented by slots that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendResult contains the opened store, the slot behind it and a
// cleanup function releasing both.
type BackendResult struct {
	Store    *ledger.Store
	Slot     storage.Slot
	Notifier ledger.Notifier
	Cleanup  CleanupFunc
}

// Ping reports whether the slot is reachable. Slots without a health check
// are always ready.
func (r *BackendResult) Ping(ctx context.Context) error {
	if p, ok := r.Slot.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Slot key the ledger is stored under
	LedgerKey string

	// File backend
	DataDirectory string

	// SQLite backend
	SQLiteDBPath string

	// Optional change notifications
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, FileBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
