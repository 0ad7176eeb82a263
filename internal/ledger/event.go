package ledger

import (
	"context"
	"time"
)

const (
	EventAdded    = "transaction.added"
	EventUpdated  = "transaction.updated"
	EventRemoved  = "transaction.removed"
	EventCleared  = "ledger.cleared"
	EventImported = "ledger.imported"
)

// Event describes a mutation that has already been persisted.
type Event struct {
	Op        string    `json:"op"`
	Key       string    `json:"key"`
	ID        string    `json:"id,omitempty"`
	Count     int       `json:"count"`
	Size      int       `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives change events after each successful mutation.
type Notifier interface {
	PublishEvent(ctx context.Context, ev Event) error
}
