package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"ledger/internal/ledger"
)

var errMissingOp = errors.New("event message without op")

// EventMessage carries a ledger change notification. It only names the
// change; consumers reload the ledger from its slot to see the data.
type EventMessage struct {
	Op        string    `json:"op"`
	Key       string    `json:"key"`
	ID        string    `json:"id,omitempty"`
	Count     int       `json:"count"`
	Size      int       `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEventMessage builds a message from ev, stamping it now when ev has no timestamp.
func NewEventMessage(ev ledger.Event) *EventMessage {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &EventMessage{
		Op:        ev.Op,
		Key:       ev.Key,
		ID:        ev.ID,
		Count:     ev.Count,
		Size:      ev.Size,
		Timestamp: ts,
	}
}

// Event converts the message back to a ledger event.
func (m *EventMessage) Event() ledger.Event {
	return ledger.Event{
		Op:        m.Op,
		Key:       m.Key,
		ID:        m.ID,
		Count:     m.Count,
		Size:      m.Size,
		Timestamp: m.Timestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON decodes a message and rejects messages without an op.
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Op == "" {
		return nil, errMissingOp
	}
	return &msg, nil
}
