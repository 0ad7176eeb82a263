package storage

import (
	"context"
	"time"
)

const getSlotValue = `-- name: GetSlotValue :one
SELECT value FROM slots WHERE key = ?
`

func (q *Queries) GetSlotValue(ctx context.Context, key string) ([]byte, error) {
	row := q.db.QueryRowContext(ctx, getSlotValue, key)
	var value []byte
	err := row.Scan(&value)
	return value, err
}

const upsertSlot = `-- name: UpsertSlot :exec
INSERT INTO slots (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

type UpsertSlotParams struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

func (q *Queries) UpsertSlot(ctx context.Context, arg UpsertSlotParams) error {
	_, err := q.db.ExecContext(ctx, upsertSlot, arg.Key, arg.Value, arg.UpdatedAt)
	return err
}

const countSlots = `-- name: CountSlots :one
SELECT COUNT(*) FROM slots
`

func (q *Queries) CountSlots(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countSlots)
	var count int64
	err := row.Scan(&count)
	return count, err
}
