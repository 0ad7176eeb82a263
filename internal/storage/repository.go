package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores slots in a single SQLite table.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var _ Slot = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Get implements Slot
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	value, err := r.queries.GetSlotValue(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get slot %s: %w", key, err)
	}
	return value, true, nil
}

// Put implements Slot
func (r *SQLiteRepository) Put(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := r.queries.UpsertSlot(ctx, UpsertSlotParams{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("put slot %s: %w", key, err)
	}

	slog.DebugContext(ctx, "Slot saved to SQLite", "key", key, "bytes", len(value))
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SlotCount returns the number of stored keys.
func (r *SQLiteRepository) SlotCount(ctx context.Context) (int64, error) {
	n, err := r.queries.CountSlots(ctx)
	if err != nil {
		return 0, fmt.Errorf("count slots: %w", err)
	}
	return n, nil
}
