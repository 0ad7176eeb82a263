package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/storage"
	"ledger/internal/storage/file"
	"ledger/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(log.FieldComponent, log.ComponentBackend),
	}
}

// CreateBackend opens the configured slot, connects the optional notifier
// and loads the ledger.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	slot, closeSlot, err := f.createSlot(config)
	if err != nil {
		return nil, err
	}

	var notifier ledger.Notifier
	closeNotifier := func() error { return nil }
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without notifications",
				log.FieldError, err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			notifier = client
			closeNotifier = client.Close
		}
	}

	cleanup := func() error {
		return errors.Join(closeNotifier(), closeSlot())
	}

	store, err := ledger.Open(ctx, slot, ledger.Options{
		Key:      config.LedgerKey,
		Notifier: notifier,
		Logger:   f.logger,
	})
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	f.logger.InfoContext(ctx, "Ledger backend ready",
		"backend", config.Type,
		log.FieldSlotKey, store.Key(),
		log.FieldCount, store.Len(),
		"amqp_enabled", notifier != nil)

	return &BackendResult{
		Store:    store,
		Slot:     slot,
		Notifier: notifier,
		Cleanup:  cleanup,
	}, nil
}

func (f *DefaultFactory) createSlot(config Config) (storage.Slot, CleanupFunc, error) {
	noop := func() error { return nil }
	switch config.Type {
	case MemoryBackend:
		return memory.New(), noop, nil
	case FileBackend:
		s := file.New(config.DataDirectory)
		f.logger.Info("Initialized file backend", "data_directory", s.Dir())
		return s, noop, nil
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
