// Package worker keeps external mirrors of the ledger up to date.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/sheets"
)

// EventSource delivers ledger change events until ctx is cancelled.
type EventSource interface {
	ConsumeEvents(ctx context.Context, handler amqp.EventHandler) error
}

// MirrorWorker reloads the ledger from its slot and copies it to a mirror,
// on every change event and on a fixed interval.
type MirrorWorker struct {
	store    *ledger.Store
	mirror   sheets.TransactionMirror
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu           sync.Mutex
	lastMirrored time.Time
}

func NewMirrorWorker(store *ledger.Store, mirror sheets.TransactionMirror, interval time.Duration) *MirrorWorker {
	return &MirrorWorker{
		store:    store,
		mirror:   mirror,
		interval: interval,
		logger:   slog.Default().With(log.FieldComponent, log.ComponentWorker),
		now:      time.Now,
	}
}

// Sync reloads the ledger and mirrors it unconditionally.
func (w *MirrorWorker) Sync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked(ctx)
}

func (w *MirrorWorker) syncLocked(ctx context.Context) error {
	started := w.now()
	if err := w.store.Load(ctx); err != nil {
		return fmt.Errorf("reload ledger: %w", err)
	}
	txs := w.store.All()
	if err := w.mirror.Mirror(ctx, txs); err != nil {
		return fmt.Errorf("mirror ledger: %w", err)
	}
	w.lastMirrored = started
	w.logger.InfoContext(ctx, "Ledger mirrored",
		log.FieldOperation, log.OpMirror,
		log.FieldCount, len(txs))
	return nil
}

// HandleEvent mirrors the ledger unless a reload that started after the
// event was persisted already covered it.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev ledger.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !ev.Timestamp.IsZero() && !ev.Timestamp.After(w.lastMirrored) {
		w.logger.DebugContext(ctx, "Event already mirrored, skipping",
			log.FieldEvent, ev.Op,
			"event_time", ev.Timestamp,
			"last_mirrored", w.lastMirrored)
		return nil
	}
	return w.syncLocked(ctx)
}

// Run mirrors once at startup, then on every event from source (when not
// nil) and on every tick until ctx is cancelled.
func (w *MirrorWorker) Run(ctx context.Context, source EventSource) error {
	if err := w.Sync(ctx); err != nil {
		// Startup sync is best effort; the ticker retries.
		w.logger.ErrorContext(ctx, "Startup mirror failed", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if w.interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := w.Sync(gctx); err != nil {
						w.logger.ErrorContext(gctx, "Periodic mirror failed", log.FieldError, err)
					}
				}
			}
		})
	}

	if source != nil {
		g.Go(func() error {
			err := source.ConsumeEvents(gctx, w.HandleEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
