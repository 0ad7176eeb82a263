// Package ledger holds the transaction collection, keeps it mirrored in a
// persistence slot and answers filter and aggregate queries over it.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// DefaultKey is the slot key the collection is stored under.
const DefaultKey = "transactions"

// Options tunes a Store. Zero values select the defaults.
type Options struct {
	Key      string
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

// Store is the single owner of the transaction collection. Every mutation
// serializes the whole collection into the slot before it becomes visible;
// a failed save leaves the in-memory state unchanged.
type Store struct {
	mu       sync.Mutex
	slot     storage.Slot
	key      string
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	items    []core.Transaction
}

// Patch lists the fields an update replaces. Nil fields are kept.
type Patch struct {
	Type        *core.TxType
	Description *string
	Category    *string
	Amount      *core.Money
	Date        *core.Date
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Type == nil && p.Description == nil && p.Category == nil && p.Amount == nil && p.Date == nil
}

func New(slot storage.Slot, opts Options) *Store {
	s := &Store{
		slot:     slot,
		key:      opts.Key,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
		items:    []core.Transaction{},
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(log.FieldComponent, log.ComponentLedger)
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Open creates a store and loads it from the slot.
func Open(ctx context.Context, slot storage.Slot, opts Options) (*Store, error) {
	s := New(slot, opts)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Key returns the slot key the store persists under.
func (s *Store) Key() string {
	return s.key
}

// Load replaces the in-memory collection with the slot's content. Missing or
// unparseable data yields an empty collection; only slot I/O errors are
// returned. Records that fail validation are dropped with a warning.
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.slot.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("load ledger %s: %w", s.key, err)
	}

	items := []core.Transaction{}
	if ok {
		var decoded []core.Transaction
		if err := json.Unmarshal(raw, &decoded); err != nil {
			s.logger.WarnContext(ctx, "Stored ledger is corrupt, starting empty",
				log.FieldOperation, log.OpLoad,
				log.FieldSlotKey, s.key,
				log.FieldError, err)
		} else {
			items = s.sanitize(ctx, decoded)
		}
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "Ledger loaded",
		log.FieldOperation, log.OpLoad,
		log.FieldSlotKey, s.key,
		log.FieldCount, len(items))
	return nil
}

func (s *Store) sanitize(ctx context.Context, in []core.Transaction) []core.Transaction {
	now := s.now()
	seen := make(map[string]struct{}, len(in))
	out := make([]core.Transaction, 0, len(in))
	dropped := 0
	for _, t := range in {
		t.Normalize(now)
		if err := t.Validate(); err != nil {
			dropped++
			continue
		}
		t.ID = s.uniqueID(t.ID, seen)
		out = append(out, t)
	}
	if dropped > 0 {
		s.logger.WarnContext(ctx, "Dropped invalid stored transactions",
			log.FieldSlotKey, s.key,
			"dropped", dropped)
	}
	return out
}

// uniqueID keeps id when it is set and unused, otherwise it draws a new one.
func (s *Store) uniqueID(id string, seen map[string]struct{}) string {
	if _, dup := seen[id]; id == "" || dup {
		id = s.newID()
		for _, taken := seen[id]; taken; _, taken = seen[id] {
			id = s.newID()
		}
	}
	seen[id] = struct{}{}
	return id
}

func (s *Store) idSet() map[string]struct{} {
	seen := make(map[string]struct{}, len(s.items))
	for _, t := range s.items {
		seen[t.ID] = struct{}{}
	}
	return seen
}

// commit persists next and swaps it in. Caller holds s.mu.
func (s *Store) commit(ctx context.Context, next []core.Transaction) error {
	b, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := s.slot.Put(ctx, s.key, b); err != nil {
		return fmt.Errorf("persist ledger %s: %w", s.key, err)
	}
	s.items = next
	return nil
}

func (s *Store) notify(ctx context.Context, ev Event) {
	if s.notifier == nil {
		return
	}
	ev.Key = s.key
	ev.Timestamp = s.now()
	if err := s.notifier.PublishEvent(ctx, ev); err != nil {
		// The mutation is already persisted; a lost event only delays mirrors.
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEvent, ev.Op,
			log.FieldTransactionID, ev.ID,
			log.FieldError, err)
	}
}

// Add stores a new transaction. A missing or already used id is replaced
// with a fresh one; a missing date defaults to today.
func (s *Store) Add(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx.Normalize(s.now())
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	tx.ID = s.uniqueID(tx.ID, s.idSet())
	next := append(slices.Clip(s.items), tx)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return core.Transaction{}, err
	}
	size := len(s.items)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction added",
		log.FieldOperation, log.OpCreate,
		log.FieldTransactionID, tx.ID,
		log.FieldTxType, tx.Type,
		log.FieldAmountCents, tx.Amount.Cents,
		log.FieldCategory, tx.Category)
	s.notify(ctx, Event{Op: EventAdded, ID: tx.ID, Count: 1, Size: size})
	return tx, nil
}

// Update applies p to the transaction with the given id. A miss is a no-op
// reported as found=false. The patched record must still be valid.
func (s *Store) Update(ctx context.Context, id string, p Patch) (core.Transaction, bool, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return core.Transaction{}, false, nil
	}

	tx := s.items[i]
	if p.Type != nil {
		tx.Type = core.CoerceType(string(*p.Type))
	}
	if p.Description != nil {
		tx.Description = *p.Description
	}
	if p.Category != nil {
		tx.Category = *p.Category
	}
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	if p.Date != nil && !p.Date.IsZero() {
		tx.Date = *p.Date
	}
	tx.Normalize(s.now())
	if err := tx.Validate(); err != nil {
		s.mu.Unlock()
		return core.Transaction{}, true, err
	}

	next := slices.Clone(s.items)
	next[i] = tx
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return core.Transaction{}, true, err
	}
	size := len(s.items)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction updated",
		log.FieldOperation, log.OpUpdate,
		log.FieldTransactionID, id)
	s.notify(ctx, Event{Op: EventUpdated, ID: id, Count: 1, Size: size})
	return tx, true, nil
}

// Remove deletes the first transaction with the given id. A miss changes
// nothing and persists nothing.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	next := slices.Delete(slices.Clone(s.items), i, i+1)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return true, err
	}
	size := len(s.items)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction removed",
		log.FieldOperation, log.OpDelete,
		log.FieldTransactionID, id)
	s.notify(ctx, Event{Op: EventRemoved, ID: id, Count: 1, Size: size})
	return true, nil
}

// Clear empties the collection.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	removed := len(s.items)
	if err := s.commit(ctx, []core.Transaction{}); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Ledger cleared",
		log.FieldOperation, log.OpClear,
		log.FieldCount, removed)
	s.notify(ctx, Event{Op: EventCleared, Count: removed, Size: 0})
	return nil
}

// ImportMerge appends every transaction of a JSON array to the collection.
// Records without an id, or whose id is already taken, get a fresh one.
// Nothing is deduplicated. Either all records are merged or none are.
func (s *Store) ImportMerge(ctx context.Context, data []byte) (int, error) {
	recs, err := DecodeTransactions(data, s.now())
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	seen := s.idSet()
	next := slices.Grow(slices.Clip(s.items), len(recs))
	for _, t := range recs {
		t.ID = s.uniqueID(t.ID, seen)
		next = append(next, t)
	}
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	size := len(s.items)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transactions imported",
		log.FieldOperation, log.OpImport,
		log.FieldCount, len(recs))
	s.notify(ctx, Event{Op: EventImported, Count: len(recs), Size: size})
	return len(recs), nil
}

// ImportFrom reads r to the end and merges it. A read error leaves the store untouched.
func (s *Store) ImportFrom(ctx context.Context, r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read import: %w", err)
	}
	return s.ImportMerge(ctx, data)
}

// Export writes the collection as a pretty-printed JSON array.
func (s *Store) Export(w io.Writer) error {
	b, err := json.MarshalIndent(s.All(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.items, func(t core.Transaction) bool { return t.ID == id })
}

// Get returns the transaction with the given id.
func (s *Store) Get(id string) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	return core.Transaction{}, false
}

// All returns a copy of the collection in insertion order.
func (s *Store) All() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Filter returns the transactions matching f, in insertion order.
func (s *Store) Filter(f Filter) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f.Apply(s.items)
}

// Summarize totals the whole collection, ignoring any filter.
func (s *Store) Summarize() core.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Summarize(s.items)
}

// CategoryBreakdown sums expenses per category in first-seen order.
func (s *Store) CategoryBreakdown() []core.CategoryAmount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.ExpenseBreakdown(s.items)
}

// Categories lists the distinct categories in first-seen order.
func (s *Store) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	out := []string{}
	for _, t := range s.items {
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		out = append(out, t.Category)
	}
	return out
}
