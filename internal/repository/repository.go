// Package repository holds one context's cached copy of the item collection
// and performs every create, update and delete against it.
//
// The store is authoritative; the cache is read-through on Load and
// write-through on every mutation. A mutation persists the full collection
// first and only then replaces the cache, so a failed write leaves the cache
// exactly as it was. After a successful write the repository broadcasts
// ITEMS_UPDATED so other contexts reload.
//
// Operations on one Repository are serialized. Concurrent writers in other
// contexts are not coordinated: the last full-collection write wins.
package repository

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/formpal/formpal/internal/broadcast"
	"github.com/formpal/formpal/internal/schema"
)

// ItemStore persists the whole collection.
type ItemStore interface {
	Load(ctx context.Context) (schema.Collection, error)
	Save(ctx context.Context, items schema.Collection) error
}

// Publisher announces writes to other contexts.
type Publisher interface {
	Publish(ctx context.Context, topic string) error
}

// Outcome reports what a mutation did when it did not fail.
type Outcome int

const (
	// OutcomeApplied means the change was persisted and broadcast.
	OutcomeApplied Outcome = iota
	// OutcomeUnchanged means the mutation produced no difference; nothing was written.
	OutcomeUnchanged
	// OutcomeStale means the id is not in the snapshot, most likely deleted
	// by another context. Nothing was written.
	OutcomeStale
	// OutcomeDeclined means the user refused the confirmation. Nothing was written.
	OutcomeDeclined
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeStale:
		return "stale"
	case OutcomeDeclined:
		return "declined"
	default:
		return "unknown"
	}
}

// ConfirmFunc asks the user to approve deleting item. It may block.
type ConfirmFunc func(item schema.QuestionItem) bool

// RenderFunc receives every snapshot the repository adopts, in order.
// It runs while the repository is busy and must not call Load or a mutation.
type RenderFunc func(items schema.Collection)

// Config holds optional repository settings.
type Config struct {
	// Logger for repository activity (default: discard)
	Logger *log.Logger

	// Now is the clock used for ids and timestamps (default: time.Now)
	Now func() time.Time

	// OnRender is called with each adopted snapshot
	OnRender RenderFunc
}

// Repository is a per-context cache of the item collection.
type Repository struct {
	store  ItemStore
	bus    Publisher
	ids    *schema.IDGenerator
	now    func() time.Time
	logger *log.Logger
	render RenderFunc

	// opMu serializes Load and mutations
	opMu sync.Mutex

	cacheMu sync.RWMutex
	items   schema.Collection
	loaded  bool
}

// New creates a repository over store. bus may be nil, in which case writes
// are not announced.
func New(store ItemStore, bus Publisher, config *Config) *Repository {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Repository{
		store:  store,
		bus:    bus,
		ids:    schema.NewIDGenerator(now),
		now:    now,
		logger: logger,
		render: config.OnRender,
		items:  schema.Collection{},
	}
}

// Load replaces the cache with the stored collection and renders it.
// On failure the cache is left untouched.
func (r *Repository) Load(ctx context.Context) (schema.Collection, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	items, err := r.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return items.Clone(), nil
}

func (r *Repository) loadLocked(ctx context.Context) (schema.Collection, error) {
	items, err := r.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	r.adopt(items)
	r.logger.Printf("Loaded %d items", len(items))
	return items, nil
}

// ensureLoaded loads once before the first mutation so a fresh context never
// overwrites the store with an empty cache.
func (r *Repository) ensureLoaded(ctx context.Context) error {
	r.cacheMu.RLock()
	loaded := r.loaded
	r.cacheMu.RUnlock()
	if loaded {
		return nil
	}
	_, err := r.loadLocked(ctx)
	return err
}

// adopt replaces the cache and renders. Caller holds opMu.
func (r *Repository) adopt(items schema.Collection) {
	snapshot := items.Clone()

	r.cacheMu.Lock()
	r.items = snapshot
	r.loaded = true
	r.cacheMu.Unlock()

	if r.render != nil {
		r.render(snapshot.Clone())
	}
}

// commit persists next and adopts it. Caller holds opMu.
func (r *Repository) commit(ctx context.Context, next schema.Collection) error {
	if err := r.store.Save(ctx, next); err != nil {
		return err
	}
	r.adopt(next)
	return nil
}

// announce broadcasts a change. Failures are logged, never returned.
func (r *Repository) announce(ctx context.Context) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, broadcast.TopicItemsUpdated); err != nil {
		r.logger.Printf("Warning: failed to broadcast change: %v", err)
	}
}

// Add creates an item at the head of the collection.
func (r *Repository) Add(ctx context.Context, title, content string) (schema.QuestionItem, error) {
	r.opMu.Lock()

	if err := r.ensureLoaded(ctx); err != nil {
		r.opMu.Unlock()
		return schema.QuestionItem{}, fmt.Errorf("failed to add item: %w", err)
	}

	current := r.Items()
	item := schema.QuestionItem{
		ID:        r.ids.Next(current),
		Title:     title,
		Content:   content,
		CreatedAt: r.now().UTC(),
	}

	if err := r.commit(ctx, current.Prepend(item)); err != nil {
		r.opMu.Unlock()
		return schema.QuestionItem{}, fmt.Errorf("failed to add item: %w", err)
	}
	r.opMu.Unlock()

	r.logger.Printf("Added item %s (%s)", item.ID, item.Title)
	r.announce(ctx)
	return item, nil
}

// Update applies mutate to the item with the given id. ID and CreatedAt are
// immutable; changes to them are discarded.
func (r *Repository) Update(ctx context.Context, id string, mutate func(*schema.QuestionItem)) (Outcome, error) {
	r.opMu.Lock()

	if err := r.ensureLoaded(ctx); err != nil {
		r.opMu.Unlock()
		return OutcomeUnchanged, fmt.Errorf("failed to update item: %w", err)
	}

	next := r.Items()
	idx := next.IndexOf(id)
	if idx < 0 {
		r.opMu.Unlock()
		r.logger.Printf("Update skipped, %s no longer present", id)
		return OutcomeStale, nil
	}

	before := next[idx]
	mutate(&next[idx])
	next[idx].ID = before.ID
	next[idx].CreatedAt = before.CreatedAt

	if next[idx] == before {
		r.opMu.Unlock()
		return OutcomeUnchanged, nil
	}

	if err := r.commit(ctx, next); err != nil {
		r.opMu.Unlock()
		return OutcomeUnchanged, fmt.Errorf("failed to update item: %w", err)
	}
	r.opMu.Unlock()

	r.logger.Printf("Updated item %s (%s)", id, next[idx].Title)
	r.announce(ctx)
	return OutcomeApplied, nil
}

// Delete removes the item with the given id after confirm approves it.
// A nil confirm is treated as a refusal.
func (r *Repository) Delete(ctx context.Context, id string, confirm ConfirmFunc) (Outcome, error) {
	item, ok := r.Get(id)
	if !ok {
		return OutcomeStale, nil
	}

	// The confirmation blocks on the user; other operations keep running.
	if confirm == nil || !confirm(item) {
		r.logger.Printf("Delete of %s declined", id)
		return OutcomeDeclined, nil
	}

	r.opMu.Lock()
	current := r.Items()
	if !current.Contains(id) {
		r.opMu.Unlock()
		return OutcomeStale, nil
	}

	if err := r.commit(ctx, current.Without(id)); err != nil {
		r.opMu.Unlock()
		return OutcomeUnchanged, fmt.Errorf("failed to delete item: %w", err)
	}
	r.opMu.Unlock()

	r.logger.Printf("Deleted item %s", id)
	r.announce(ctx)
	return OutcomeApplied, nil
}

// Import appends items whose ids are not present yet, in the given order,
// with one write. It returns how many were added.
func (r *Repository) Import(ctx context.Context, items schema.Collection) (int, error) {
	r.opMu.Lock()

	if err := r.ensureLoaded(ctx); err != nil {
		r.opMu.Unlock()
		return 0, fmt.Errorf("failed to import items: %w", err)
	}

	next := r.Items()
	added := 0
	for _, item := range items {
		if next.Contains(item.ID) {
			continue
		}
		next = append(next, item)
		added++
	}
	if added == 0 {
		r.opMu.Unlock()
		return 0, nil
	}

	if err := r.commit(ctx, next); err != nil {
		r.opMu.Unlock()
		return 0, fmt.Errorf("failed to import items: %w", err)
	}
	r.opMu.Unlock()

	r.logger.Printf("Imported %d items", added)
	r.announce(ctx)
	return added, nil
}

// Items returns a copy of the cached snapshot.
func (r *Repository) Items() schema.Collection {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return r.items.Clone()
}

// Get returns the cached item with the given id.
func (r *Repository) Get(id string) (schema.QuestionItem, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	if idx := r.items.IndexOf(id); idx >= 0 {
		return r.items[idx], true
	}
	return schema.QuestionItem{}, false
}

// Find returns cached items satisfying pred. It never reads the store.
func (r *Repository) Find(pred func(schema.QuestionItem) bool) schema.Collection {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	out := schema.Collection{}
	for _, item := range r.items {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// Search filters the cache by case-insensitive substring over title and
// content. A blank query returns everything.
func (r *Repository) Search(query string) schema.Collection {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return r.Items()
	}
	return r.Find(func(item schema.QuestionItem) bool {
		return strings.Contains(strings.ToLower(item.Title), q) ||
			strings.Contains(strings.ToLower(item.Content), q)
	})
}
