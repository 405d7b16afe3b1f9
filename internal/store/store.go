// Package store provides the asynchronous key-value store that holds the
// item collection, with change notifications fired for every write.
//
// Three backends share one contract:
//
//   - Memory: in-process, shared by every context in the same process.
//   - SQLite: a kv table in an embedded SQLite database (WAL mode).
//   - File: one JSON file per key in a directory.
//
// OnChange subscribers see every write made through the store, including the
// writer's own. The SQLite and File backends also watch their files with
// fsnotify and report writes made by other processes, diffed against the last
// value they observed so one write is reported once.
package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// ChangeEvent describes one write to a key.
// A nil OldValue or NewValue means the key was undefined.
type ChangeEvent struct {
	Key      string
	OldValue []byte
	NewValue []byte
}

// ChangeFunc receives change events. It runs on the store's notification
// goroutine and must not block for long.
type ChangeFunc func(ChangeEvent)

// Store is an asynchronous key-value store with change notifications.
type Store interface {
	// Get returns the value for key. ok is false when the key is undefined.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set writes value under key and notifies subscribers.
	Set(ctx context.Context, key string, value []byte) error

	// OnChange registers fn for every subsequent write. The returned
	// function removes the subscription.
	OnChange(fn ChangeFunc) (cancel func())

	// Close releases resources and stops notifications.
	Close() error
}

// notifier fans change events out to subscribers on a single goroutine,
// preserving write order.
type notifier struct {
	mu     sync.Mutex
	subs   map[int]ChangeFunc
	nextID int

	queue chan ChangeEvent
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	logger *log.Logger
}

func newNotifier(logger *log.Logger) *notifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	n := &notifier{
		subs:   make(map[int]ChangeFunc),
		queue:  make(chan ChangeEvent, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

func (n *notifier) subscribe(fn ChangeFunc) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// emit queues an event. Must not be called with a store lock held.
func (n *notifier) emit(ev ChangeEvent) {
	select {
	case n.queue <- ev:
	case <-n.done:
	}
}

func (n *notifier) loop() {
	defer n.wg.Done()

	for {
		select {
		case <-n.done:
			return
		case ev := <-n.queue:
			n.mu.Lock()
			subs := make([]ChangeFunc, 0, len(n.subs))
			for _, fn := range n.subs {
				subs = append(subs, fn)
			}
			n.mu.Unlock()

			for _, fn := range subs {
				n.dispatch(fn, ev)
			}
		}
	}
}

func (n *notifier) dispatch(fn ChangeFunc, ev ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Printf("Change handler panicked for key %s: %v", ev.Key, r)
		}
	}()
	fn(ev)
}

func (n *notifier) close() {
	n.once.Do(func() {
		close(n.done)
	})
	n.wg.Wait()
}

// snapshot remembers the last value observed per key so external changes
// can be diffed and writes are reported once.
type snapshot struct {
	mu   sync.Mutex
	seen map[string][]byte
}

func newSnapshot() *snapshot {
	return &snapshot{seen: make(map[string][]byte)}
}

// record stores value as the last observed value and returns the previous one.
func (s *snapshot) record(key string, value []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.seen[key]
	if value == nil {
		delete(s.seen, key)
	} else {
		s.seen[key] = cloneBytes(value)
	}
	return old
}

// diff compares current against the last observed values, records current,
// and returns one event per key that changed.
func (s *snapshot) diff(current map[string][]byte) []ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []ChangeEvent
	for key, value := range current {
		old, ok := s.seen[key]
		if ok && bytes.Equal(old, value) {
			continue
		}
		events = append(events, ChangeEvent{Key: key, OldValue: old, NewValue: cloneBytes(value)})
		s.seen[key] = cloneBytes(value)
	}
	for key, old := range s.seen {
		if _, ok := current[key]; !ok {
			events = append(events, ChangeEvent{Key: key, OldValue: old})
			delete(s.seen, key)
		}
	}
	return events
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
