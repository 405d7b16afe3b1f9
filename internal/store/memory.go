package store

import (
	"context"
	"log"
	"sync"
)

// Memory is an in-process Store. Every context in a process that shares one
// Memory sees the others' writes through OnChange.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool

	notify *notifier
}

// NewMemory creates an empty in-memory store.
// If logger is nil, handler panics are discarded silently.
func NewMemory(logger *log.Logger) *Memory {
	return &Memory{
		values: make(map[string][]byte),
		notify: newNotifier(logger),
	}
}

// Get implements Store.Get.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	value, ok := m.values[key]
	return cloneBytes(value), ok, nil
}

// Set implements Store.Set.
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	old := m.values[key]
	m.values[key] = cloneBytes(value)
	m.mu.Unlock()

	m.notify.emit(ChangeEvent{Key: key, OldValue: old, NewValue: cloneBytes(value)})
	return nil
}

// OnChange implements Store.OnChange.
func (m *Memory) OnChange(fn ChangeFunc) func() {
	return m.notify.subscribe(fn)
}

// Close implements Store.Close.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.notify.close()
	return nil
}
