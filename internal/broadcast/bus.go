// Package broadcast carries payload-free "items changed" notifications
// between contexts.
//
// Delivery is best-effort, at-most-once and unordered. A context that is not
// connected when a message is published never sees it; it catches up on its
// next explicit load. The store, not the message, is the source of truth, so
// a dropped message costs latency, never correctness.
//
// Senders receive their own messages. Handlers must be idempotent.
package broadcast

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"
)

// TopicItemsUpdated announces that the item collection was written.
const TopicItemsUpdated = "ITEMS_UPDATED"

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("broadcast bus is closed")

// Message is the wire form of a notification.
type Message struct {
	Type      string    `json:"type"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives messages for a subscribed topic.
type Handler func(Message)

// Bus is one context's connection to the broadcast channel.
type Bus interface {
	// Publish sends a fire-and-forget notification for topic.
	Publish(ctx context.Context, topic string) error

	// Subscribe registers h for topic. Several handlers may share a topic;
	// each fires independently.
	Subscribe(topic string, h Handler) (unsubscribe func())

	// Close disconnects this context. No further messages are delivered.
	Close() error
}

// registry tracks handlers per topic.
type registry struct {
	mu     sync.RWMutex
	byType map[string]map[int]Handler
	nextID int
	logger *log.Logger
}

func newRegistry(logger *log.Logger) *registry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &registry{byType: make(map[string]map[int]Handler), logger: logger}
}

func (r *registry) add(topic string, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	if r.byType[topic] == nil {
		r.byType[topic] = make(map[int]Handler)
	}
	r.byType[topic][id] = h

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.byType[topic], id)
	}
}

// dispatch calls every handler for msg.Type. A panicking handler does not
// stop the others.
func (r *registry) dispatch(msg Message) {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.byType[msg.Type]))
	for _, h := range r.byType[msg.Type] {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Printf("Handler for %s panicked: %v", msg.Type, rec)
				}
			}()
			h(msg)
		}()
	}
}
