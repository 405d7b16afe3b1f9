package broadcast

import (
	"context"
	"io"
	"log"
	"sync"
	"time"
)

// inboxSize bounds how many undelivered messages an endpoint holds.
// Messages beyond it are dropped.
const inboxSize = 64

// LocalHub connects contexts living in the same process.
type LocalHub struct {
	mu        sync.RWMutex
	endpoints map[*Endpoint]struct{}
	logger    *log.Logger
}

// NewLocalHub creates an empty hub.
// If logger is nil, nothing is logged.
func NewLocalHub(logger *log.Logger) *LocalHub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &LocalHub{
		endpoints: make(map[*Endpoint]struct{}),
		logger:    logger,
	}
}

// Endpoint attaches a new context to the hub. origin tags its messages.
func (h *LocalHub) Endpoint(origin string) *Endpoint {
	e := &Endpoint{
		hub:      h,
		origin:   origin,
		handlers: newRegistry(h.logger),
		inbox:    make(chan Message, inboxSize),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	h.endpoints[e] = struct{}{}
	h.mu.Unlock()

	e.wg.Add(1)
	go e.deliverLoop()
	return e
}

// Size returns the number of attached endpoints.
func (h *LocalHub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.endpoints)
}

func (h *LocalHub) publish(msg Message) {
	h.mu.RLock()
	targets := make([]*Endpoint, 0, len(h.endpoints))
	for e := range h.endpoints {
		targets = append(targets, e)
	}
	h.mu.RUnlock()

	for _, e := range targets {
		e.enqueue(msg)
	}
}

func (h *LocalHub) remove(e *Endpoint) {
	h.mu.Lock()
	delete(h.endpoints, e)
	h.mu.Unlock()
}

// Endpoint is one context's Bus on a LocalHub.
type Endpoint struct {
	hub      *LocalHub
	origin   string
	handlers *registry

	inbox chan Message
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// Publish implements Bus.Publish.
func (e *Endpoint) Publish(ctx context.Context, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	e.hub.publish(Message{Type: topic, Origin: e.origin, Timestamp: time.Now()})
	return nil
}

// Subscribe implements Bus.Subscribe.
func (e *Endpoint) Subscribe(topic string, h Handler) func() {
	return e.handlers.add(topic, h)
}

// Close implements Bus.Close.
func (e *Endpoint) Close() error {
	e.once.Do(func() {
		e.hub.remove(e)
		close(e.done)
	})
	e.wg.Wait()
	return nil
}

func (e *Endpoint) enqueue(msg Message) {
	select {
	case <-e.done:
	case e.inbox <- msg:
	default:
		e.hub.logger.Printf("Warning: inbox full for %s, dropping %s", e.origin, msg.Type)
	}
}

func (e *Endpoint) deliverLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		case msg := <-e.inbox:
			e.handlers.dispatch(msg)
		}
	}
}
