// Package session wires one context together: its repository, its broadcast
// endpoint, its store subscription, and the monitor and executor working on
// its page.
//
// Changes reach a session through two triggers, an ITEMS_UPDATED broadcast
// and a store change on the items key. Triggers only raise a coalescing
// signal; a single goroutine turns signals into Load calls, and Load hands
// each snapshot to the render callback. Nothing on a trigger path calls Load
// directly, so a self-delivered broadcast cannot re-enter the repository.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formpal/formpal/internal/autofill"
	"github.com/formpal/formpal/internal/broadcast"
	"github.com/formpal/formpal/internal/itemstore"
	"github.com/formpal/formpal/internal/monitor"
	"github.com/formpal/formpal/internal/page"
	"github.com/formpal/formpal/internal/repository"
	"github.com/formpal/formpal/internal/schema"
	"github.com/formpal/formpal/internal/store"
)

// DefaultTimeout bounds each store round trip made by the session.
const DefaultTimeout = 5 * time.Second

// Config holds session settings.
type Config struct {
	// ID is the broadcast origin (default: a new UUID)
	ID string

	// Store is the shared key-value store (required)
	Store store.Store

	// Bus is this context's broadcast endpoint, owned by the session. Optional.
	Bus broadcast.Bus

	// Source is the page to fill and observe. Optional.
	Source page.Source

	// Groups is the field group scan order (default: page.DefaultGroups)
	Groups []string

	// Timeout bounds background reloads and captures (default: DefaultTimeout)
	Timeout time.Duration

	// Logger for session activity (default: discard)
	Logger *log.Logger

	// OnRender receives every snapshot the session adopts
	OnRender func(items schema.Collection)

	// OnNotice receives notices raised off the command path, such as
	// failed background reloads and captures
	OnNotice func(Notice)
}

// Session is one running context.
type Session struct {
	id       string
	repo     *repository.Repository
	client   *itemstore.Client
	bus      broadcast.Bus
	monitor  *monitor.Monitor
	executor *autofill.Executor
	timeout  time.Duration
	logger   *log.Logger
	onNotice func(Notice)

	signal chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	cancels []func()
	reloads int
}

// New creates a session. Call Start to begin receiving changes.
func New(config *Config) (*Session, error) {
	if config == nil || config.Store == nil {
		return nil, errors.New("session requires a store")
	}

	id := config.ID
	if id == "" {
		id = uuid.NewString()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	s := &Session{
		id:       id,
		bus:      config.Bus,
		timeout:  timeout,
		logger:   logger,
		onNotice: config.OnNotice,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	s.client = itemstore.New(config.Store, logger)

	var pub repository.Publisher
	if config.Bus != nil {
		pub = config.Bus
	}
	s.repo = repository.New(s.client, pub, &repository.Config{
		Logger:   logger,
		OnRender: config.OnRender,
	})

	if config.Source != nil {
		s.monitor = monitor.New(config.Source, s.repo, &monitor.Config{
			Groups:  config.Groups,
			Timeout: timeout,
			Logger:  logger,
			OnError: func(err error) { s.notify(failureNotice("save", err)) },
		})
		s.executor = autofill.New(config.Source, s.monitor, &autofill.Config{
			Groups: config.Groups,
			Logger: logger,
		})
	}

	return s, nil
}

// ID returns the session's broadcast origin.
func (s *Session) ID() string {
	return s.id
}

// Repository returns the session's repository.
func (s *Session) Repository() *repository.Repository {
	return s.repo
}

// Start loads the collection, subscribes to both triggers and attaches the
// monitor.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.started = true
	s.mu.Unlock()

	if _, err := s.repo.Load(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	var cancels []func()
	if s.bus != nil {
		cancels = append(cancels, s.bus.Subscribe(broadcast.TopicItemsUpdated, func(broadcast.Message) {
			s.trigger()
		}))
	}
	cancels = append(cancels, s.client.Watch(s.trigger))

	s.mu.Lock()
	s.cancels = cancels
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pipeline()

	if s.monitor != nil {
		if _, err := s.monitor.Setup(); err != nil {
			s.logger.Printf("Warning: failed to attach monitor: %v", err)
		}
	}

	s.logger.Printf("Session %s started", s.id)
	return nil
}

// Stop detaches from both triggers, stops the pipeline and closes the
// broadcast endpoint. The store is left open.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	close(s.done)
	s.wg.Wait()

	if s.monitor != nil {
		s.monitor.Close()
	}

	var err error
	if s.bus != nil {
		err = s.bus.Close()
	}
	s.logger.Printf("Session %s stopped", s.id)
	return err
}

// Reloads returns how many background reloads have completed.
func (s *Session) Reloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads
}

// trigger requests a reload. Requests arriving while one is pending collapse
// into it.
func (s *Session) trigger() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Session) pipeline() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			s.reload()
		}
	}
}

func (s *Session) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.repo.Load(ctx); err != nil {
		s.logger.Printf("Warning: reload failed: %v", err)
		s.notify(failureNotice("reload", err))
		return
	}

	s.mu.Lock()
	s.reloads++
	s.mu.Unlock()
}

func (s *Session) notify(n Notice) {
	if s.onNotice != nil {
		s.onNotice(n)
	}
}

// AutofillOne fills the page from the item with the given id.
func (s *Session) AutofillOne(id string) Notice {
	item, ok := s.repo.Get(id)
	if !ok {
		return Notice{}
	}
	if s.executor == nil {
		return Notice{Kind: NoticeWarning, Message: MsgNoMatch}
	}

	result := s.executor.FillItem(item)
	if !result.Filled {
		return Notice{Kind: NoticeWarning, Message: MsgNoMatch}
	}
	return filledNotice(result.Count)
}

// AutofillAllOnLoad fills every field matched by some stored item. It is
// silent when nothing matched.
func (s *Session) AutofillAllOnLoad() Notice {
	if s.executor == nil {
		return Notice{}
	}
	result := s.executor.FillAll(s.repo.Items())
	if !result.Filled {
		return Notice{}
	}
	return filledNotice(result.Count)
}

// Add creates an item.
func (s *Session) Add(ctx context.Context, title, content string) Notice {
	if _, err := s.repo.Add(ctx, title, content); err != nil {
		return failureNotice("save", err)
	}
	return Notice{Kind: NoticeSuccess, Message: MsgSaved}
}

// Update replaces the title and content of the item with the given id.
// A missing item is ignored silently.
func (s *Session) Update(ctx context.Context, id, title, content string) Notice {
	outcome, err := s.repo.Update(ctx, id, func(item *schema.QuestionItem) {
		item.Title = title
		item.Content = content
	})
	if err != nil {
		return failureNotice("save", err)
	}
	if outcome == repository.OutcomeStale {
		return Notice{}
	}
	return Notice{Kind: NoticeSuccess, Message: MsgSaved}
}

// Delete removes the item with the given id once confirm approves.
func (s *Session) Delete(ctx context.Context, id string, confirm repository.ConfirmFunc) Notice {
	outcome, err := s.repo.Delete(ctx, id, confirm)
	if err != nil {
		return failureNotice("delete", err)
	}
	if outcome != repository.OutcomeApplied {
		return Notice{}
	}
	return Notice{Kind: NoticeSuccess, Message: MsgDeleted}
}

// Search filters the cached collection.
func (s *Session) Search(query string) schema.Collection {
	return s.repo.Search(query)
}
