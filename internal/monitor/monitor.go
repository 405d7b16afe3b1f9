// Package monitor captures committed field edits on the page into the item
// collection.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/formpal/formpal/internal/match"
	"github.com/formpal/formpal/internal/page"
	"github.com/formpal/formpal/internal/repository"
	"github.com/formpal/formpal/internal/schema"
)

// DefaultTimeout bounds one capture's store write.
const DefaultTimeout = 5 * time.Second

// Repository is the part of the item repository the monitor writes through.
type Repository interface {
	Items() schema.Collection
	Add(ctx context.Context, title, content string) (schema.QuestionItem, error)
	Update(ctx context.Context, id string, mutate func(*schema.QuestionItem)) (repository.Outcome, error)
}

// Config holds monitor settings.
type Config struct {
	// Groups lists the field groups to watch (default: page.DefaultGroups)
	Groups []string

	// Timeout bounds each capture write (default: DefaultTimeout)
	Timeout time.Duration

	// Logger for capture activity (default: discard)
	Logger *log.Logger

	// OnError receives capture failures. Optional.
	OnError func(error)
}

// Monitor attaches commit listeners to page fields.
type Monitor struct {
	source  page.Source
	repo    Repository
	groups  []string
	timeout time.Duration
	logger  *log.Logger
	onError func(error)

	mu       sync.Mutex
	attached map[string]func()
	expected map[string]string
}

// New creates a monitor. Call Setup to start observing.
func New(source page.Source, repo Repository, config *Config) *Monitor {
	if config == nil {
		config = &Config{}
	}
	groups := config.Groups
	if len(groups) == 0 {
		groups = page.DefaultGroups
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Monitor{
		source:   source,
		repo:     repo,
		groups:   groups,
		timeout:  timeout,
		logger:   logger,
		onError:  config.OnError,
		attached: make(map[string]func()),
		expected: make(map[string]string),
	}
}

// Setup attaches a commit listener to every watched field that does not have
// one yet and returns how many were attached. Safe to call repeatedly.
func (m *Monitor) Setup() (int, error) {
	groups, err := m.source.ListFieldGroups()
	if err != nil {
		return 0, fmt.Errorf("failed to list field groups: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	present := make(map[string]bool)
	added := 0
	for _, g := range page.Select(groups, m.groups) {
		for _, f := range g.Fields {
			id := f.ID()
			present[id] = true
			if _, ok := m.attached[id]; ok {
				continue
			}
			m.attached[id] = f.Listen(page.EventChange, m.handleCommit)
			added++
		}
	}

	// Fields gone from the page take their listeners with them.
	for id, remove := range m.attached {
		if !present[id] {
			remove()
			delete(m.attached, id)
			delete(m.expected, id)
		}
	}

	if added > 0 {
		m.logger.Printf("Watching %d new fields (%d total)", added, len(m.attached))
	}
	return added, nil
}

// Attached returns the number of fields currently observed.
func (m *Monitor) Attached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attached)
}

// Expect marks value as written into the field by autofill. The next commit
// carrying exactly that value is not captured.
func (m *Monitor) Expect(fieldID, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expected[fieldID] = value
}

// consume reports whether f's commit is the one registered with Expect and
// clears the expectation either way.
func (m *Monitor) consume(f page.Field) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.expected[f.ID()]
	if !ok {
		return false
	}
	delete(m.expected, f.ID())
	return value == f.Value()
}

// Close removes every listener.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, remove := range m.attached {
		remove()
		delete(m.attached, id)
	}
	clear(m.expected)
}

func (m *Monitor) handleCommit(f page.Field) {
	if m.consume(f) {
		return
	}
	decision := match.Capture(f.Label(), f.Value(), m.repo.Items())
	if decision.Action == match.CaptureNone {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	switch decision.Action {
	case match.CaptureCreate:
		item, err := m.repo.Add(ctx, decision.Title, decision.Content)
		if err != nil {
			m.fail(fmt.Errorf("failed to capture %q: %w", f.Label(), err))
			return
		}
		m.logger.Printf("Captured new item %s from %q", item.ID, f.Label())

	case match.CaptureUpdate:
		outcome, err := m.repo.Update(ctx, decision.ItemID, func(item *schema.QuestionItem) {
			item.Content = decision.Content
		})
		if err != nil {
			m.fail(fmt.Errorf("failed to capture %q: %w", f.Label(), err))
			return
		}
		m.logger.Printf("Capture of %q into %s: %s", f.Label(), decision.ItemID, outcome)
	}
}

func (m *Monitor) fail(err error) {
	m.logger.Printf("Error: %v", err)
	if m.onError != nil {
		m.onError(err)
	}
}
