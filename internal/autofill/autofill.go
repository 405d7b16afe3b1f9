// Package autofill writes stored answers into matching page fields.
//
// A pass scans the configured field groups in order. Every field the match
// engine marks Fill receives the item content followed by synthetic input and
// change events, so page scripts react as if the user typed it. After each
// pass the monitor is re-armed, because filling may reveal fields it has not
// seen.
package autofill

import (
	"fmt"
	"io"
	"log"

	"github.com/formpal/formpal/internal/match"
	"github.com/formpal/formpal/internal/page"
	"github.com/formpal/formpal/internal/schema"
)

// Result summarizes one pass.
type Result struct {
	// Filled is true when at least one field was written.
	Filled bool
	// Count is the number of fields written.
	Count int
}

// Observer is the field monitor the executor cooperates with. Expect is called
// before a written field's events are dispatched so the fill is not captured
// back into the collection; Setup re-attaches observers after a pass.
type Observer interface {
	Expect(fieldID, value string)
	Setup() (int, error)
}

// Config holds executor settings.
type Config struct {
	// Groups is the scan order (default: page.DefaultGroups)
	Groups []string

	// Logger for fill activity (default: discard)
	Logger *log.Logger
}

// Executor fills page fields from stored items.
type Executor struct {
	source   page.Source
	observer Observer
	groups   []string
	logger   *log.Logger
}

// New creates an executor over source. observer may be nil.
func New(source page.Source, observer Observer, config *Config) *Executor {
	if config == nil {
		config = &Config{}
	}
	groups := config.Groups
	if len(groups) == 0 {
		groups = page.DefaultGroups
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Executor{source: source, observer: observer, groups: groups, logger: logger}
}

// FillItem fills every field whose label matches item's title.
func (e *Executor) FillItem(item schema.QuestionItem) Result {
	return e.pass("item "+item.ID, func(label, value string) match.Decision {
		return match.DecideFor(item, label, value)
	})
}

// FillAll fills every field matched by some item in items. Zero matches is
// not an error.
func (e *Executor) FillAll(items schema.Collection) Result {
	return e.pass("all items", func(label, value string) match.Decision {
		return match.Decide(label, value, items)
	})
}

func (e *Executor) pass(what string, decide func(label, value string) match.Decision) Result {
	result, err := e.fill(decide)
	if err != nil {
		e.logger.Printf("Warning: autofill of %s aborted: %v", what, err)
		result = Result{}
	} else if result.Filled {
		e.logger.Printf("Autofill of %s filled %d field(s)", what, result.Count)
	}

	if e.observer != nil {
		if _, err := e.observer.Setup(); err != nil {
			e.logger.Printf("Warning: failed to re-arm monitor: %v", err)
		}
	}
	return result
}

func (e *Executor) fill(decide func(label, value string) match.Decision) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during field access: %v", r)
		}
	}()

	groups, err := e.source.ListFieldGroups()
	if err != nil {
		return Result{}, fmt.Errorf("failed to list field groups: %w", err)
	}

	filled := make(map[string]bool)
	for _, g := range page.Select(groups, e.groups) {
		for _, f := range g.Fields {
			if filled[f.ID()] {
				continue
			}
			d := decide(f.Label(), f.Value())
			if d.Kind != match.Fill {
				continue
			}
			if err := e.write(f, d.Item.Content); err != nil {
				return Result{}, fmt.Errorf("failed to fill %q: %w", f.Label(), err)
			}
			filled[f.ID()] = true
			result.Count++
		}
	}

	result.Filled = result.Count > 0
	return result, nil
}

func (e *Executor) write(f page.Field, value string) error {
	if err := f.SetValue(value); err != nil {
		return err
	}
	if e.observer != nil {
		e.observer.Expect(f.ID(), value)
	}
	if err := f.Dispatch(page.EventInput); err != nil {
		return err
	}
	return f.Dispatch(page.EventChange)
}
