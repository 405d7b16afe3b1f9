// Package page describes the host page the autofill engine works against:
// named groups of labelled text fields that can be read, written, notified
// and observed.
//
// The engine only sees the Source, Group and Field abstractions. Form is a
// synthetic implementation loaded from YAML, used by the CLI and tests.
package page

import "errors"

// Field group names scanned by the engine.
const (
	GroupQuestionAnswers = "question answers"
	GroupCoverLetter     = "cover letter"
)

// DefaultGroups is the scan order used when none is configured.
var DefaultGroups = []string{GroupQuestionAnswers, GroupCoverLetter}

// Events a field can dispatch or listen for.
const (
	// EventInput fires on each edit.
	EventInput = "input"
	// EventChange fires when an edit is committed.
	EventChange = "change"
)

// ErrDetached is returned when a field instance no longer belongs to the
// rendered page.
var ErrDetached = errors.New("field detached from page")

// Listener observes events on a field.
type Listener func(f Field)

// Field is one labelled text input on the host page.
type Field interface {
	// ID identifies this field instance. A re-rendered field gets a new ID.
	ID() string
	Label() string
	Value() string
	SetValue(v string) error
	// Dispatch delivers event to the field's listeners synchronously.
	Dispatch(event string) error
	// Listen registers fn for event and returns a function removing it.
	Listen(event string, fn Listener) (remove func())
}

// Group is a named set of fields in page order.
type Group struct {
	Name   string
	Fields []Field
}

// Source enumerates the fields currently on the page.
type Source interface {
	ListFieldGroups() ([]Group, error)
}

// Select returns the groups named in order, skipping absent ones.
func Select(groups []Group, order []string) []Group {
	byName := make(map[string]Group, len(groups))
	for _, g := range groups {
		if _, dup := byName[g.Name]; !dup {
			byName[g.Name] = g
		}
	}

	var out []Group
	for _, name := range order {
		if g, ok := byName[name]; ok {
			out = append(out, g)
		}
	}
	return out
}
