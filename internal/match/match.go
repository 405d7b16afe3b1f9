// Package match decides which stored item fills which form field, and how a
// field edit is captured back into the collection.
//
// Everything here is pure: no I/O, no clock, no mutation of inputs.
//
// The rule is symmetric, case-insensitive substring containment. It is
// deliberately loose: a short title such as "Fee" matches both
// "Fee structure for project" and "Referral fee". When several items match a
// label the first one in collection order wins, never the longest or the
// closest.
package match

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/formpal/formpal/internal/schema"
)

// normalize prepares text for comparison.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// Matches reports whether a and b match: equal, or either contains the other,
// ignoring case and surrounding space. Blank text never matches.
func Matches(a, b string) bool {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// SelectItem returns the first item, in collection order, whose title
// matches label.
func SelectItem(label string, items schema.Collection) (schema.QuestionItem, bool) {
	for _, item := range items {
		if Matches(item.Title, label) {
			return item, true
		}
	}
	return schema.QuestionItem{}, false
}

// Kind is the outcome of evaluating one field.
type Kind int

const (
	// NoMatch means no item applies to the field.
	NoMatch Kind = iota
	// Fill means the field should receive Decision.Item.Content.
	Fill
	// AlreadyFilled means the field already holds the item's content.
	AlreadyFilled
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case NoMatch:
		return "no_match"
	case Fill:
		return "fill"
	case AlreadyFilled:
		return "already_filled"
	default:
		return "unknown"
	}
}

// Decision is the transient result for one (label, value) pair.
type Decision struct {
	Kind Kind
	Item schema.QuestionItem
}

// Decide picks the item for a field from the whole collection.
func Decide(label, value string, items schema.Collection) Decision {
	item, ok := SelectItem(label, items)
	if !ok {
		return Decision{Kind: NoMatch}
	}
	return decideValue(item, value)
}

// DecideFor evaluates a field against a single requested item.
func DecideFor(item schema.QuestionItem, label, value string) Decision {
	if !Matches(item.Title, label) {
		return Decision{Kind: NoMatch}
	}
	return decideValue(item, value)
}

func decideValue(item schema.QuestionItem, value string) Decision {
	if value == item.Content {
		return Decision{Kind: AlreadyFilled, Item: item}
	}
	return Decision{Kind: Fill, Item: item}
}

// CaptureAction says what a committed field edit does to the collection.
type CaptureAction int

const (
	// CaptureNone leaves the collection alone.
	CaptureNone CaptureAction = iota
	// CaptureCreate adds a new item titled with the field label.
	CaptureCreate
	// CaptureUpdate replaces the content of an existing item.
	CaptureUpdate
)

// String returns a human-readable representation of the action.
func (a CaptureAction) String() string {
	switch a {
	case CaptureNone:
		return "none"
	case CaptureCreate:
		return "create"
	case CaptureUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// CaptureDecision is the result of the capture rule.
type CaptureDecision struct {
	Action  CaptureAction
	ItemID  string // set for CaptureUpdate
	Title   string // set for CaptureCreate
	Content string
}

// Capture applies the capture rule to a committed field value.
//
// Blank labels and blank values never capture, so clearing a field does not
// touch the stored item. A matching item is updated in place only when its
// content differs; otherwise a new item is created.
func Capture(label, value string, items schema.Collection) CaptureDecision {
	if strings.TrimSpace(label) == "" || strings.TrimSpace(value) == "" {
		return CaptureDecision{Action: CaptureNone}
	}

	if item, ok := SelectItem(label, items); ok {
		if item.Content == value {
			return CaptureDecision{Action: CaptureNone}
		}
		return CaptureDecision{Action: CaptureUpdate, ItemID: item.ID, Content: value}
	}

	return CaptureDecision{Action: CaptureCreate, Title: strings.TrimSpace(label), Content: value}
}
