package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// IDPrefix is the prefix of every generated item id.
const IDPrefix = "qi_"

// ErrCorruptCollection is returned when a stored collection is not a valid
// JSON array of items.
var ErrCorruptCollection = errors.New("corrupt item collection")

// QuestionItem is a stored question/answer pair.
// Title is the match key; Content is what gets filled into the form.
type QuestionItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks if the item has valid field values.
// Empty titles and contents are allowed; they simply never match.
func (q *QuestionItem) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !strings.HasPrefix(q.ID, IDPrefix) {
		return fmt.Errorf("id must start with %q (got %q)", IDPrefix, q.ID)
	}
	if q.CreatedAt.IsZero() {
		return fmt.Errorf("createdAt is required")
	}
	return nil
}

// DisplayTitle returns the title used in lists.
func (q *QuestionItem) DisplayTitle() string {
	if strings.TrimSpace(q.Title) == "" {
		return "Untitled"
	}
	return q.Title
}

// Collection is the ordered item sequence, newest first.
type Collection []QuestionItem

// Clone returns a copy that shares no backing array with c.
func (c Collection) Clone() Collection {
	if c == nil {
		return Collection{}
	}
	out := make(Collection, len(c))
	copy(out, c)
	return out
}

// IndexOf returns the position of the item with the given id, or -1.
func (c Collection) IndexOf(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether an item with the given id is present.
func (c Collection) Contains(id string) bool {
	return c.IndexOf(id) >= 0
}

// Prepend returns a new collection with item at the head.
func (c Collection) Prepend(item QuestionItem) Collection {
	out := make(Collection, 0, len(c)+1)
	out = append(out, item)
	return append(out, c...)
}

// Without returns a new collection with the item removed.
func (c Collection) Without(id string) Collection {
	out := make(Collection, 0, len(c))
	for _, item := range c {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}

// DecodeCollection parses a stored collection value.
// A missing value (nil or empty) is an empty collection.
func DecodeCollection(data []byte) (Collection, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Collection{}, nil
	}

	var items Collection
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCollection, err)
	}
	if items == nil {
		items = Collection{}
	}
	return items, nil
}

// EncodeCollection serializes a collection for storage.
func EncodeCollection(c Collection) ([]byte, error) {
	if c == nil {
		c = Collection{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal collection: %w", err)
	}
	return data, nil
}

// IDGenerator issues qi_<millis> ids. It is safe for concurrent use.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator creates a generator reading the given clock.
// If now is nil, time.Now is used.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns an id not present in existing and greater than any id this
// generator issued before.
func (g *IDGenerator) Next(existing Collection) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.now().UnixMilli()
	if n <= g.last {
		n = g.last + 1
	}
	for existing.Contains(FormatID(n)) {
		n++
	}
	g.last = n
	return FormatID(n)
}

// FormatID renders the numeric part of an id.
func FormatID(n int64) string {
	return IDPrefix + strconv.FormatInt(n, 10)
}
