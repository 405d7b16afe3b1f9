package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/formpal/formpal/internal/itemstore"
	"github.com/formpal/formpal/internal/page"
	"github.com/formpal/formpal/internal/repository"
	"github.com/formpal/formpal/internal/store"
)

// countingStore counts writes and can fail them.
type countingStore struct {
	*store.Memory

	mu   sync.Mutex
	sets int
	fail bool
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	c.sets++
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return c.Memory.Set(ctx, key, value)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func testForm() *page.Form {
	return page.NewForm(page.FormSpec{Groups: []page.GroupSpec{
		{Name: page.GroupQuestionAnswers, Fields: []page.FieldSpec{
			{Label: "Why do you want to work here?"},
			{Label: "Expected salary"},
		}},
		{Name: page.GroupCoverLetter, Fields: []page.FieldSpec{
			{Label: "Cover letter"},
		}},
		{Name: "contact", Fields: []page.FieldSpec{
			{Label: "Email"},
		}},
	}})
}

func setupMonitor(t *testing.T) (*Monitor, *page.Form, *repository.Repository, *countingStore) {
	t.Helper()
	mem := store.NewMemory(nil)
	t.Cleanup(func() { _ = mem.Close() })

	cs := &countingStore{Memory: mem}
	repo := repository.New(itemstore.New(cs, nil), nil, nil)
	if _, err := repo.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	form := testForm()
	m := New(form, repo, nil)
	if _, err := m.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	return m, form, repo, cs
}

func TestSetupDeduplicates(t *testing.T) {
	form := testForm()
	m := New(form, repository.New(itemstore.New(store.NewMemory(nil), nil), nil, nil), nil)

	n, err := m.Setup()
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if n != 3 {
		t.Errorf("First Setup attached %d fields, want 3", n)
	}

	for i := 0; i < 3; i++ {
		n, err = m.Setup()
		if err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
		if n != 0 {
			t.Errorf("Repeated Setup attached %d fields, want 0", n)
		}
	}

	field, _ := form.Lookup("Cover letter")
	if got := field.ListenerCount(page.EventChange); got != 1 {
		t.Errorf("Field has %d change listeners, want 1", got)
	}
	email, _ := form.Lookup("Email")
	if got := email.ListenerCount(page.EventChange); got != 0 {
		t.Errorf("Unwatched group got %d listeners", got)
	}
}

func TestSetupAfterRerender(t *testing.T) {
	m, form, _, _ := setupMonitor(t)

	form.Rerender()

	n, err := m.Setup()
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Setup after rerender attached %d, want 3", n)
	}
	if m.Attached() != 3 {
		t.Errorf("Attached = %d, want 3", m.Attached())
	}
}

func TestCommitCreatesItem(t *testing.T) {
	_, form, repo, _ := setupMonitor(t)

	if err := form.Type("Expected salary", "90k"); err != nil {
		t.Fatalf("Type failed: %v", err)
	}

	items := repo.Items()
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].Title != "Expected salary" || items[0].Content != "90k" {
		t.Errorf("Unexpected item %+v", items[0])
	}
}

func TestCommitUpdatesMatchingItem(t *testing.T) {
	_, form, repo, _ := setupMonitor(t)
	ctx := context.Background()

	item, err := repo.Add(ctx, "salary", "80k")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := form.Type("Expected salary", "95k"); err != nil {
		t.Fatalf("Type failed: %v", err)
	}

	items := repo.Items()
	if len(items) != 1 {
		t.Fatalf("Expected update in place, got %d items", len(items))
	}
	if items[0].ID != item.ID || items[0].Content != "95k" {
		t.Errorf("Unexpected item %+v", items[0])
	}
}

func TestIdenticalCapturesWriteOnce(t *testing.T) {
	_, form, repo, cs := setupMonitor(t)

	for i := 0; i < 3; i++ {
		if err := form.Type("Why do you want to work here?", "Mission"); err != nil {
			t.Fatalf("Type failed: %v", err)
		}
	}

	if got := cs.count(); got != 1 {
		t.Errorf("Store written %d times, want 1", got)
	}
	if len(repo.Items()) != 1 {
		t.Errorf("Expected 1 item, got %d", len(repo.Items()))
	}
}

func TestClearedValueKeepsItem(t *testing.T) {
	_, form, repo, cs := setupMonitor(t)

	form.Type("Cover letter", "Dear team")
	writes := cs.count()

	if err := form.Type("Cover letter", "   "); err != nil {
		t.Fatalf("Type failed: %v", err)
	}

	if cs.count() != writes {
		t.Error("Clearing a field wrote to the store")
	}
	items := repo.Items()
	if len(items) != 1 || items[0].Content != "Dear team" {
		t.Errorf("Stored item changed: %v", items)
	}
}

func TestCaptureFailureReported(t *testing.T) {
	mem := store.NewMemory(nil)
	defer mem.Close()
	cs := &countingStore{Memory: mem, fail: true}
	repo := repository.New(itemstore.New(cs, nil), nil, nil)

	var got error
	form := testForm()
	m := New(form, repo, &Config{OnError: func(err error) { got = err }})
	if _, err := m.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	form.Type("Expected salary", "90k")

	if !errors.Is(got, itemstore.ErrStoreUnavailable) {
		t.Errorf("OnError got %v, want ErrStoreUnavailable", got)
	}
	if len(repo.Items()) != 0 {
		t.Error("Failed capture reached the cache")
	}
}

func TestCloseRemovesListeners(t *testing.T) {
	m, form, repo, _ := setupMonitor(t)

	m.Close()
	form.Type("Expected salary", "90k")

	if m.Attached() != 0 {
		t.Errorf("Attached = %d after Close", m.Attached())
	}
	if len(repo.Items()) != 0 {
		t.Error("Closed monitor still captured")
	}
}

func TestExpectedCommitIsNotCaptured(t *testing.T) {
	m, form, repo, cs := setupMonitor(t)

	field, _ := form.Lookup("Expected salary")
	m.Expect(field.ID(), "90k")
	if err := form.Type("Expected salary", "90k"); err != nil {
		t.Fatalf("Type failed: %v", err)
	}
	if cs.count() != 0 || len(repo.Items()) != 0 {
		t.Fatalf("Expected commit was captured: %d writes, items %v", cs.count(), repo.Items())
	}

	// The expectation is spent; the next edit is the user's.
	if err := form.Type("Expected salary", "90k"); err != nil {
		t.Fatalf("Type failed: %v", err)
	}
	if len(repo.Items()) != 1 {
		t.Errorf("Edit after expected commit was not captured: %v", repo.Items())
	}
}

func TestExpectationDoesNotHideDifferentValue(t *testing.T) {
	m, form, repo, _ := setupMonitor(t)

	field, _ := form.Lookup("Expected salary")
	m.Expect(field.ID(), "90k")
	if err := form.Type("Expected salary", "100k"); err != nil {
		t.Fatalf("Type failed: %v", err)
	}
	items := repo.Items()
	if len(items) != 1 || items[0].Content != "100k" {
		t.Errorf("Capture produced %v", items)
	}
}
