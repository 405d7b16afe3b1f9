package itemstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/formpal/formpal/internal/schema"
	"github.com/formpal/formpal/internal/store"
)

// brokenStore fails every operation.
type brokenStore struct {
	store.Store
}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func (brokenStore) Set(context.Context, string, []byte) error {
	return errors.New("disk on fire")
}

func TestLoadEmpty(t *testing.T) {
	s := store.NewMemory(nil)
	defer s.Close()

	items, err := New(s, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected empty collection, got %d items", len(items))
	}
}

func TestSaveLoad(t *testing.T) {
	s := store.NewMemory(nil)
	defer s.Close()
	c := New(s, nil)
	ctx := context.Background()

	want := schema.Collection{
		{ID: "qi_2", Title: "Budget", Content: "$5k", CreatedAt: time.Now().UTC()},
		{ID: "qi_1", Title: "Budget range", Content: "$1k-$5k", CreatedAt: time.Now().UTC()},
	}
	if err := c.Save(ctx, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "qi_2" || got[1].Title != "Budget range" {
		t.Errorf("Unexpected items: %#v", got)
	}
}

func TestStoreUnavailable(t *testing.T) {
	c := New(brokenStore{}, nil)
	ctx := context.Background()

	if _, err := c.Load(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Load: expected ErrStoreUnavailable, got %v", err)
	}
	if err := c.Save(ctx, schema.Collection{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Save: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestWatchIgnoresClipboard(t *testing.T) {
	s := store.NewMemory(nil)
	defer s.Close()
	c := New(s, nil)

	fired := make(chan struct{}, 4)
	cancel := c.Watch(func() { fired <- struct{}{} })
	defer cancel()

	ctx := context.Background()
	if err := s.Set(ctx, ClipboardKey, []byte(`"scratch"`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Save(ctx, schema.Collection{}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for items change")
	}

	select {
	case <-fired:
		t.Error("Clipboard write should not fire the items watcher")
	case <-time.After(100 * time.Millisecond):
	}
}
