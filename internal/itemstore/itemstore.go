// Package itemstore reads and writes the question item collection in the
// key-value store and reports when it changes.
package itemstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/formpal/formpal/internal/schema"
	"github.com/formpal/formpal/internal/store"
)

const (
	// ItemsKey holds the full serialized item collection.
	ItemsKey = "questionItems"

	// ClipboardKey belongs to the clipboard scratchpad. It shares the store
	// but is never read or written here.
	ClipboardKey = "clipboardContent"
)

// ErrStoreUnavailable wraps every failure to read or write the store.
var ErrStoreUnavailable = errors.New("item store unavailable")

// Client is the item store client used by a repository.
type Client struct {
	store  store.Store
	logger *log.Logger
}

// New creates a client over s.
// If logger is nil, nothing is logged.
func New(s store.Store, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{store: s, logger: logger}
}

// Load returns the stored collection. An undefined key is an empty collection.
func (c *Client) Load(ctx context.Context) (schema.Collection, error) {
	data, ok, err := c.store.Get(ctx, ItemsKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read items: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return schema.Collection{}, nil
	}

	items, err := schema.DecodeCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

// Save writes the full collection, replacing whatever is stored.
func (c *Client) Save(ctx context.Context, items schema.Collection) error {
	data, err := schema.EncodeCollection(items)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, ItemsKey, data); err != nil {
		return fmt.Errorf("%w: failed to write items: %v", ErrStoreUnavailable, err)
	}
	c.logger.Printf("Saved %d items", len(items))
	return nil
}

// Watch calls fn whenever the items key changes, from any context including
// this one. Changes to other keys are ignored.
func (c *Client) Watch(fn func()) (cancel func()) {
	return c.store.OnChange(func(ev store.ChangeEvent) {
		if ev.Key != ItemsKey {
			return
		}
		fn()
	})
}
