package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Client is a Bus connected to a relay Server.
type Client struct {
	conn     *websocket.Conn
	origin   string
	handlers *registry
	logger   *log.Logger

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Dial connects to the relay at url (ws://host:port/ws).
// origin tags this context's messages.
func Dial(ctx context.Context, url, origin string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broadcast hub %s: %w", url, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		origin:   origin,
		handlers: newRegistry(logger),
		logger:   logger,
		ctx:      loopCtx,
		cancel:   cancel,
	}

	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// Publish implements Bus.Publish.
func (c *Client) Publish(ctx context.Context, topic string) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	data, err := json.Marshal(Message{Type: topic, Origin: c.origin, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe implements Bus.Subscribe.
func (c *Client) Subscribe(topic string, h Handler) func() {
	return c.handlers.add(topic, h)
}

// Close implements Bus.Close.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
	})
	c.wg.Wait()
	return err
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Printf("Broadcast connection lost: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Printf("Failed to unmarshal message: %v", err)
			continue
		}
		c.handlers.dispatch(msg)
	}
}
