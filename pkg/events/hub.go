// Package events delivers agent-state-change notifications to realtime
// subscribers. Publishers may run on any goroutine: an event is only ever
// handed to a subscriber through its buffered channel, and the subscriber's
// own write loop performs the socket I/O. Slow consumers are dropped.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Event represents a message sent to realtime clients.
type Event struct {
	Type      string    `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans events out to connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Publish sends an event to all clients. Safe to call from any goroutine;
// delivery is best-effort and a client whose buffer is full is removed
// without affecting the others.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.enqueue(event) {
			go h.removeClient(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a connection and returns its client handle. The caller owns
// the serve loop: call Serve on the returned client from the connection's
// handler goroutine.
func (h *Hub) Register(conn Conn) *Client {
	c := &client{
		conn: conn,
		send: make(chan Event, 64),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return &Client{hub: h, inner: c}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Conn is the subset of a websocket connection the hub needs. Narrowed to an
// interface so tests can substitute an in-memory pipe.
type Conn interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Close(status websocket.StatusCode, reason string) error
}

// Client is a registered subscriber.
type Client struct {
	hub   *Hub
	inner *client
}

// Serve drains the client's queue and writes to the connection until the
// context is cancelled, a write fails, or the client is removed. It always
// unregisters the client before returning.
func (c *Client) Serve(ctx context.Context) error {
	defer c.hub.removeClient(c.inner)
	return c.inner.writeLoop(ctx)
}

type client struct {
	conn Conn
	send chan Event
}

func (c *client) enqueue(event Event) bool {
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop(ctx context.Context) error {
	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err = c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

const (
	pingInterval = 20 * time.Second
	pingTimeout  = 5 * time.Second
)

// StartPing keeps a websocket connection alive until ctx is cancelled.
func StartPing(ctx context.Context, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	ticker := time.NewTicker(pingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
				_ = conn.Ping(pingCtx)
				cancel()
			}
		}
	}()
}
