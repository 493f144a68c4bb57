package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one websocket connection. ActorID is the conversation actor
// behind the connection: a user id or an anonymous session id.
type Client struct {
	ID      string
	ActorID string
	IsAdmin bool
	Conn    *websocket.Conn
	Send    chan []byte

	channels map[string]bool
	mu       sync.RWMutex // protects channels map and conn writes
}

func NewClient(conn *websocket.Conn, actorID string, isAdmin bool) *Client {
	return &Client{
		ID:       uuid.New().String(),
		ActorID:  actorID,
		IsAdmin:  isAdmin,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		channels: make(map[string]bool),
	}
}

func (c *Client) addChannel(channel string) {
	c.mu.Lock()
	c.channels[channel] = true
	c.mu.Unlock()
}

func (c *Client) removeChannel(channel string) {
	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()
}

// IsSubscribed checks if client is subscribed to a channel
func (c *Client) IsSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

// Channels returns a copy of all subscribed channel names
func (c *Client) Channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	return channels
}

// WriteLoop handles outbound messages from the Send channel
func (c *Client) WriteLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case msg, ok := <-c.Send:
			if !ok {
				c.close()
				return
			}
			c.mu.Lock()
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.Conn.WriteMessage(websocket.TextMessage, msg)
			c.mu.Unlock()
		case <-ticker.C:
			c.mu.Lock()
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.Conn.WriteMessage(websocket.PingMessage, []byte("ping"))
			c.mu.Unlock()
		}
	}
}

func (c *Client) close() {
	c.mu.Lock()
	_ = c.Conn.Close()
	c.mu.Unlock()
}

// SendMessage sends a message to the client's Send channel (non-blocking)
func (c *Client) SendMessage(msg []byte) {
	select {
	case c.Send <- msg:
	default:
		// Channel full, message dropped
	}
}
