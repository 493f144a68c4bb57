package websocket

import (
	"context"
	"sync"

	"support-chat/pkg/metrics"
)

// subscriptionRequest represents a channel subscription/unsubscription request
type subscriptionRequest struct {
	client    *Client
	channel   string
	subscribe bool
}

// Hub manages websocket client connections and their channel subscriptions.
// Channel names match the realtime channel names: one per conversation scope,
// one per typing topic, plus the admin feed.
type Hub struct {
	mu sync.RWMutex

	// clients maps client ID to client (for cleanup)
	clients map[string]*Client

	// channels maps channel name to set of clients subscribed to it
	channels map[string]map[*Client]struct{}

	register     chan *Client
	unregister   chan *Client
	subscription chan subscriptionRequest
}

func NewHub() *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		channels:     make(map[string]map[*Client]struct{}),
		register:     make(chan *Client, 256),
		unregister:   make(chan *Client, 256),
		subscription: make(chan subscriptionRequest, 512),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case req := <-h.subscription:
			if req.subscribe {
				h.subscribeToChannel(req.client, req.channel)
			} else {
				h.unsubscribeFromChannel(req.client, req.channel)
			}
		}
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe subscribes a client to a channel
func (h *Hub) Subscribe(client *Client, channel string) {
	h.subscription <- subscriptionRequest{client: client, channel: channel, subscribe: true}
}

// Unsubscribe unsubscribes a client from a channel
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.subscription <- subscriptionRequest{client: client, channel: channel, subscribe: false}
}

// Broadcast sends a payload to every client subscribed to a channel.
func (h *Hub) Broadcast(channel string, payload []byte) {
	h.mu.RLock()
	clients := h.channels[channel]
	for c := range clients {
		c.SendMessage(payload)
	}
	h.mu.RUnlock()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of subscribers for a channel
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	metrics.WSConnectionsActive.Inc()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()

	for _, channel := range client.Channels() {
		if subscribers, ok := h.channels[channel]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.channels, channel)
			}
		}
	}

	_, present := h.clients[client.ID]
	delete(h.clients, client.ID)
	if present {
		close(client.Send)
	}
	h.mu.Unlock()

	if present {
		metrics.WSConnectionsActive.Dec()
	}
}

func (h *Hub) subscribeToChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[*Client]struct{})
	}
	h.channels[channel][client] = struct{}{}
	client.addChannel(channel)
}

func (h *Hub) unsubscribeFromChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subscribers, ok := h.channels[channel]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.channels, channel)
		}
	}
	client.removeChannel(channel)
}
