// Package websocket provides WebSocket connection management and
// property-scoped event broadcasting.
package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// event is a message routed to the subscribers of one property channel.
type event struct {
	propertyID string
	data       []byte
}

// Hub maintains the set of active WebSocket clients and routes events to the
// clients subscribed to each property channel.
//
// The publish channel is a single FIFO drained by Run, so events for a given
// lock reach every subscriber in the order they were published.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound events awaiting fan-out
	publish chan event

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		publish:    make(chan event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run starts the hub's main event loop.
// This should be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", zap.Int("total", total))

		case ev := <-h.publish:
			h.mu.Lock()
			for client := range h.clients {
				if !client.subscribed(ev.propertyID) {
					continue
				}
				select {
				case client.send <- ev.data:
				default:
					// Client send buffer full. Drop the client; it will
					// reconnect and repair via a forced status refresh.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for the subscribers of a property channel.
func (h *Hub) Publish(propertyID string, data []byte) {
	select {
	case h.publish <- event{propertyID: propertyID, data: data}:
	default:
		h.logger.Warn("publish channel full, dropping event",
			zap.String("property_id", propertyID))
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client represents a WebSocket client connection and its channel
// subscriptions.
type Client struct {
	hub    *Hub
	send   chan []byte
	userID string

	subMu      sync.RWMutex
	properties map[string]bool
}

// NewClient creates a new WebSocket client for an authenticated user.
func NewClient(hub *Hub, userID string) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, 256),
		userID:     userID,
		properties: make(map[string]bool),
	}
}

// Send returns the send channel for the client.
func (c *Client) Send() chan []byte {
	return c.send
}

// Enqueue queues a direct message to this client, dropping it if the send
// buffer is full. Must not be called after the client is unregistered.
func (c *Client) Enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

// UserID returns the authenticated user this connection belongs to.
func (c *Client) UserID() string {
	return c.userID
}

// Subscribe adds a property channel to the client. Authorization must have
// been checked before this is called.
func (c *Client) Subscribe(propertyID string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.properties[propertyID] = true
}

// Unsubscribe removes a property channel from the client.
func (c *Client) Unsubscribe(propertyID string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.properties, propertyID)
}

func (c *Client) subscribed(propertyID string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.properties[propertyID]
}
