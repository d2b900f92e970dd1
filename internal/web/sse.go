package web

import (
	"sync"

	"github.com/RevCBH/berth/internal/events"
)

const (
	// historySize is how many recent events a new client is sent first
	historySize = 128

	clientBuffer = 256
)

// Hub fans lifecycle events out to SSE clients and keeps a short
// history so a client connecting mid-batch sees how it came up.
// It runs an event loop in a separate goroutine.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	history []*Event

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Event

	// done signals the Run loop to exit
	done     chan struct{}
	stopOnce sync.Once
}

// Client is one connected event stream, optionally limited to a batch.
type Client struct {
	id     string
	batch  string
	events chan *Event
}

// NewHub creates a new SSE hub.
// Call Run() to start the event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event),
		done:       make(chan struct{}),
	}
}

// NewClient creates a client. An empty batch receives every event.
func NewClient(id, batch string) *Client {
	return &Client{
		id:     id,
		batch:  batch,
		events: make(chan *Event, clientBuffer),
	}
}

func (c *Client) wants(e *Event) bool {
	return c.batch == "" || e.Batch == "" || e.Batch == c.batch
}

// offer queues e without blocking; a full client misses it.
func (c *Client) offer(e *Event) {
	if !c.wants(e) {
		return
	}
	select {
	case c.events <- e:
	default:
	}
}

// Run processes registrations and broadcasts until Stop is called.
// Run it in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.events)
			}
			h.clients = make(map[*Client]struct{})
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			for _, e := range h.history {
				client.offer(e)
			}
			h.clients[client] = struct{}{}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.events)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			h.history = append(h.history, event)
			if len(h.history) > historySize {
				h.history = h.history[len(h.history)-historySize:]
			}
			for client := range h.clients {
				client.offer(event)
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends the event loop and closes all client streams. Safe to call
// more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a client, replaying recent history to it first. It
// returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its stream.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast records e and sends it to every interested client.
// Events broadcast after Stop are discarded.
func (h *Hub) Broadcast(e *Event) {
	select {
	case h.broadcast <- e:
	case <-h.done:
	}
}

// Handler returns an event bus handler that broadcasts every event.
func (h *Hub) Handler() events.Handler {
	return func(e events.Event) {
		h.Broadcast(wireEvent(e))
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// History returns a copy of the retained events, oldest first.
func (h *Hub) History() []*Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*Event(nil), h.history...)
}
