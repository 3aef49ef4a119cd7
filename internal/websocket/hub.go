// Package websocket pushes discovery events to connected browser clients
// over a gorilla/websocket hub.
package websocket

import (
	"context"
	"log/slog"
	"sync"
)

// Message is the wire envelope for one pushed event.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub tracks connected clients and fans broadcast messages out to them. It
// implements the event sink the search core emits into.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With("component", "websocket"),
	}
}

// Run processes client lifecycle and broadcast traffic until the context is
// canceled, then closes every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "total_clients", total)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Emit queues an event for broadcast to every connected client. It never
// blocks the caller; under sustained backpressure the oldest queued message
// is dropped.
func (h *Hub) Emit(event string, data any) {
	msg := Message{Event: event, Data: data}
	select {
	case h.broadcast <- msg:
	default:
		select {
		case <-h.broadcast:
		default:
		}
		select {
		case h.broadcast <- msg:
		default:
		}
		h.logger.Warn("broadcast queue full, dropped oldest message", "event", event)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver pushes one message into every client's send queue. A client whose
// queue is full is too far behind to recover, so it gets dropped.
func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
			h.logger.Warn("dropped slow client")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.logger.Info("hub stopped")
}
