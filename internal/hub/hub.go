// ABOUTME: Hub tracking live WebSocket connections and fanning out relay messages
// ABOUTME: Broadcast is best-effort: closed or backed-up clients are skipped silently

package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is the JSON envelope delivered to every live connection. The
// client filters by ID; the hub does not route per-connection.
type Message struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Hub maintains the set of live connections and broadcasts messages to
// all of them. All methods are safe for concurrent use.
type Hub struct {
	clients map[*Client]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "hub"),
	}
}

// Add registers a newly-opened connection for future broadcasts.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	h.logger.Info("client connected", "total_clients", len(h.clients))
}

// Remove drops a connection from the broadcast set and closes its send
// queue. Removing an absent or already-removed client is a no-op.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, exists := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	if exists {
		c.close()
		h.logger.Info("client disconnected", "total_clients", total)
	}
}

// Broadcast sends msg to every live connection. Delivery is at-most-once
// and fire-and-forget: clients that are closed or whose send buffer is
// full are skipped without failing the broadcast.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if c.trySend(data) {
			delivered++
		}
	}

	h.logger.Debug("broadcast delivered",
		"request_id", msg.ID,
		"delivered", delivered,
		"clients", len(clients),
	)
}

// Count returns the number of currently-registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
