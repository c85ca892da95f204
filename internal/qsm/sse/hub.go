package sse

import (
	"encoding/json"
	"sync"
)

// Event is one server-sent event pushed to a connected client.
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client is a connected SSE subscriber.
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// Hub tracks connected SSE clients and routes events per user. It is the
// in-app notification channel; delivery is best-effort and a full client
// buffer drops the event rather than blocking.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register adds a client connection.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

// Unregister removes a client and closes its event channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
	}
}

// SendToUser delivers an event to every connection of one user. Returns
// true if at least one connection accepted it.
func (h *Hub) SendToUser(userID string, event Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := false
	for _, client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Events <- event:
			delivered = true
		default:
		}
	}
	return delivered
}

// ConnectedUsers returns the number of distinct connected users.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := map[string]bool{}
	for _, c := range h.clients {
		seen[c.UserID] = true
	}
	return len(seen)
}

// NotifyUser marshals payload and sends it as eventType to one user.
func (h *Hub) NotifyUser(userID, eventType string, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return h.SendToUser(userID, Event{EventType: eventType, Data: string(data)})
}
