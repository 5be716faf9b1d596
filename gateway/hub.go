//go:generate go run go.uber.org/mock/mockgen -source=hub.go -destination=../mocks/mock_notifier.go -package=mocks
package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Notifier pushes a fire-and-forget event to every active session of one
// user. Status changes, ask-for-chunk requests and new messages all travel
// through this.
type Notifier interface {
	NotifyUser(userID int64, event string, payload any)
}

// Notification is the push frame sent outside the request/response cycle.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub tracks the active WebSocket sessions per user. A user may be connected
// from several devices; notifications fan out to all of them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]map[*Client]struct{}
	log      *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[int64]map[*Client]struct{}),
		log:      log,
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.sessions[client.userID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.sessions[client.userID] = clients
	}
	clients[client] = struct{}{}
	h.log.Info("session connected", "user_id", client.userID, "sessions", len(clients))
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.sessions[client.userID]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.sessions, client.userID)
	}
	h.log.Info("session disconnected", "user_id", client.userID)
}

// NotifyUser marshals the event once and queues it on every session of the
// user. A session with a full send buffer is skipped rather than blocked on;
// pushes are best-effort by contract.
func (h *Hub) NotifyUser(userID int64, event string, payload any) {
	frame, err := json.Marshal(Notification{Event: event, Data: payload})
	if err != nil {
		h.log.Error("failed to marshal notification", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.sessions[userID] {
		select {
		case client.send <- frame:
		default:
			h.log.Warn("dropping notification, send buffer full", "user_id", userID, "event", event)
		}
	}
}
