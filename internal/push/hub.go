// Package push fans change events out to the live websocket connections
// of the owner they concern. Connections authenticate after connecting
// by sending a token message; unauthenticated connections never receive
// events. Delivery is best-effort and at-most-once: a slow or closed
// connection is skipped, never retried.
package push

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/hyperengineering/roadsync/internal/auth"
	"github.com/hyperengineering/roadsync/internal/types"
)

// TokenValidator checks the credential presented on a connection.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Hub binds live connections to authenticated user identities and
// delivers change events to the connections of a road's owner.
type Hub struct {
	tokens   TokenValidator
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[int64]map[*client]struct{}
}

// NewHub creates a Hub that validates authenticate messages with tokens.
func NewHub(tokens TokenValidator) *Hub {
	return &Hub{
		tokens: tokens,
		upgrader: websocket.Upgrader{
			// The API is token-authenticated; origin checks add nothing.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[int64]map[*client]struct{}),
	}
}

// ServeWS upgrades the request to a websocket connection and runs its
// read loop until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	c := newClient(h, conn)
	slog.Debug("connection opened", "conn", c.id, "remote", r.RemoteAddr)
	go c.writePump()
	c.readPump()
}

// RoadChanged implements store.Notifier. The event is serialized once
// and offered to every open connection bound to the road's owner; a
// connection with a full send queue is skipped.
func (h *Hub) RoadChanged(event string, road types.Road) {
	data, err := json.Marshal(types.RoadEvent{
		Event:   event,
		Payload: types.RoadEventPayload{Road: road},
	})
	if err != nil {
		slog.Error("marshal change event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[road.AuthorID] {
		select {
		case c.send <- data:
		default:
			slog.Debug("push dropped", "conn", c.id, "user", road.AuthorID, "event", event)
		}
	}
}

// ConnectionCount returns the number of authenticated connections for a
// user. Exposed for tests and diagnostics.
func (h *Hub) ConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) register(c *client, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.authed {
		return
	}
	c.authed = true
	c.userID = userID
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	slog.Info("connection authenticated", "conn", c.id, "user", userID)
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !c.authed {
		return
	}
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
}
