package push

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// sendQueueSize bounds the per-connection outbound queue. When it fills
// up, further events for that connection are dropped.
const sendQueueSize = 16

// msgAuthenticate is the inbound message type carrying the credential.
const msgAuthenticate = "authenticate"

// envelope is the inbound websocket message format.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// client is one websocket connection. userID and authed are guarded by
// the hub mutex.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	userID int64
	authed bool

	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	return &client{
		id:   ulid.Make().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

// readPump consumes inbound messages until the connection dies. The
// only meaningful message is the authenticate handshake; anything that
// does not decode as an envelope is logged and ignored.
func (c *client) readPump() {
	defer c.shutdown()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			slog.Debug("connection closed", "conn", c.id, "error", err)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Debug("not an event", "conn", c.id, "error", err)
			continue
		}
		if env.Type != msgAuthenticate {
			continue
		}

		var token string
		if err := json.Unmarshal(env.Payload, &token); err != nil {
			slog.Debug("malformed authenticate payload", "conn", c.id, "error", err)
			continue
		}
		claims, err := c.hub.tokens.ValidateToken(token)
		if err != nil {
			// Failed authentication closes the connection without
			// registering it.
			slog.Warn("bad token on push connection", "conn", c.id, "error", err)
			return
		}
		c.hub.register(c, claims.UserID)
	}
}

// writePump drains the send queue onto the wire. A write failure ends
// the pump; the read side notices the dead connection and shuts down.
func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Debug("push write failed", "conn", c.id, "error", err)
			return
		}
	}
}

func (c *client) shutdown() {
	c.hub.detach(c)
	c.closeOnce.Do(func() { close(c.send) })
	c.conn.Close()
}
