package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20 // chunks arrive base64-encoded inside commands
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one authenticated WebSocket session. Reads and writes run in
// separate pumps; the send channel decouples slow sockets from the handlers.
type Client struct {
	userID      int64
	userAddress string
	conn        *websocket.Conn
	send        chan []byte
	hub         *Hub
	gateway     *Gateway
	log         *slog.Logger
}

// ServeWS upgrades the request and runs the session. The session address comes
// from the handshake; the host core server normally fronts this endpoint and
// has already authenticated the user.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	userID, err := g.directory.ResolveAddress(address)
	if err != nil {
		http.Error(w, "unknown address", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("websocket upgrade failed", "error", err)
		return
	}
	client := &Client{
		userID:      userID,
		userAddress: NormalizeAddress(address),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		hub:         g.hub,
		gateway:     g,
		log:         g.log,
	}
	g.hub.register(client)
	go client.writePump()
	client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error("websocket read failed", "user_id", c.userID, "error", err)
			}
			return
		}
		var command Command
		if err := json.Unmarshal(frame, &command); err != nil {
			c.log.Warn("dropping malformed command frame", "user_id", c.userID, "error", err)
			continue
		}
		response := c.gateway.Dispatch(c.userID, c.userAddress, command)
		c.reply(response)
	}
}

func (c *Client) reply(response Response) {
	frame, err := json.Marshal(response)
	if err != nil {
		c.log.Error("failed to marshal response", "user_id", c.userID, "error", err)
		return
	}
	select {
	case c.send <- frame:
	default:
		c.log.Warn("dropping response, send buffer full", "user_id", c.userID)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
