package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"StayDesk/entity"
	"StayDesk/internal/lib/api/response"
	"StayDesk/internal/lib/sl"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live websocket session. The identity is fixed at
// authentication time and travels with the session, it is never attached
// to the transport object itself.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	identity  entity.Identity
	rooms     map[string]bool // guarded by hub.mu
}

// SessionID returns the session's unique id.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Identity returns the authenticated identity of this session.
func (c *Client) Identity() entity.Identity {
	return c.identity
}

// readPump pumps frames from the connection into the hub's dispatcher.
// It handles ping/pong keepalive and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.hub.handleInbound(c, raw)
	}
}

// writePump pumps events from the send channel to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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

// Authenticator resolves a credential to a verified identity.
type Authenticator interface {
	Authenticate(token string) (*entity.Identity, error)
}

// ServeWs handles websocket upgrade requests. The credential is verified
// after the upgrade so an invalid token gets an auth_error event on the
// socket before it is closed; the client must reconnect with a new one.
func ServeWs(hub *Hub, auth Authenticator, log *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", sl.Err(err))
		return
	}

	token := r.URL.Query().Get("token")
	identity, err := auth.Authenticate(token)
	if err != nil {
		log.Warn("websocket auth failed", sl.Err(err))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(Event{
			Type: entity.EvAuthError,
			Data: response.ErrorCode(response.CodeAuthFailed, "invalid credential"),
		})
		conn.Close()
		return
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: uuid.NewString(),
		identity:  *identity,
		rooms:     make(map[string]bool),
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}
