// Package eventgateway fans the per-worker/per-session event surface
// (worker-stream-*, worker-permission-*, worker-tool-*, worker-status-change,
// terminal-*, swarm-activity) out to connected desktop-shell clients over
// WebSocket. Paired with events.BusSink, which publishes the supervision
// engine's EventSink calls onto the same bus this package subscribes to,
// the two form the production event-delivery path.
package eventgateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ralphswarm/conductor/internal/logging"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// envelope is the wire shape pushed to subscribed clients: a subject (the
// bus subject it arrived on) plus the event's own payload.
type envelope struct {
	Subject string                 `json:"subject"`
	Payload map[string]interface{} `json:"payload"`
}

// controlMessage is the shape of client->server subscribe/unsubscribe requests.
type controlMessage struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
}

// Client is a single WebSocket connection into the event gateway.
type Client struct {
	id            string
	conn          *websocket.Conn
	hub           *Hub
	send          chan []byte
	mu            sync.RWMutex
	subscriptions map[string]bool
	closed        bool
	logger        *logger.Logger
}

func newClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		id:            id,
		conn:          conn,
		hub:           hub,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
		logger:        log.WithFields(zap.String("client_id", id)),
	}
}

// readPump reads subscribe/unsubscribe control messages from the client.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("failed to close websocket connection", zap.Error(err))
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Debug("failed to set read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Debug("invalid control message", zap.Error(err))
			continue
		}
		if msg.SessionID == "" {
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.hub.subscribeSession(c, msg.SessionID)
		case "unsubscribe":
			c.hub.unsubscribeSession(c, msg.SessionID)
		}
	}
}

// writePump delivers queued events to the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("failed to close websocket connection", zap.Error(err))
		}
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("failed to set write deadline", zap.Error(err))
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("failed to write websocket message", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("failed to set write deadline", zap.Error(err))
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) deliver(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping event")
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
