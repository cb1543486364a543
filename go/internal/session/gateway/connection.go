package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Connection is one peer socket. It implements session.Conn.
//
// writePump is the only goroutine writing to the socket and readPump the only
// one reading from it. Everything else talks to the socket through send.
type Connection struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	manager     *ConnectionManager
	connectedAt time.Time

	mu     sync.Mutex
	closed bool
}

// ID returns the connection id used in logs
func (c *Connection) ID() string {
	return c.id
}

// Send queues a frame without blocking. It reports false once the connection
// is closed or its buffer is full.
func (c *Connection) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		log.Warn().
			Str("connection_id", c.id).
			Msg("connection send buffer full, dropping frame")
		return false
	}
}

// Close stops accepting frames. Frames already queued are written before the
// close frame goes out.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	cfg := c.manager.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.manager.unregisterConnection(c)
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				// Channel was closed
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump feeds inbound frames to the coordinator in arrival order and
// reports the disconnect when the socket goes away
func (c *Connection) readPump() {
	cfg := c.manager.config
	defer func() {
		c.manager.coordinator.HandleDisconnect(c)
		c.Close()
		c.conn.Close()
		log.Info().
			Str("connection_id", c.id).
			Dur("connected_for", time.Since(c.connectedAt)).
			Msg("WebSocket connection closed")
	}()

	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected WebSocket close")
			}
			return
		}

		// errors are contained to the frame and already logged
		_ = c.manager.coordinator.HandleMessage(c, message)
		c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}
}
