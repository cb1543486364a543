package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/skirmish/go/internal/session"
)

// ConnectionManager upgrades websocket connections and hands them to the
// session coordinator
type ConnectionManager struct {
	coordinator *session.Coordinator

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	// Open sockets, admitted or not
	connections map[*Connection]bool
	closing     bool
	mu          sync.RWMutex

	// One count per socket, released when its last pump exits. For an
	// admitted socket that is after its disconnect reached the coordinator.
	pumps sync.WaitGroup
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024, // stateUpdate frames carry every unit
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Game clients connect from arbitrary origins
			return true
		},
	}
}

// withDefaults fills zero fields from DefaultConnectionConfig
func (c ConnectionConfig) withDefaults() ConnectionConfig {
	d := DefaultConnectionConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = d.SendBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = d.CheckOrigin
	}
	return c
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(coordinator *session.Coordinator, config ConnectionConfig) *ConnectionManager {
	config = config.withDefaults()
	return &ConnectionManager{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		connections: make(map[*Connection]bool),
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and asks the
// coordinator for a seat. A refused connection gets its error notification
// flushed and is then closed.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		id:          uuid.New().String(),
		conn:        conn,
		send:        make(chan []byte, cm.config.SendBufferSize),
		manager:     cm,
		connectedAt: time.Now(),
	}
	if !cm.registerConnection(connection) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(cm.config.WriteTimeout),
		)
		conn.Close()
		return nil
	}

	peer, err := cm.coordinator.Admit(connection)
	if err != nil {
		// Only the write side runs: it flushes the error frame, then closes
		go func() {
			defer cm.pumps.Done()
			connection.writePump()
		}()
		connection.Close()

		if !errors.Is(err, session.ErrCapacity) {
			log.Error().Err(err).Str("connection_id", connection.id).Msg("failed to admit connection")
		}
		return nil
	}

	go connection.writePump()
	go func() {
		defer cm.pumps.Done()
		connection.readPump()
	}()

	log.Info().
		Str("connection_id", connection.id).
		Str("identity", peer.Identity).
		Str("remote_addr", conn.RemoteAddr().String()).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection tracks conn and counts its pumps. It refuses once
// CloseAll has run.
func (cm *ConnectionManager) registerConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.closing {
		return false
	}
	cm.connections[conn] = true
	cm.pumps.Add(1)

	log.Debug().
		Str("connection_id", conn.id).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
	return true
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.connections[conn]; ok {
		delete(cm.connections, conn)
		log.Debug().
			Str("connection_id", conn.id).
			Int("total_connections", len(cm.connections)).
			Msg("connection unregistered")
	}
}

// ConnectionCount returns the number of open sockets
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// CloseAll closes every open socket and refuses new ones. Used on shutdown.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	cm.closing = true
	conns := make([]*Connection, 0, len(cm.connections))
	for c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Wait blocks until every socket's pumps have exited or ctx is done. Call it
// after CloseAll.
func (cm *ConnectionManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		cm.pumps.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
