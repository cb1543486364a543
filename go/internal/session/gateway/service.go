package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/skirmish/go/internal/session"
	"github.com/mcdev12/skirmish/go/internal/session/events"
)

// Service wires the coordinator, its websocket transport and the event
// dispatcher together
type Service struct {
	coordinator       *session.Coordinator
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	dispatcher        *events.Dispatcher
	shutdownTimeout   time.Duration
}

// Config holds configuration for the session gateway
type Config struct {
	Session         session.Config
	Connection      ConnectionConfig
	EventQueueSize  int
	ShutdownTimeout time.Duration // how long Stop waits for sockets to tear down
}

// DefaultConfig returns default configuration for the session gateway
func DefaultConfig() Config {
	return Config{
		Session:         session.DefaultConfig(),
		Connection:      DefaultConnectionConfig(),
		EventQueueSize:  256,
		ShutdownTimeout: 5 * time.Second,
	}
}

// NewService creates the gateway. A nil publisher logs events instead.
func NewService(config Config, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	dispatcher := events.NewDispatcher(publisher, config.EventQueueSize)

	sessionConfig := config.Session
	sessionConfig.Events = dispatcher
	coordinator := session.NewCoordinator(sessionConfig)

	connectionManager := NewConnectionManager(coordinator, config.Connection)
	wsHandler := NewWebSocketHandler(connectionManager, coordinator)

	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	return &Service{
		coordinator:       coordinator,
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
		dispatcher:        dispatcher,
		shutdownTimeout:   shutdownTimeout,
	}
}

// Start runs the event dispatcher until ctx is cancelled, then stops the
// service. The dispatcher outlives ctx so the events emitted while sockets
// are torn down still get published.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting session gateway service")

	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		s.dispatcher.Run(dispatchCtx)
	}()

	<-ctx.Done()

	log.Info().Msg("session gateway service shutting down")
	err := s.Stop()

	stopDispatch()
	<-dispatched

	return err
}

// Stop closes every socket, waits for their teardown to reach the
// coordinator and stops pending timers
func (s *Service) Stop() error {
	s.connectionManager.CloseAll()

	waitCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.connectionManager.Wait(waitCtx); err != nil {
		log.Warn().
			Err(err).
			Int("open_connections", s.connectionManager.ConnectionCount()).
			Msg("timed out waiting for sessions to tear down")
	}

	s.coordinator.Close()
	log.Info().Msg("session gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("session gateway routes registered")
}

// EventStats returns the event dispatcher counters
func (s *Service) EventStats() events.DispatcherStats {
	return s.dispatcher.Stats()
}

// ConnectionCount returns the number of open session sockets
func (s *Service) ConnectionCount() int {
	return s.connectionManager.ConnectionCount()
}

// Coordinator exposes the session coordinator
func (s *Service) Coordinator() *session.Coordinator {
	return s.coordinator
}
