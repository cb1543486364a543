package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/skirmish/go/internal/session"
	"github.com/mcdev12/skirmish/go/internal/session/events"
	"github.com/mcdev12/skirmish/go/internal/session/gateway"
)

// HealthStatus is the readiness report
type HealthStatus struct {
	Healthy           bool                   `json:"healthy"`
	Phase             session.Phase          `json:"phase"`
	Connections       int                    `json:"connections"`
	Events            events.DispatcherStats `json:"events"`
	DatabaseConnected *bool                  `json:"database_connected,omitempty"`
	NATSConnected     *bool                  `json:"nats_connected,omitempty"`
	Errors            []string               `json:"errors"`
}

// pinger is satisfied by *pgxpool.Pool
type pinger interface {
	Ping(ctx context.Context) error
}

// natsConn is satisfied by *events.JetStreamPublisher
type natsConn interface {
	Connected() bool
}

// HealthChecker reports whether the server and its optional backends are up.
// A nil db or nats means that backend is not configured.
type HealthChecker struct {
	gateway *gateway.Service
	db      pinger
	nats    natsConn
	timeout time.Duration
}

func newHealthChecker(services *Services) *HealthChecker {
	h := &HealthChecker{gateway: services.Gateway, timeout: 2 * time.Second}
	if services.pool != nil {
		h.db = services.pool
	}
	if services.publisher != nil {
		h.nats = services.publisher
	}
	return h
}

// Check pings every configured backend
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:     true,
		Phase:       h.gateway.Coordinator().Snapshot().Phase,
		Connections: h.gateway.ConnectionCount(),
		Events:      h.gateway.EventStats(),
		Errors:      []string{},
	}

	if h.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.db.Ping(pingCtx)
		cancel()

		connected := err == nil
		status.DatabaseConnected = &connected
		if err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
	}

	if h.nats != nil {
		connected := h.nats.Connected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	return status
}

// ServeHTTP writes the readiness report, 503 when unhealthy
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write readiness response")
	}
}
