package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/skirmish/go/internal/session"
)

// WebSocketHandler serves the session socket and its stats
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	coordinator       *session.Coordinator
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, coordinator *session.Coordinator) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		coordinator:       coordinator,
	}
}

// HandleSessionConnection upgrades the request and joins the paired session
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	// Upgrade writes its own HTTP error response on failure
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("session connection not upgraded")
	}
}

// StatsResponse is the body of the stats endpoint
type StatsResponse struct {
	Connections int              `json:"connections"`
	Session     session.Snapshot `json:"session"`
}

// HandleConnectionStats returns the current session and open socket count
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Connections: h.connectionManager.ConnectionCount(),
		Session:     h.coordinator.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to write stats response")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleSessionConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
