package matchqueue

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// StartDelay is how far ahead of the status response a match starts
	StartDelay = 3 * time.Second

	maxBodyBytes = 16 * 1024

	placeholderOpponent = "user-1"
	placeholderRoom     = "room-abc"
	endMessage          = "Match end processed."
)

// JoinResponse answers a queue join
type JoinResponse struct {
	Matched bool `json:"matched"`
}

// StatusResponse reports the pairing for a queued player. StartAt is unix
// seconds as a string.
type StatusResponse struct {
	Matched    bool   `json:"matched"`
	OpponentID string `json:"opponentId"`
	RoomID     string `json:"roomId"`
	StartAt    string `json:"start_at"`
}

// EndResponse acknowledges a finished match
type EndResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Handler serves the placeholder match queue. It never pairs anyone: joins
// are acknowledged, status always reports a fixed opponent and room.
type Handler struct {
	clock clockwork.Clock
}

// NewHandler creates a match queue handler. A nil clock uses real time.
func NewHandler(clock clockwork.Clock) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{clock: clock}
}

// RegisterRoutes registers the match queue routes with an HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/match/join", h.HandleJoin)
	mux.HandleFunc("GET /api/match/status", h.HandleStatus)
	mux.HandleFunc("POST /api/match/end", h.HandleEnd)
}

// HandleJoin logs the join request and reports no match yet
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	log.Info().RawJSON("body", body).Msg("match queue join requested")
	writeJSON(w, JoinResponse{Matched: false})
}

// HandleStatus logs the query and reports a match starting shortly
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	log.Info().
		Interface("query", r.URL.Query()).
		Msg("match queue status requested")

	startAt := h.clock.Now().Add(StartDelay).Unix()
	writeJSON(w, StatusResponse{
		Matched:    true,
		OpponentID: placeholderOpponent,
		RoomID:     placeholderRoom,
		StartAt:    strconv.FormatInt(startAt, 10),
	})
}

// HandleEnd logs the match result and acknowledges it
func (h *Handler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	log.Info().RawJSON("body", body).Msg("match end reported")
	writeJSON(w, EndResponse{Success: true, Message: endMessage})
}

// readJSONBody returns the request body, or {} when empty. Anything that is
// not JSON gets a 400.
func readJSONBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	if len(body) == 0 {
		return []byte("{}"), true
	}
	if !json.Valid(body) {
		http.Error(w, "request body must be JSON", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
