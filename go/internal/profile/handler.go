package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

const (
	defaultRankingLimit = 100
	maxRankingLimit     = 1000
)

// ProfileRepository defines what the handler needs from storage
type ProfileRepository interface {
	GetUser(ctx context.Context, userID int64) (*User, error)
	ListOwnedIcons(ctx context.Context, userID int64) ([]int32, error)
	GetRecord(ctx context.Context, userID int64) (*Record, error)
	ListRanking(ctx context.Context, limit int) ([]RankingEntry, error)
}

// Handler serves the read-only profile endpoints
type Handler struct {
	repo ProfileRepository
}

// NewHandler creates a profile handler
func NewHandler(repo ProfileRepository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes registers the profile routes with an HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/user", h.HandleGetUser)
	mux.HandleFunc("GET /api/user/icons", h.HandleListIcons)
	mux.HandleFunc("GET /api/user/record", h.HandleGetRecord)
	mux.HandleFunc("GET /api/ranking", h.HandleListRanking)
}

// HandleGetUser returns the user summary
func (h *Handler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		writeRepoError(w, err, userID)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleListIcons returns the icon ids the user owns
func (h *Handler) HandleListIcons(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	icons, err := h.repo.ListOwnedIcons(r.Context(), userID)
	if err != nil {
		writeRepoError(w, err, userID)
		return
	}
	if icons == nil {
		icons = []int32{}
	}
	writeJSON(w, http.StatusOK, icons)
}

// HandleGetRecord returns the user's ranked record
func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	record, err := h.repo.GetRecord(r.Context(), userID)
	if err != nil {
		writeRepoError(w, err, userID)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// HandleListRanking returns the global leaderboard
func (h *Handler) HandleListRanking(w http.ResponseWriter, r *http.Request) {
	limit := defaultRankingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRankingLimit {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.repo.ListRanking(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list ranking")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []RankingEntry{}
	}
	writeJSON(w, http.StatusOK, RankingResponse{Success: true, Data: entries})
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return DefaultUserID, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeRepoError(w http.ResponseWriter, err error, userID int64) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	log.Error().Err(err).Int64("user_id", userID).Msg("profile lookup failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
