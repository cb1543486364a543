package profile

import (
	"errors"
	"time"
)

// DefaultUserID is served when a request names no user
const DefaultUserID int64 = 1

// ErrNotFound is returned when the user has no profile
var ErrNotFound = errors.New("profile not found")

// User is the account summary shown in the lobby
type User struct {
	UserID        int64  `json:"user_id"`
	Nickname      string `json:"nickname"`
	ProfileIconID int32  `json:"profile_icon_id"`
	ProfileCharID int32  `json:"profile_char_id"`
	Level         int32  `json:"level"`
	Exp           int64  `json:"exp"`
	Gold          int64  `json:"gold"`
}

// Record is a user's ranked history
type Record struct {
	UserID         int64     `json:"user_id"`
	LastLoginAt    time.Time `json:"last_login_at"`
	RankMatchCount int32     `json:"rank_match_count"`
	RankWins       int32     `json:"rank_wins"`
	RankLosses     int32     `json:"rank_losses"`
	RankPoint      int32     `json:"rank_point"`
	Tier           string    `json:"tier"`
	GlobalRank     int64     `json:"global_rank"`
}

// RankingEntry is one row of the global ranking
type RankingEntry struct {
	Rank          int64  `json:"rank"`
	Nickname      string `json:"nickname"`
	ProfileIconID int32  `json:"profile_icon_id"`
	RankPoint     int32  `json:"rank_point"`
}

// RankingResponse wraps the ranking list
type RankingResponse struct {
	Success bool           `json:"success"`
	Data    []RankingEntry `json:"data"`
}
