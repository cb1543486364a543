package profile

import (
	"context"

	"github.com/jonboulle/clockwork"
)

// StaticRepository serves fixed demo data for DefaultUserID. It backs the
// lobby when no profile database is configured.
type StaticRepository struct {
	clock clockwork.Clock
}

// NewStaticRepository creates a static repository. A nil clock uses real time.
func NewStaticRepository(clock clockwork.Clock) *StaticRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StaticRepository{clock: clock}
}

// GetUser returns the demo user
func (r *StaticRepository) GetUser(ctx context.Context, userID int64) (*User, error) {
	if userID != DefaultUserID {
		return nil, ErrNotFound
	}
	return &User{
		UserID:        DefaultUserID,
		Nickname:      "TestUser",
		ProfileIconID: 1,
		ProfileCharID: 1,
		Level:         1,
		Exp:           0,
		Gold:          1000,
	}, nil
}

// ListOwnedIcons returns the demo user's icons
func (r *StaticRepository) ListOwnedIcons(ctx context.Context, userID int64) ([]int32, error) {
	if userID != DefaultUserID {
		return nil, ErrNotFound
	}
	return []int32{1, 2, 3}, nil
}

// GetRecord returns the demo record, last logged in now
func (r *StaticRepository) GetRecord(ctx context.Context, userID int64) (*Record, error) {
	if userID != DefaultUserID {
		return nil, ErrNotFound
	}
	return &Record{
		UserID:         DefaultUserID,
		LastLoginAt:    r.clock.Now().UTC(),
		RankMatchCount: 10,
		RankWins:       6,
		RankLosses:     4,
		RankPoint:      1200,
		Tier:           "Bronze",
		GlobalRank:     123,
	}, nil
}

// ListRanking returns the demo leaderboard
func (r *StaticRepository) ListRanking(ctx context.Context, limit int) ([]RankingEntry, error) {
	entries := []RankingEntry{
		{Rank: 1, Nickname: "Alice", ProfileIconID: 1, RankPoint: 1500},
		{Rank: 2, Nickname: "Bob", ProfileIconID: 2, RankPoint: 1400},
		{Rank: 3, Nickname: "Charlie", ProfileIconID: 3, RankPoint: 1300},
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}
