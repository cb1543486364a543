package profile

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Schema creates the profile tables
//
//go:embed schema.sql
var Schema string

const (
	getUserSQL = `
		SELECT user_id, nickname, profile_icon_id, profile_char_id, level, exp, gold
		FROM users
		WHERE user_id = $1`

	listOwnedIconsSQL = `
		SELECT icon_id
		FROM user_icons
		WHERE user_id = $1
		ORDER BY icon_id`

	getRecordSQL = `
		SELECT user_id, last_login_at, rank_match_count, rank_wins, rank_losses,
		       rank_point, tier, global_rank
		FROM (
			SELECT r.*, RANK() OVER (ORDER BY r.rank_point DESC) AS global_rank
			FROM user_records r
		) ranked
		WHERE user_id = $1`

	listRankingSQL = `
		SELECT RANK() OVER (ORDER BY r.rank_point DESC) AS rank,
		       u.nickname, u.profile_icon_id, r.rank_point
		FROM user_records r
		JOIN users u ON u.user_id = r.user_id
		ORDER BY r.rank_point DESC, u.user_id
		LIMIT $1`
)

// Querier is the subset of pgxpool.Pool the repository uses
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository reads profiles from Postgres
type PostgresRepository struct {
	db Querier
}

// NewPostgresRepository creates a repository over a pool or connection
func NewPostgresRepository(db Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetUser retrieves a user by ID
func (r *PostgresRepository) GetUser(ctx context.Context, userID int64) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, getUserSQL, userID).Scan(
		&u.UserID, &u.Nickname, &u.ProfileIconID, &u.ProfileCharID, &u.Level, &u.Exp, &u.Gold,
	)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get user")
	}
	return &u, nil
}

// ListOwnedIcons returns the icon ids the user owns
func (r *PostgresRepository) ListOwnedIcons(ctx context.Context, userID int64) ([]int32, error) {
	rows, err := r.db.Query(ctx, listOwnedIconsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list icons: %w", err)
	}

	icons, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	if err != nil {
		return nil, fmt.Errorf("failed to scan icons: %w", err)
	}
	return icons, nil
}

// GetRecord retrieves a user's ranked record with their global position
func (r *PostgresRepository) GetRecord(ctx context.Context, userID int64) (*Record, error) {
	var rec Record
	err := r.db.QueryRow(ctx, getRecordSQL, userID).Scan(
		&rec.UserID, &rec.LastLoginAt, &rec.RankMatchCount, &rec.RankWins, &rec.RankLosses,
		&rec.RankPoint, &rec.Tier, &rec.GlobalRank,
	)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get record")
	}
	return &rec, nil
}

// ListRanking returns the top entries of the global ranking
func (r *PostgresRepository) ListRanking(ctx context.Context, limit int) ([]RankingEntry, error) {
	rows, err := r.db.Query(ctx, listRankingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranking: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RankingEntry, error) {
		var e RankingEntry
		err := row.Scan(&e.Rank, &e.Nickname, &e.ProfileIconID, &e.RankPoint)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan ranking: %w", err)
	}
	return entries, nil
}

func wrapNotFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
