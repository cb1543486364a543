package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/skirmish/go/internal/config"
	"github.com/mcdev12/skirmish/go/internal/profile"
)

// seedProfile is one demo account with its ranked record
type seedProfile struct {
	user   profile.User
	icons  []int32
	record profile.Record
}

// execer is the part of pgx.Tx the upsert needs
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// txRunner runs fn inside one transaction, committing when it returns nil
type txRunner func(ctx context.Context, fn func(execer) error) error

// seedResult counts what happened to each profile
type seedResult struct {
	inserted int
	skipped  int
	errs     int
}

func demoProfiles(now time.Time) []seedProfile {
	static := profile.NewStaticRepository(nil)
	ctx := context.Background()

	user, _ := static.GetUser(ctx, profile.DefaultUserID)
	icons, _ := static.ListOwnedIcons(ctx, profile.DefaultUserID)
	record, _ := static.GetRecord(ctx, profile.DefaultUserID)

	profiles := []seedProfile{{user: *user, icons: icons, record: *record}}

	ranking, _ := static.ListRanking(ctx, 0)
	for i, entry := range ranking {
		id := int64(i + 2)
		profiles = append(profiles, seedProfile{
			user: profile.User{
				UserID:        id,
				Nickname:      entry.Nickname,
				ProfileIconID: entry.ProfileIconID,
				ProfileCharID: 1,
				Level:         1,
			},
			icons: []int32{entry.ProfileIconID},
			record: profile.Record{
				UserID:      id,
				LastLoginAt: now,
				RankPoint:   entry.RankPoint,
				Tier:        "Silver",
			},
		})
	}
	return profiles
}

func main() {
	// 1) Connect using the server's profile database settings
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.ProfileDB.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 2) Create tables
	if _, err := pool.Exec(ctx, profile.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	// 3) Upsert every profile in its own transaction and count
	profiles := demoProfiles(time.Now().UTC())
	runTx := func(ctx context.Context, fn func(execer) error) error {
		return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error { return fn(tx) })
	}
	res := seedProfiles(ctx, runTx, profiles)

	// 4) Print summary
	fmt.Printf(
		"Profiles seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		len(profiles), res.inserted, res.skipped, res.errs,
	)
}

// seedProfiles upserts each profile in its own transaction. A failed profile
// is reported and counted; the rest still run.
func seedProfiles(ctx context.Context, runTx txRunner, profiles []seedProfile) seedResult {
	var res seedResult
	for _, p := range profiles {
		var created bool
		err := runTx(ctx, func(tx execer) error {
			var err error
			created, err = upsertProfile(ctx, tx, p)
			return err
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error seeding user %d: %v\n", p.user.UserID, err)
			res.errs++
			continue
		}
		if created {
			res.inserted++
		} else {
			res.skipped++
		}
	}
	return res
}

func upsertProfile(ctx context.Context, tx execer, p seedProfile) (bool, error) {
	u := p.user
	cmdTag, err := tx.Exec(ctx, `
		INSERT INTO users (user_id, nickname, profile_icon_id, profile_char_id, level, exp, gold)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id) DO NOTHING`,
		u.UserID, u.Nickname, u.ProfileIconID, u.ProfileCharID, u.Level, u.Exp, u.Gold,
	)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return false, nil
	}

	for _, icon := range p.icons {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_icons (user_id, icon_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
			u.UserID, icon,
		); err != nil {
			return false, fmt.Errorf("insert icon %d: %w", icon, err)
		}
	}

	r := p.record
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_records (
		  user_id, last_login_at, rank_match_count, rank_wins, rank_losses, rank_point, tier
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.UserID, r.LastLoginAt, r.RankMatchCount, r.RankWins, r.RankLosses, r.RankPoint, r.Tier,
	); err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}

	return true, nil
}
