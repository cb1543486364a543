package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/skirmish/go/internal/config"
	"github.com/mcdev12/skirmish/go/internal/matchqueue"
	"github.com/mcdev12/skirmish/go/internal/profile"
	"github.com/mcdev12/skirmish/go/internal/session/events"
	"github.com/mcdev12/skirmish/go/internal/session/gateway"
)

type Services struct {
	Gateway    *gateway.Service
	Profile    *profile.Handler
	MatchQueue *matchqueue.Handler

	publisher *events.JetStreamPublisher
	pool      *pgxpool.Pool
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Session events go to JetStream when enabled, otherwise to the log
	var publisher events.Publisher = events.LogPublisher{}
	if cfg.NATS.Enabled {
		jsPublisher, err := events.NewJetStreamPublisher(ctx, jetStreamConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		services.publisher = jsPublisher
		publisher = jsPublisher
	}
	services.Gateway = gateway.NewService(gatewayConfig(cfg), publisher)

	// Profiles come from Postgres when enabled, otherwise canned data
	var profileRepo profile.ProfileRepository = profile.NewStaticRepository(nil)
	if cfg.ProfileDB.Enabled {
		pool, err := setupDatabase(ctx, cfg.ProfileDB)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.pool = pool
		profileRepo = profile.NewPostgresRepository(pool)
	}
	services.Profile = profile.NewHandler(profileRepo)

	services.MatchQueue = matchqueue.NewHandler(nil)

	return services, nil
}

// Close releases the publisher connection and database pool
func (s *Services) Close() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
