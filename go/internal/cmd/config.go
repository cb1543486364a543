package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/skirmish/go/internal/config"
	"github.com/mcdev12/skirmish/go/internal/session"
	"github.com/mcdev12/skirmish/go/internal/session/events"
	"github.com/mcdev12/skirmish/go/internal/session/gateway"
)

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		log.Warn().Str("log_level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func gatewayConfig(cfg *config.Config) gateway.Config {
	gwCfg := gateway.DefaultConfig()

	gwCfg.Session.CountdownDelay = cfg.Session.CountdownDelay
	gwCfg.Session.Teams = [2]session.Team{
		session.Team(cfg.Session.Teams[0]),
		session.Team(cfg.Session.Teams[1]),
	}

	ws := cfg.WebSocket
	gwCfg.Connection.MaxMessageSize = ws.MaxMessageSize
	gwCfg.Connection.SendBufferSize = ws.SendBuffer
	gwCfg.Connection.PingInterval = ws.PingInterval
	gwCfg.Connection.ReadTimeout = ws.ReadTimeout
	gwCfg.Connection.WriteTimeout = ws.WriteTimeout

	return gwCfg
}

func jetStreamConfig(cfg *config.Config) events.JetStreamConfig {
	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATS.URL
	if cfg.NATS.StreamName != "" {
		jsCfg.StreamName = cfg.NATS.StreamName
	}
	if cfg.NATS.SubjectPrefix != "" {
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
	}
	return jsCfg
}
