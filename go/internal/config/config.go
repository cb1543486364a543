package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the optional YAML file layered under the environment
const ConfigPathEnv = "SKIRMISH_CONFIG"

// Config is the full server configuration
type Config struct {
	Port      string          `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	Session   SessionConfig   `yaml:"session"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	NATS      NATSConfig      `yaml:"nats"`
	ProfileDB DatabaseConfig  `yaml:"profile_db"`
}

// SessionConfig tunes the paired session
type SessionConfig struct {
	CountdownDelay time.Duration `yaml:"countdown_delay"`
	Teams          []string      `yaml:"teams"`
}

// WebSocketConfig tunes peer sockets
type WebSocketConfig struct {
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// NATSConfig controls publishing of session events to JetStream
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DatabaseConfig holds Postgres connection settings for profile lookups.
// When disabled the canned profile data is served.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection URL
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Port:     "3000",
		LogLevel: "info",
		Session: SessionConfig{
			CountdownDelay: 500 * time.Millisecond,
			Teams:          []string{"Red", "Blue"},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 64 * 1024,
			SendBuffer:     256,
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			StreamName:    "SESSION_EVENTS",
			SubjectPrefix: "session.events",
		},
		ProfileDB: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "skirmish",
			SSLMode:  "disable",
		},
	}
}

// Load reads .env, then the YAML file named by SKIRMISH_CONFIG if any, then
// environment variables. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg := Default()

	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	var err error
	if c.Session.CountdownDelay, err = getEnvAsDuration("COUNTDOWN_DELAY", c.Session.CountdownDelay); err != nil {
		return err
	}
	if teams := os.Getenv("TEAM_LABELS"); teams != "" {
		c.Session.Teams = splitList(teams)
	}

	if c.WebSocket.PingInterval, err = getEnvAsDuration("WS_PING_INTERVAL", c.WebSocket.PingInterval); err != nil {
		return err
	}
	if c.WebSocket.SendBuffer, err = getEnvAsInt("WS_SEND_BUFFER", c.WebSocket.SendBuffer); err != nil {
		return err
	}

	if c.NATS.Enabled, err = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled); err != nil {
		return err
	}
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.StreamName = getEnv("NATS_STREAM", c.NATS.StreamName)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	if c.ProfileDB.Enabled, err = getEnvAsBool("PROFILE_DB_ENABLED", c.ProfileDB.Enabled); err != nil {
		return err
	}
	c.ProfileDB.Host = getEnv("DB_HOST", c.ProfileDB.Host)
	if c.ProfileDB.Port, err = getEnvAsInt("DB_PORT", c.ProfileDB.Port); err != nil {
		return err
	}
	c.ProfileDB.User = getEnv("DB_USER", c.ProfileDB.User)
	c.ProfileDB.Password = getEnv("DB_PASSWORD", c.ProfileDB.Password)
	c.ProfileDB.Database = getEnv("DB_NAME", c.ProfileDB.Database)
	c.ProfileDB.SSLMode = getEnv("DB_SSLMODE", c.ProfileDB.SSLMode)

	return nil
}

// Validate checks settings the server cannot start without
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.Session.CountdownDelay <= 0 {
		return errors.New("session.countdown_delay must be positive")
	}
	if len(c.Session.Teams) != 2 {
		return fmt.Errorf("session.teams needs exactly two labels, got %d", len(c.Session.Teams))
	}
	if c.Session.Teams[0] == "" || c.Session.Teams[1] == "" || c.Session.Teams[0] == c.Session.Teams[1] {
		return fmt.Errorf("session.teams must be two distinct non-empty labels, got %q", c.Session.Teams)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("environment variable %s must be a boolean: %w", key, err)
	}
	return b, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a duration: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
