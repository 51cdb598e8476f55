// Package config loads server and playtest settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server configures cmd/mdserver.
type Server struct {
	Addr       string        `env:"MD_ADDR" envDefault:":8080"`
	DBPath     string        `env:"MD_DB_PATH" envDefault:"data/market.db"`
	AdminKey   string        `env:"MD_ADMIN_KEY"`      // empty disables admin endpoints
	Seed       int64         `env:"MD_SEED"`           // 0 draws a fresh seed per match
	RandomOrg  string        `env:"MD_RANDOM_ORG_KEY"` // seeds fresh matches from random.org when set
	RateLimit  float64       `env:"MD_RATE_LIMIT" envDefault:"10"`
	RateBurst  int           `env:"MD_RATE_BURST" envDefault:"20"`
	Origins    []string      `env:"MD_CORS_ORIGINS" envSeparator:","`
	LogLevel   string        `env:"MD_LOG_LEVEL" envDefault:"info"`
	SaveEvery  bool          `env:"MD_SNAPSHOT_EVERY_ACTION" envDefault:"true"`
	SavePeriod time.Duration `env:"MD_SAVE_PERIOD" envDefault:"1m"`
}

// Playtest configures cmd/playtest.
type Playtest struct {
	APIURL   string        `env:"MD_API_URL" envDefault:"http://localhost:8080"`
	MatchID  string        `env:"MD_MATCH_ID"` // empty creates a new match
	Seats    int           `env:"MD_SEATS" envDefault:"2"`
	Interval time.Duration `env:"MD_INTERVAL" envDefault:"2s"`
	Seed     int64         `env:"MD_SEED" envDefault:"1"`
	LogLevel string        `env:"MD_LOG_LEVEL" envDefault:"info"`
}

// Parse loads configuration from environment variables into target.
func Parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServer parses the server configuration.
func LoadServer() (Server, error) {
	var cfg Server
	if err := Parse(&cfg); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit <= 0 || cfg.RateBurst <= 0 {
		return Server{}, fmt.Errorf("rate limit must be positive, got %v/%d", cfg.RateLimit, cfg.RateBurst)
	}
	return cfg, nil
}

// LoadPlaytest parses the playtest configuration.
func LoadPlaytest() (Playtest, error) {
	var cfg Playtest
	if err := Parse(&cfg); err != nil {
		return Playtest{}, err
	}
	if cfg.Seats < 1 || cfg.Seats > 4 {
		return Playtest{}, fmt.Errorf("MD_SEATS must be 1..4, got %d", cfg.Seats)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return cfg, nil
}

// Level maps a level name to a slog level. Unknown names fall back to info.
func Level(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
