package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/emiliopalmerini/studi/internal/adapters/otel"
	"github.com/emiliopalmerini/studi/internal/util"
)

// Database holds Turso database configuration. An empty URL selects a local
// file under the XDG data directory.
type Database struct {
	URL       string `envconfig:"TURSO_DATABASE_URL"`
	AuthToken string `envconfig:"TURSO_AUTH_TOKEN"`
}

// Local reports whether the URL points at a local libsql file.
func (d Database) Local() bool {
	return strings.HasPrefix(d.URL, "file:")
}

type Log struct {
	Mode string `envconfig:"STUDI_LOG_MODE" default:"dev"`
}

type Calendar struct {
	WeekStart string `envconfig:"STUDI_WEEK_START" default:"sunday"`
}

// Weekday parses WeekStart. Only sunday and monday are accepted.
func (c Calendar) Weekday() (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(c.WeekStart)) {
	case "", "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	}
	return time.Sunday, fmt.Errorf("invalid STUDI_WEEK_START %q: want sunday or monday", c.WeekStart)
}

// Redis configures the distributed aggregate lock. Without an address the
// in-process lock is used.
type Redis struct {
	Addr    string        `envconfig:"STUDI_REDIS_ADDR"`
	LockTTL time.Duration `envconfig:"STUDI_REDIS_LOCK_TTL" default:"30s"`
}

// App holds the configuration of the studi CLI.
type App struct {
	Database Database
	Log      Log
	Calendar Calendar
	Redis    Redis
	Otel     otel.Config
}

// Load loads the application configuration from environment variables.
func Load() (*App, error) {
	var cfg App
	for _, section := range []any{&cfg.Database, &cfg.Log, &cfg.Calendar, &cfg.Redis, &cfg.Otel} {
		if err := envconfig.Process("", section); err != nil {
			return nil, err
		}
	}
	if _, err := cfg.Calendar.Weekday(); err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		dir, err := util.GetXDGDataDir()
		if err != nil {
			return nil, err
		}
		cfg.Database.URL = "file:" + filepath.Join(dir, "studi.db")
	}
	return &cfg, nil
}
