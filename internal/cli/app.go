package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emiliopalmerini/studi/internal/adapters/locallock"
	"github.com/emiliopalmerini/studi/internal/adapters/otel"
	"github.com/emiliopalmerini/studi/internal/adapters/redislock"
	"github.com/emiliopalmerini/studi/internal/adapters/turso"
	"github.com/emiliopalmerini/studi/internal/adapters/tz"
	"github.com/emiliopalmerini/studi/internal/adapters/zaplog"
	"github.com/emiliopalmerini/studi/internal/aggregate"
	"github.com/emiliopalmerini/studi/internal/clock"
	"github.com/emiliopalmerini/studi/internal/infrastructure/config"
	"github.com/emiliopalmerini/studi/internal/infrastructure/database"
	"github.com/emiliopalmerini/studi/internal/period"
	"github.com/emiliopalmerini/studi/internal/ports"
	"github.com/emiliopalmerini/studi/internal/tracking"
)

// AppContext holds all shared dependencies for CLI commands.
type AppContext struct {
	DB       *sql.DB
	Repos    *turso.Repositories
	Logger   *zaplog.Logger
	Locker   ports.Locker
	Metrics  ports.MetricsExporter
	Timezone ports.TimezoneResolver
	Calendar period.Calendar
	Engine   *aggregate.Engine
	Tracker  *tracking.Service

	// closers run in order on Close; the database goes last.
	closers []func() error
}

// newApp builds the AppContext for a command. Tests replace it.
var newApp = NewAppContext

// NewAppContext creates an AppContext from environment configuration.
func NewAppContext(ctx context.Context) (*AppContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := zaplog.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	client, err := database.New(cfg.Database.URL, cfg.Database.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	weekStart, err := cfg.Calendar.Weekday()
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	var locker ports.Locker = locallock.New()
	var closers []func() error
	if cfg.Redis.Addr != "" {
		rl, err := redislock.Dial(ctx, cfg.Redis.Addr, cfg.Redis.LockTTL)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = rl
		closers = append(closers, rl.Close)
	}

	var metrics ports.MetricsExporter = otel.NewNoOpExporter()
	if cfg.Otel.Enabled {
		exp, err := otel.NewExporter(ctx, cfg.Otel)
		if err != nil {
			logger.Warn("metrics disabled", "error", err)
		} else {
			metrics = exp
		}
	}

	app := buildApp(client.DB, logger, locker, metrics, clock.SystemClock{}, period.NewCalendar(weekStart))
	app.closers = append(closers, client.Close)
	return app, nil
}

// buildApp wires the services over an open database.
func buildApp(db *sql.DB, logger *zaplog.Logger, locker ports.Locker, metrics ports.MetricsExporter, clk clock.Clock, cal period.Calendar) *AppContext {
	repos := turso.NewRepositories(db)
	resolver := tz.NewResolver(logger)

	engine := aggregate.NewEngine(aggregate.Deps{
		Sessions: repos.Sessions,
		Users:    repos.Users,
		Store:    repos.Aggregates,
		Locker:   locker,
		Timezone: resolver,
		Clock:    clk,
		Calendar: cal,
		Metrics:  metrics,
		Logger:   logger,
	})
	tracker := tracking.NewService(tracking.Deps{
		Sessions:   repos.Sessions,
		Blocks:     repos.Blocks,
		Breaks:     repos.Breaks,
		Users:      repos.Users,
		Aggregates: engine,
		Timezone:   resolver,
		Clock:      clk,
		Metrics:    metrics,
		Logger:     logger,
	})

	return &AppContext{
		DB:       db,
		Repos:    repos,
		Logger:   logger,
		Locker:   locker,
		Metrics:  metrics,
		Timezone: resolver,
		Calendar: cal,
		Engine:   engine,
		Tracker:  tracker,
	}
}

// Close releases all resources held by the AppContext.
func (a *AppContext) Close() error {
	var firstErr error
	if a.Metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.Metrics.Close(ctx); err != nil {
			firstErr = err
		}
		cancel()
	}
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Logger != nil {
		a.Logger.Sync()
	}
	return firstErr
}

// withApp opens the AppContext, runs fn and closes it.
func withApp(ctx context.Context, fn func(app *AppContext) error) error {
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	return fn(app)
}
