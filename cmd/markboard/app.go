package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lksh/markboard/config"
	"github.com/lksh/markboard/internal/application/command"
	"github.com/lksh/markboard/internal/application/query"
	"github.com/lksh/markboard/internal/domain/mark"
	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/domain/standings"
	"github.com/lksh/markboard/internal/infrastructure/external/ejudge"
	"github.com/lksh/markboard/internal/infrastructure/persistence/postgres"
	"github.com/lksh/markboard/internal/infrastructure/persistence/redis"
	"github.com/lksh/markboard/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// WIRING
// ══════════════════════════════════════════════════════════════════════════════

// app holds the wired components. Storage is optional: repo and cache stay
// nil interfaces when not configured.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	contests shared.ContestRange
	grid     mark.Grid

	source standings.Source

	db    *postgres.DB
	repo  *postgres.StandingsRepository
	redis *redis.Cache

	// Ports handed to the application layer.
	snapshotRepo  standings.Repository
	snapshotCache standings.Cache

	provider *query.Provider
	sync     *command.SyncStandingsHandler
}

// newLiveApp wires only the ejudge source. Used by the one-shot commands.
func newLiveApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		contests: shared.ContestRange{From: cfg.Ejudge.ContestFrom, To: cfg.Ejudge.ContestTo},
		grid:     mark.Grid{Topics: cfg.Grid.Topics, Levels: cfg.Grid.Levels},
	}
	if err := a.grid.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	if !a.contests.IsValid() {
		return nil, fmt.Errorf("invalid contest range %s", a.contests)
	}

	a.source = ejudge.NewSource(a.newEjudgeClient(), a.grid, log.With("component", "ejudge_source"))
	a.buildApplication()
	return a, nil
}

// newServerApp wires the source plus the optional Postgres and Redis storage.
func newServerApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a, err := newLiveApp(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Database.URL != "" {
		if err := a.connectDatabase(ctx); err != nil {
			return nil, err
		}
	} else {
		log.Warn("DATABASE_URL is not set, snapshot history disabled")
	}

	if cfg.Redis.Enabled {
		a.connectRedis(ctx)
	}

	a.buildApplication()
	return a, nil
}

func (a *app) newEjudgeClient() *ejudge.Client {
	clientCfg := ejudge.DefaultClientConfig(a.cfg.Ejudge.BaseURL, a.contests)
	clientCfg.Timeout = a.cfg.Ejudge.RequestTimeout
	clientCfg.MaxAttempts = a.cfg.Ejudge.MaxRetries + 1
	clientCfg.BreakerThreshold = a.cfg.Ejudge.CircuitBreakerThreshold
	clientCfg.BreakerTimeout = a.cfg.Ejudge.CircuitBreakerTimeout
	clientCfg.Pacing.PerSecond = a.cfg.Ejudge.RateLimit
	clientCfg.Logger = a.log
	return ejudge.NewClient(clientCfg)
}

func (a *app) connectDatabase(ctx context.Context) error {
	a.log.Info("connecting to database...")

	dbCfg := postgres.DefaultPoolConfig(a.cfg.Database.URL)
	if a.cfg.Database.MaxConns > 0 {
		dbCfg.MaxConns = int32(a.cfg.Database.MaxConns)
	}
	if a.cfg.Database.MinConns > 0 {
		dbCfg.MinConns = int32(a.cfg.Database.MinConns)
	}
	if a.cfg.Database.ConnMaxLifetime > 0 {
		dbCfg.MaxConnLifetime = a.cfg.Database.ConnMaxLifetime
	}
	if a.cfg.Database.ConnMaxIdleTime > 0 {
		dbCfg.MaxConnIdleTime = a.cfg.Database.ConnMaxIdleTime
	}

	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	a.log.Info("database connection established")

	applied, err := postgres.NewMigrator(db).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info("database schema is up to date", "applied", applied)

	a.repo = postgres.NewStandingsRepository(db)
	a.snapshotRepo = a.repo
	return nil
}

// connectRedis is best effort: without Redis the provider reads through
// Postgres or ejudge.
func (a *app) connectRedis(ctx context.Context) {
	a.log.Info("connecting to Redis...")

	redisCfg := redis.DefaultConfig()
	redisCfg.Host = a.cfg.Redis.Host
	redisCfg.Port = a.cfg.Redis.Port
	redisCfg.Password = a.cfg.Redis.Password
	redisCfg.DB = a.cfg.Redis.DB
	if a.cfg.Redis.PoolSize > 0 {
		redisCfg.PoolSize = a.cfg.Redis.PoolSize
	}

	cache, err := redis.NewCache(ctx, redisCfg)
	if err != nil {
		a.log.Warn("failed to connect to Redis, caching disabled", "error", err)
		return
	}
	a.redis = cache
	a.snapshotCache = redis.NewStandingsCache(cache)
	a.log.Info("Redis connection established", "addr", redisCfg.Addr())
}

func (a *app) buildApplication() {
	a.provider = query.NewProvider(
		a.snapshotCache,
		a.snapshotRepo,
		a.source,
		query.ProviderConfig{Contests: a.contests, CacheTTL: a.cfg.Redis.CacheTTL},
		a.log.With("component", "snapshot_provider"),
	)
	a.sync = command.NewSyncStandingsHandler(
		a.source,
		a.snapshotRepo,
		a.snapshotCache,
		command.SyncStandingsConfig{Contests: a.contests, CacheTTL: a.cfg.Redis.CacheTTL},
		a.log.With("component", "sync_standings"),
	)
}

// healthChecker pings the connected stores.
func (a *app) healthChecker() *handlers.StoreHealth {
	var pg, rd handlers.Pinger
	if a.db != nil {
		pg = a.db
	}
	if a.redis != nil {
		rd = a.redis
	}
	return handlers.NewStoreHealth(a.cfg.App.Version, pg, rd)
}

func (a *app) Close() {
	if a.redis != nil {
		a.log.Info("closing Redis connection...")
		if err := a.redis.Close(); err != nil {
			a.log.Warn("failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		a.log.Info("closing database connection...")
		a.db.Close()
	}
}
