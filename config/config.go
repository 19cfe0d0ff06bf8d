package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment selects the log format and how strict validation is.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Config is everything markboard reads from the environment (and .env).
type Config struct {
	App           AppConfig
	Ejudge        EjudgeConfig
	Grid          GridConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	HTTP          HTTPConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig
}

type AppConfig struct {
	Name            string
	Environment     Environment
	Version         string
	ShutdownTimeout time.Duration
}

// EjudgeConfig locates the standings page and tunes the client around it.
type EjudgeConfig struct {
	BaseURL     string
	ContestFrom string
	ContestTo   string

	RequestTimeout time.Duration
	MaxRetries     int

	// RateLimit in requests per second.
	RateLimit float64

	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// GridConfig is the topic x level shape of the solved flags.
type GridConfig struct {
	Topics int
	Levels int
}

// DatabaseConfig for snapshot history. An empty URL runs without Postgres.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig for the latest-snapshot cache.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	CacheTTL time.Duration
}

type HTTPConfig struct {
	Host string
	Port int

	// RateLimit in requests per minute per client IP. Zero disables it.
	RateLimit int

	AllowedOrigins []string

	// AdminAPIKeyHash is the bcrypt hash guarding /refresh and /jobs.
	AdminAPIKeyHash string
}

type SchedulerConfig struct {
	Enabled      bool
	SyncInterval time.Duration
	JobTimeout   time.Duration

	// SnapshotRetention of zero keeps every snapshot.
	SnapshotRetention time.Duration
	PruneInterval     time.Duration
}

type ObservabilityConfig struct {
	LogLevel string
}

// Load reads the configuration from the environment. A variable that does
// not parse falls back to its default.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:            env("APP_NAME", "markboard", str),
			Environment:     Environment(env("APP_ENV", string(EnvDevelopment), str)),
			Version:         env("APP_VERSION", "0.1.0", str),
			ShutdownTimeout: env("APP_SHUTDOWN_TIMEOUT", 30*time.Second, time.ParseDuration),
		},
		Ejudge: EjudgeConfig{
			BaseURL:                 env("EJUDGE_BASE_URL", "https://ejudge.lksh.ru", str),
			ContestFrom:             env("EJUDGE_CONTEST_FROM", "030813", str),
			ContestTo:               env("EJUDGE_CONTEST_TO", "030817", str),
			RequestTimeout:          env("EJUDGE_REQUEST_TIMEOUT", 30*time.Second, time.ParseDuration),
			MaxRetries:              env("EJUDGE_MAX_RETRIES", 3, strconv.Atoi),
			RateLimit:               env("EJUDGE_RATE_LIMIT", 1.0, float),
			CircuitBreakerThreshold: env("EJUDGE_CB_THRESHOLD", 3, strconv.Atoi),
			CircuitBreakerTimeout:   env("EJUDGE_CB_TIMEOUT", time.Minute, time.ParseDuration),
		},
		Grid: GridConfig{
			Topics: env("GRID_TOPICS", 6, strconv.Atoi),
			Levels: env("GRID_LEVELS", 5, strconv.Atoi),
		},
		Database: DatabaseConfig{
			URL:             env("DATABASE_URL", "", str),
			MaxConns:        env("DB_MAX_CONNS", 10, strconv.Atoi),
			MinConns:        env("DB_MIN_CONNS", 1, strconv.Atoi),
			ConnMaxLifetime: env("DB_CONN_MAX_LIFETIME", 30*time.Minute, time.ParseDuration),
			ConnMaxIdleTime: env("DB_CONN_MAX_IDLE_TIME", 5*time.Minute, time.ParseDuration),
		},
		Redis: RedisConfig{
			Enabled:  env("REDIS_ENABLED", false, strconv.ParseBool),
			Host:     env("REDIS_HOST", "localhost", str),
			Port:     env("REDIS_PORT", 6379, strconv.Atoi),
			Password: env("REDIS_PASSWORD", "", str),
			DB:       env("REDIS_DB", 0, strconv.Atoi),
			PoolSize: env("REDIS_POOL_SIZE", 10, strconv.Atoi),
			CacheTTL: env("CACHE_TTL", 10*time.Minute, time.ParseDuration),
		},
		HTTP: HTTPConfig{
			Host:            env("HTTP_HOST", "0.0.0.0", str),
			Port:            env("HTTP_PORT", 8080, strconv.Atoi),
			RateLimit:       env("HTTP_RATE_LIMIT", 120, strconv.Atoi),
			AllowedOrigins:  env("HTTP_ALLOWED_ORIGINS", []string{"*"}, list),
			AdminAPIKeyHash: env("ADMIN_API_KEY_HASH", "", str),
		},
		Scheduler: SchedulerConfig{
			Enabled:           env("SCHEDULER_ENABLED", true, strconv.ParseBool),
			SyncInterval:      env("SCHEDULER_SYNC_INTERVAL", 5*time.Minute, time.ParseDuration),
			JobTimeout:        env("SCHEDULER_JOB_TIMEOUT", 2*time.Minute, time.ParseDuration),
			SnapshotRetention: env("SNAPSHOT_RETENTION", 30*24*time.Hour, time.ParseDuration),
			PruneInterval:     env("SCHEDULER_PRUNE_INTERVAL", time.Hour, time.ParseDuration),
		},
		Observability: ObservabilityConfig{
			LogLevel: env("LOG_LEVEL", "info", str),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Ejudge.BaseURL != "", "EJUDGE_BASE_URL is required")
	check(c.Ejudge.ContestFrom != "" && c.Ejudge.ContestTo != "", "EJUDGE_CONTEST_FROM and EJUDGE_CONTEST_TO are required")
	check(c.Ejudge.RateLimit > 0, "EJUDGE_RATE_LIMIT must be positive")
	check(c.Grid.Topics > 0, "GRID_TOPICS must be positive")
	check(c.Grid.Levels > 0, "GRID_LEVELS must be positive")
	check(c.HTTP.Port >= 1 && c.HTTP.Port <= 65535, "HTTP_PORT must be 1-65535")
	check(c.App.Environment != EnvProduction || c.Database.URL != "", "DATABASE_URL is required in production")
	check(!c.Scheduler.Enabled || c.Scheduler.SyncInterval > 0, "SCHEDULER_SYNC_INTERVAL must be positive")

	return errors.Join(errs...)
}

// IsDevelopment selects the human-readable log format.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// env returns the parsed value of key, or def when it is unset or malformed.
func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func str(s string) (string, error) { return s, nil }

func float(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// list splits on commas and drops blank items.
func list(s string) ([]string, error) {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
