// Package config defines service configuration structures and loading hooks.
//
// Keys are flat snake_case names shared by the YAML file and the RANKD_
// environment variables, so RANKD_WORKER_COUNT sets worker_count.
package config

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"
)

// Backend, store, cache and queue selectors.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"

	StoreTreap = "treap"
	StoreRedis = "redis"

	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"

	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// Backend holds players, scores and stats: memory or postgres.
	Backend          string `koanf:"backend"`
	PostgresDSN      string `koanf:"postgres_dsn"`
	PostgresMaxConns int32  `koanf:"postgres_max_conns"`
	PostgresMinConns int32  `koanf:"postgres_min_conns"`
	// PostgresEnsureSchema creates missing tables on startup.
	PostgresEnsureSchema bool `koanf:"postgres_ensure_schema"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	// RedisPoolSize of zero lets the client pick its default.
	RedisPoolSize     int           `koanf:"redis_pool_size"`
	RedisDialTimeout  time.Duration `koanf:"redis_dial_timeout"`
	RedisReadTimeout  time.Duration `koanf:"redis_read_timeout"`
	RedisWriteTimeout time.Duration `koanf:"redis_write_timeout"`

	// Store holds the rankings: treap (in process) or redis.
	Store string `koanf:"store"`
	// Cache holds player profiles: none, memory or redis.
	Cache    string        `koanf:"cache"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
	// Queue carries jobs: memory or redis.
	Queue         string `koanf:"queue"`
	RedisQueueKey string `koanf:"redis_queue_key"`

	// QueueSize bounds the job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of job workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the pending job keys kept for coalescing.
	DedupeSize int `koanf:"dedupe_size"`
	// RestoreRatePerSec throttles job starts; zero disables throttling.
	RestoreRatePerSec float64       `koanf:"restore_rate_per_sec"`
	RestoreBurst      int           `koanf:"restore_burst"`
	JobTimeout        time.Duration `koanf:"job_timeout"`

	// CountryScanConcurrency bounds concurrent country reads in /countries.
	CountryScanConcurrency int `koanf:"country_scan_concurrency"`
	// ScanPageSize is the page size for reading whole rankings.
	ScanPageSize int `koanf:"scan_page_size"`

	// AwardLovedPP counts Loved beatmaps towards pp and accuracy.
	AwardLovedPP bool `koanf:"award_loved_pp"`
	// AllBeatmapStatuses counts every beatmap towards pp and accuracy.
	AllBeatmapStatuses bool `koanf:"all_beatmap_statuses"`

	// EstimatePP re-scores hidden plays without pp using the built-in
	// estimator. EstimateBasePP tunes it; zero keeps its default.
	EstimatePP     bool    `koanf:"estimate_pp"`
	EstimateBasePP float64 `koanf:"estimate_base_pp"`

	// AdminKey, when set, is granted every job scope.
	AdminKey string `koanf:"admin_key"`
	// APIKeys maps keys to permission rules, e.g. "jobs.enqueue.*".
	APIKeys map[string][]string `koanf:"api_keys"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		ShutdownTimeout:     10 * time.Second,
		MaxLeaderboardLimit: 100,
		Backend:             BackendMemory,
		PostgresMaxConns:    16,
		PostgresMinConns:    2,
		RedisAddr:           "localhost:6379",
		RedisDialTimeout:    5 * time.Second,
		RedisReadTimeout:    3 * time.Second,
		RedisWriteTimeout:   3 * time.Second,
		Store:               StoreTreap,
		Cache:               CacheMemory,
		CacheTTL:            24 * time.Hour,
		Queue:               QueueMemory,
		RedisQueueKey:       "rankd:jobs",
		QueueSize:           100_000,
		WorkerCount:         runtime.NumCPU() * 2,
		DedupeSize:          50_000,
		RestoreBurst:        1,
		JobTimeout:          2 * time.Minute,

		CountryScanConcurrency: 8,
		ScanPageSize:           1000,
	}
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Store == StoreRedis || c.Cache == CacheRedis || c.Queue == QueueRedis
}

// Keys returns the API keys with the admin key merged in.
func (c *Config) Keys() map[string][]string {
	out := make(map[string][]string, len(c.APIKeys)+1)
	for k, rules := range c.APIKeys {
		out[k] = rules
	}
	if c.AdminKey != "" {
		out[c.AdminKey] = append(out[c.AdminKey], "jobs.*")
	}
	return out
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !slices.Contains([]string{BackendMemory, BackendPostgres}, c.Backend):
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	case c.Backend == BackendPostgres && c.PostgresDSN == "":
		return fmt.Errorf("%w: postgres backend needs postgres_dsn", ErrInvalidConfig)
	case !slices.Contains([]string{StoreTreap, StoreRedis}, c.Store):
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case !slices.Contains([]string{CacheNone, CacheMemory, CacheRedis}, c.Cache):
		return fmt.Errorf("%w: unknown cache %q", ErrInvalidConfig, c.Cache)
	case !slices.Contains([]string{QueueMemory, QueueRedis}, c.Queue):
		return fmt.Errorf("%w: unknown queue %q", ErrInvalidConfig, c.Queue)
	case c.UsesRedis() && c.RedisAddr == "":
		return fmt.Errorf("%w: redis components need redis_addr", ErrInvalidConfig)
	case c.RedisPoolSize < 0:
		return fmt.Errorf("%w: redis_pool_size must not be negative", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.RestoreRatePerSec < 0:
		return fmt.Errorf("%w: restore_rate_per_sec must not be negative", ErrInvalidConfig)
	case c.EstimateBasePP < 0:
		return fmt.Errorf("%w: estimate_base_pp must not be negative", ErrInvalidConfig)
	case c.CountryScanConcurrency < 1:
		return fmt.Errorf("%w: country_scan_concurrency must be positive", ErrInvalidConfig)
	case c.ScanPageSize < 1:
		return fmt.Errorf("%w: scan_page_size must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit < 1:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	return nil
}
