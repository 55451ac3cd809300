package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/rankd/internal/adapters/cache"
	"github.com/okian/rankd/internal/adapters/http/api"
	"github.com/okian/rankd/internal/adapters/http/swagger"
	"github.com/okian/rankd/internal/adapters/memory"
	"github.com/okian/rankd/internal/adapters/mq/queue"
	"github.com/okian/rankd/internal/adapters/postgres"
	"github.com/okian/rankd/internal/adapters/repository"
	service "github.com/okian/rankd/internal/app"
	"github.com/okian/rankd/internal/config"
	"github.com/okian/rankd/internal/domain/permission"
	"github.com/okian/rankd/internal/domain/scoring"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get().Named("rankd")
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "rankd stopped with error", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run serves until ctx is cancelled, then shuts everything down.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	metrics.StartRuntimeSampler(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := app.svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "server stopped")
	return runErr
}

// application is the wired process: the service, its HTTP handler and the
// connections it owns.
type application struct {
	svc     *service.Service
	handler http.Handler
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build connects the configured backends and wires the service and API.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	apiOpts := []api.Option{api.WithMaxLimit(cfg.MaxLeaderboardLimit)}
	if keys := cfg.Keys(); len(keys) > 0 {
		keyring, kerr := permission.NewKeyring(keys)
		if kerr != nil {
			return nil, fmt.Errorf("api keys: %w", kerr)
		}
		apiOpts = append(apiOpts, api.WithKeyring(keyring))
	} else {
		log.Warn(ctx, "no api keys configured; job submission is open")
	}

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb, err = repository.NewRedisClient(ctx, repository.RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			DialTimeout:  cfg.RedisDialTimeout,
			ReadTimeout:  cfg.RedisReadTimeout,
			WriteTimeout: cfg.RedisWriteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.closers = append(app.closers, func() { _ = rdb.Close() })
	}

	backend, err := buildBackend(ctx, cfg, app)
	if err != nil {
		return nil, err
	}

	var store repository.Store
	switch cfg.Store {
	case config.StoreRedis:
		store = repository.NewRedisStore(rdb)
	default:
		store = repository.NewTreapStore(ctx)
	}

	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithRateLimit(cfg.RestoreRatePerSec, cfg.RestoreBurst),
		service.WithJobTimeout(cfg.JobTimeout),
		service.WithCountryScan(cfg.CountryScanConcurrency, cfg.ScanPageSize),
		service.WithAwardLovedPP(cfg.AwardLovedPP),
		service.WithAllBeatmapStatuses(cfg.AllBeatmapStatuses),
	}
	if cfg.EstimatePP {
		opts = append(opts, service.WithCalculator(scoring.NewEstimator(scoring.WithBasePP(cfg.EstimateBasePP))))
	}
	switch cfg.Cache {
	case config.CacheRedis:
		opts = append(opts, service.WithStatsCache(cache.NewRedisCache(rdb, cache.WithTTL(cfg.CacheTTL))))
	case config.CacheMemory:
		opts = append(opts, service.WithStatsCache(cache.NewMemoryCache()))
	}
	if cfg.Queue == config.QueueRedis {
		opts = append(opts, service.WithQueue(queue.NewRedisQueue(rdb,
			queue.WithRedisKey(cfg.RedisQueueKey),
			queue.WithRedisCapacity(cfg.QueueSize))))
	}
	app.svc = service.New(store, backend, opts...)

	mux := http.NewServeMux()
	api.NewServer(app.svc, app.svc, apiOpts...).Register(mux)
	swagger.Register(mux)
	app.handler = mux

	log.Info(ctx, "rankd wired",
		logger.String("backend", cfg.Backend),
		logger.String("store", cfg.Store),
		logger.String("cache", cfg.Cache),
		logger.String("queue", cfg.Queue))
	return app, nil
}

func buildBackend(ctx context.Context, cfg *config.Config, app *application) (service.Backend, error) {
	if cfg.Backend != config.BackendPostgres {
		return memory.New(), nil
	}
	pgCfg := postgres.DefaultConfig(cfg.PostgresDSN)
	pgCfg.MaxConns = cfg.PostgresMaxConns
	pgCfg.MinConns = cfg.PostgresMinConns
	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	app.closers = append(app.closers, conn.Close)
	if cfg.PostgresEnsureSchema {
		if err := conn.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return postgres.NewStore(conn), nil
}
