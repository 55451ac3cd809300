// Package service wires the ranking core together and implements the
// dependencies required by the HTTP API and the job workers.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/rankd/internal/adapters/cache"
	"github.com/okian/rankd/internal/adapters/mq/queue"
	"github.com/okian/rankd/internal/adapters/mq/worker"
	"github.com/okian/rankd/internal/adapters/repository"
	"github.com/okian/rankd/internal/domain/aggregate"
	"github.com/okian/rankd/internal/domain/dedupe"
	"github.com/okian/rankd/internal/domain/leaderboard"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/internal/domain/scoring"
	"github.com/okian/rankd/internal/domain/status"
	"github.com/okian/rankd/internal/domain/types"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

// Backend is the persistence the service needs. Both the in-memory and
// the Postgres stores implement it.
type Backend interface {
	aggregate.Repository
	aggregate.Transactor
	aggregate.PlayerDirectory
	status.Repository
	leaderboard.ScoreSource
	leaderboard.KudosuSource
	leaderboard.UserSource
	Stats(ctx context.Context, playerID int64, mode model.Mode) (model.PlayerStats, bool, error)
}

// Service runs ranking jobs and answers ranking queries.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	backend  Backend
	cache    cache.StatsCache
	calc     scoring.Calculator
	index    *leaderboard.Index
	stats    *aggregate.Aggregator
	resolver *status.Resolver

	queue   queue.Queue
	deduper dedupe.Deduper
	pool    *worker.Pool

	workerCount int
	queueSize   int
	dedupeSize  int
	ratePerSec  float64
	rateBurst   int
	jobTimeout  time.Duration
	awardLoved  bool

	scanConcurrency int
	scanPageSize    int

	allStatuses bool

	started   bool
	stopped   bool
	startedAt time.Time

	logger logger.Logger
}

// New builds a service over a ranking store and a backend. Queries work
// right away; jobs run only after Start.
func New(store repository.Store, backend Backend, opts ...Option) *Service {
	s := &Service{
		store:       store,
		backend:     backend,
		workerCount: runtime.NumCPU() * 2,
		queueSize:   10000,
		dedupeSize:  50000,
		jobTimeout:  2 * time.Minute,
		logger:      logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.index = leaderboard.New(store,
		leaderboard.WithScoreSource(backend),
		leaderboard.WithKudosuSource(backend),
		leaderboard.WithUserSource(backend),
		leaderboard.WithCountryScanConcurrency(s.scanConcurrency),
		leaderboard.WithScanPageSize(s.scanPageSize),
		leaderboard.WithLogger(s.logger.Named("leaderboard")))

	aggOpts := []aggregate.Option{
		aggregate.WithAwardLovedPP(s.awardLoved),
		aggregate.WithAllBeatmapStatuses(s.allStatuses),
	}
	if s.cache != nil {
		aggOpts = append(aggOpts, aggregate.WithStatsCache(s.cache))
	}
	s.stats = aggregate.New(backend, backend, backend, s.index, aggOpts...)

	var statusOpts []status.Option
	if s.calc != nil {
		statusOpts = append(statusOpts, status.WithCalculator(s.calc))
	}
	s.resolver = status.New(backend, backend, s.stats, statusOpts...)
	return s
}

// Start creates the job queue, when none was provided, and starts the
// worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}

	if s.queue == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
		s.queue = queue.NewInMemoryQueue(
			queue.WithCapacity(s.queueSize),
			queue.WithDeduper(s.deduper))
	}
	s.pool = worker.NewPool(s.workerCount, s.queue, worker.HandlerFunc(s.Handle),
		worker.WithRateLimit(s.ratePerSec, s.rateBurst),
		worker.WithPoolJobTimeout(s.jobTimeout))
	s.pool.Start(ctx)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "ranking service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Bool("award_loved_pp", s.awardLoved))
	return nil
}

// Stop drains the workers and closes the ranking store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	var errs []error
	if s.started {
		s.started = false
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close ranking store: %w", err))
	}
	s.logger.Info(ctx, "ranking service stopped")
	return errors.Join(errs...)
}

// Enqueue validates job and queues it for a worker.
func (s *Service) Enqueue(ctx context.Context, job model.Job) error {
	if !job.Kind.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidJob, model.ErrUnknownJob, job.Kind)
	}
	if job.PlayerID <= 0 {
		return fmt.Errorf("%w: player id must be positive", ErrInvalidJob)
	}
	if !job.Mode.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidJob, model.ErrUnknownMode)
	}
	if job.Kind == model.JobRemoveCountry && leaderboard.NormalizeCountry(job.Country) == "" {
		return fmt.Errorf("%w: %s needs the country to leave", ErrInvalidJob, job.Kind)
	}

	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if err := q.Enqueue(ctx, job); err != nil {
		return err
	}
	s.logger.Debug(ctx, "job queued",
		logger.String("job_id", job.ID),
		logger.String("kind", string(job.Kind)),
		logger.Int64("player_id", job.PlayerID))
	return nil
}

// Handle runs one job. It is the worker pool's handler.
func (s *Service) Handle(ctx context.Context, job model.Job) error {
	switch job.Kind {
	case model.JobRestoreStats:
		_, err := s.stats.Restore(ctx, job.PlayerID)
		return err
	case model.JobRestoreHidden:
		_, err := s.resolver.RestoreHidden(ctx, job.PlayerID)
		return err
	case model.JobUpdateLeaderCount:
		country, err := s.country(ctx, job)
		if err != nil {
			return err
		}
		return s.index.UpdateLeaderCount(ctx, job.PlayerID, job.Mode, country)
	case model.JobUpdateKudosu:
		country, err := s.country(ctx, job)
		if err != nil {
			return err
		}
		return s.index.UpdateKudosu(ctx, job.PlayerID, country)
	case model.JobRemovePlayer:
		return s.RemovePlayer(ctx, job.PlayerID, job.Country)
	case model.JobRemoveCountry:
		return s.RemoveCountry(ctx, job.PlayerID, job.Country)
	default:
		return fmt.Errorf("%w: %q", model.ErrUnknownJob, job.Kind)
	}
}

func (s *Service) country(ctx context.Context, job model.Job) (string, error) {
	if job.Country != "" {
		return job.Country, nil
	}
	c, err := s.backend.Country(ctx, job.PlayerID)
	if err != nil {
		return "", fmt.Errorf("country of %d: %w", job.PlayerID, err)
	}
	return c, nil
}

// RestoreStats recomputes the player's stats in every mode.
func (s *Service) RestoreStats(ctx context.Context, playerID int64) ([]model.PlayerStats, error) {
	return s.stats.Restore(ctx, playerID)
}

// RestoreHidden resolves the player's hidden scores and rebuilds stats.
func (s *Service) RestoreHidden(ctx context.Context, playerID int64) (status.Result, error) {
	return s.resolver.RestoreHidden(ctx, playerID)
}

// RemovePlayer drops the player from every ranking and the cache. An empty
// country is looked up in the backend.
func (s *Service) RemovePlayer(ctx context.Context, playerID int64, country string) error {
	if country == "" {
		c, err := s.backend.Country(ctx, playerID)
		if err != nil {
			return fmt.Errorf("country of %d: %w", playerID, err)
		}
		country = c
	}
	if err := s.index.Remove(ctx, playerID, country); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, playerID); err != nil {
			s.logger.Warn(ctx, "stats cache delete failed", logger.Int64("player_id", playerID), logger.Error(err))
		}
	}
	return nil
}

// RemoveCountry drops the player from the rankings of a country they left.
// Global rankings and the player's current country are untouched.
func (s *Service) RemoveCountry(ctx context.Context, playerID int64, country string) error {
	if leaderboard.NormalizeCountry(country) == "" {
		return fmt.Errorf("%w: empty country", ErrInvalidJob)
	}
	return s.index.RemoveCountry(ctx, playerID, country)
}

// Page is one slice of a ranking.
type Page struct {
	Metric  leaderboard.Metric `json:"metric"`
	Mode    model.Mode         `json:"mode"`
	Country string             `json:"country,omitempty"`
	Offset  int                `json:"offset"`
	Total   int                `json:"total"`
	Entries []types.Entry      `json:"entries"`
}

// Leaderboard returns limit ranked players starting at offset.
func (s *Service) Leaderboard(ctx context.Context, mode model.Mode, m leaderboard.Metric, country string, offset, limit int) (Page, error) {
	country = leaderboard.NormalizeCountry(country)
	entries, err := s.index.TopPlayers(ctx, mode, m, country, offset, limit)
	if err != nil {
		return Page{}, err
	}
	total, err := s.index.Count(ctx, mode, m, country)
	if err != nil {
		return Page{}, err
	}
	return Page{Metric: m, Mode: mode, Country: country, Offset: offset, Total: total, Entries: entries}, nil
}

// Rank returns the player's position and value. Rank 0 means unranked.
func (s *Service) Rank(ctx context.Context, playerID int64, mode model.Mode, m leaderboard.Metric, country string) (types.Entry, error) {
	country = leaderboard.NormalizeCountry(country)
	rank, err := s.index.Rank(ctx, playerID, mode, m, country)
	if err != nil {
		return types.Entry{}, err
	}
	value, err := s.index.Value(ctx, playerID, mode, m, country)
	if err != nil {
		return types.Entry{}, err
	}
	return types.Entry{Rank: rank, PlayerID: playerID, Value: value}, nil
}

// Countries aggregates every country ranking of mode.
func (s *Service) Countries(ctx context.Context, mode model.Mode) ([]model.CountrySummary, error) {
	return s.index.TopCountries(ctx, mode)
}

// PlayerAbove returns the gap to the next player up.
func (s *Service) PlayerAbove(ctx context.Context, playerID int64, mode model.Mode, m leaderboard.Metric) (leaderboard.Above, error) {
	return s.index.PlayerAbove(ctx, playerID, mode, m)
}

// PlayerStats reads the player's stats through the cache.
func (s *Service) PlayerStats(ctx context.Context, playerID int64, mode model.Mode) (model.PlayerStats, bool, error) {
	if s.cache != nil {
		st, ok, err := s.cache.Get(ctx, playerID, mode)
		if err != nil {
			s.logger.Warn(ctx, "stats cache read failed", logger.Int64("player_id", playerID), logger.Error(err))
		} else if ok {
			return st, true, nil
		}
	}
	st, ok, err := s.backend.Stats(ctx, playerID, mode)
	if err != nil || !ok {
		return model.PlayerStats{}, false, err
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, st); err != nil {
			s.logger.Warn(ctx, "stats cache fill failed", logger.Int64("player_id", playerID), logger.Error(err))
		}
	}
	return st, true, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"awardLoved":  s.awardLoved,
	}
	if s.scanConcurrency > 0 {
		out["countryScanConcurrency"] = s.scanConcurrency
	}
	if !s.started {
		return out
	}
	ctx := context.Background()
	queued := s.queue.Len(ctx)
	out["queueLength"] = queued
	out["activeJobs"] = s.pool.Active()
	out["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	if s.deduper != nil {
		out["pendingKeys"] = s.deduper.Size()
	}
	if n, err := s.index.Count(ctx, model.Standard, leaderboard.Performance, ""); err == nil {
		out["rankedPlayers"] = n
	}
	metrics.UpdateQueueSize(queued)
	return out
}
