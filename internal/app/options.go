package service

import (
	"time"

	"github.com/okian/rankd/internal/adapters/cache"
	"github.com/okian/rankd/internal/adapters/mq/queue"
	"github.com/okian/rankd/internal/domain/scoring"
	"github.com/okian/rankd/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of job workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the in-memory job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the number of pending job keys tracked for
// coalescing.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithQueue replaces the in-memory queue, for example with a Redis queue
// shared by several processes.
func WithQueue(q queue.Queue) Option {
	return func(s *Service) {
		s.queue = q
	}
}

// WithRateLimit throttles job starts across the worker pool.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Service) {
		s.ratePerSec = perSecond
		s.rateBurst = burst
	}
}

// WithJobTimeout bounds a single job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithCountryScan bounds the country summary fan-out and sets the page size
// used to read whole rankings. Non-positive values keep the index defaults.
func WithCountryScan(concurrency, pageSize int) Option {
	return func(s *Service) {
		s.scanConcurrency = concurrency
		s.scanPageSize = pageSize
	}
}

// WithStatsCache sets the profile cache refreshed after every restore.
func WithStatsCache(c cache.StatsCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithCalculator re-scores hidden plays without pp during restore.
func WithCalculator(c scoring.Calculator) Option {
	return func(s *Service) {
		s.calc = c
	}
}

// WithAwardLovedPP counts Loved beatmaps towards pp and accuracy.
func WithAwardLovedPP(award bool) Option {
	return func(s *Service) {
		s.awardLoved = award
	}
}

// WithAllBeatmapStatuses counts every beatmap towards pp and accuracy.
func WithAllBeatmapStatuses(all bool) Option {
	return func(s *Service) {
		s.allStatuses = all
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
