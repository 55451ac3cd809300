package worker

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/rankd/pkg/logger"
)

// Option configures an InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithLimiter throttles job starts.
func WithLimiter(l *rate.Limiter) Option {
	return func(w *InMemoryWorker) {
		w.limiter = l
	}
}

// WithJobTimeout bounds a single job. Zero means no bound.
func WithJobTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d >= 0 {
			w.timeout = d
		}
	}
}

func withLocks(l *playerLocks) Option {
	return func(w *InMemoryWorker) {
		w.locks = l
	}
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithRateLimit allows perSecond job starts across the pool with the given
// burst. Zero or negative perSecond disables throttling.
func WithRateLimit(perSecond float64, burst int) PoolOption {
	return func(p *Pool) {
		if perSecond <= 0 {
			p.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithPoolJobTimeout bounds every job run by the pool.
func WithPoolJobTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d >= 0 {
			p.timeout = d
		}
	}
}

// WithPoolLogger sets the pool's logger.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
