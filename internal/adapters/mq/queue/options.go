package queue

import (
	"time"

	"github.com/okian/rankd/internal/domain/dedupe"
	"github.com/okian/rankd/pkg/logger"
)

// Option configures the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of waiting jobs.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithDeduper coalesces identical waiting jobs.
func WithDeduper(d dedupe.Deduper) Option {
	return func(q *InMemoryQueue) {
		q.deduper = d
	}
}

// RedisOption configures the RedisQueue.
type RedisOption func(*RedisQueue)

// WithRedisKey sets the list key. The pending set uses the same key with
// a ":pending" suffix.
func WithRedisKey(key string) RedisOption {
	return func(q *RedisQueue) {
		if key != "" {
			q.key = key
		}
	}
}

// WithRedisCapacity sets the soft limit on waiting jobs.
func WithRedisCapacity(capacity int) RedisOption {
	return func(q *RedisQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithPollInterval sets how long one blocking pop waits before checking
// for shutdown.
func WithPollInterval(d time.Duration) RedisOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.poll = d
		}
	}
}

// WithRedisLogger sets the logger for dropped payloads and backend errors.
func WithRedisLogger(l logger.Logger) RedisOption {
	return func(q *RedisQueue) {
		if l != nil {
			q.log = l
		}
	}
}
