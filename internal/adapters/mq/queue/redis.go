package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

const (
	defaultRedisKey     = "rankd:jobs"
	defaultPollInterval = time.Second
	backendRetryDelay   = 500 * time.Millisecond
)

// RedisQueue shares jobs between processes through a Redis list of job
// envelopes. A companion set holds the keys of waiting jobs so identical
// requests coalesce across processes.
type RedisQueue struct {
	client   redis.UniversalClient
	key      string
	capacity int
	poll     time.Duration
	log      logger.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

// NewRedisQueue wraps an existing client. The caller owns the client.
func NewRedisQueue(client redis.UniversalClient, opts ...RedisOption) *RedisQueue {
	q := &RedisQueue{
		client:   client,
		key:      defaultRedisKey,
		capacity: defaultQueueCapacity,
		poll:     defaultPollInterval,
		log:      logger.Get().Named("queue"),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	metrics.UpdateQueueCapacity(q.capacity)
	return q
}

func (q *RedisQueue) pendingKey() string { return q.key + ":pending" }

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, job model.Job) error {
	if q.IsClosed() {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}
	payload, err := model.EncodeJob(job)
	if err != nil {
		return err
	}

	added, err := q.client.SAdd(ctx, q.pendingKey(), job.Key()).Result()
	if err != nil {
		metrics.RecordQueueEnqueueError()
		return fmt.Errorf("%w: mark pending: %v", ErrBackend, err)
	}
	if added == 0 {
		metrics.RecordJobCoalesced()
		return ErrCoalesced
	}

	n, err := q.client.LLen(ctx, q.key).Result()
	if err == nil && int(n) >= q.capacity {
		q.unmark(ctx, job.Key())
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "full")
		return ErrFull
	}
	if err == nil {
		err = q.client.LPush(ctx, q.key, payload).Err()
	}
	if err != nil {
		q.unmark(ctx, job.Key())
		metrics.RecordQueueEnqueueError()
		return fmt.Errorf("%w: push: %v", ErrBackend, err)
	}
	metrics.RecordQueueEnqueue()
	metrics.UpdateQueueSize(int(n) + 1)
	return nil
}

func (q *RedisQueue) unmark(ctx context.Context, key string) {
	if err := q.client.SRem(context.WithoutCancel(ctx), q.pendingKey(), key).Err(); err != nil {
		q.log.Warn(ctx, "failed to release pending job key", logger.String("key", key), logger.Error(err))
	}
}

// Dequeue implements Queue. Payloads that fail to decode are dropped.
func (q *RedisQueue) Dequeue(ctx context.Context) <-chan model.Job {
	out := make(chan model.Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stop:
				return
			default:
			}

			res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				q.log.Error(ctx, "job queue pop failed", logger.Error(err))
				metrics.RecordErrorByComponent("queue", "backend")
				q.sleep(ctx, backendRetryDelay)
				continue
			}

			job, err := model.DecodeJob([]byte(res[1]))
			if err != nil {
				q.log.Warn(ctx, "dropping undecodable job", logger.Error(err))
				metrics.RecordErrorByComponent("queue", "decode")
				continue
			}
			q.unmark(ctx, job.Key())
			metrics.RecordQueueDequeue()

			select {
			case out <- job:
			case <-ctx.Done():
				q.putBack(ctx, job, res[1])
				return
			case <-q.stop:
				q.putBack(ctx, job, res[1])
				return
			}
		}
	}()
	return out
}

// putBack returns a popped job to the consuming end of the list and marks
// it pending again. If an identical job was queued meanwhile, that one is
// kept and the popped copy is dropped.
func (q *RedisQueue) putBack(ctx context.Context, job model.Job, payload string) {
	ctx = context.WithoutCancel(ctx)
	added, err := q.client.SAdd(ctx, q.pendingKey(), job.Key()).Result()
	if err != nil {
		q.log.Error(ctx, "lost job during shutdown", logger.String("job_id", job.ID), logger.Error(err))
		return
	}
	if added == 0 {
		metrics.RecordJobCoalesced()
		return
	}
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		q.unmark(ctx, job.Key())
		q.log.Error(ctx, "lost job during shutdown", logger.String("job_id", job.ID), logger.Error(err))
	}
}

func (q *RedisQueue) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-q.stop:
	}
}

// Len implements Queue. Backend errors read as zero.
func (q *RedisQueue) Len(ctx context.Context) int {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0
	}
	metrics.UpdateQueueSize(int(n))
	metrics.UpdateQueueUtilization(float64(n) / float64(q.capacity))
	return int(n)
}

// Close stops consumers. Waiting jobs stay in Redis for the next process.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.stop)
	}
	return nil
}

// IsClosed implements Queue.
func (q *RedisQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
