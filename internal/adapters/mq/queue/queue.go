// Package queue carries jobs from the API to the worker pool.
package queue

import (
	"context"
	"sync"

	"github.com/okian/rankd/internal/domain/dedupe"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds a job. It returns ErrCoalesced when an identical job is
	// already waiting, ErrFull under backpressure and ErrClosed after Close.
	Enqueue(ctx context.Context, job model.Job) error

	// Dequeue returns a channel of jobs, closed when the queue is closed
	// or ctx is done.
	Dequeue(ctx context.Context) <-chan model.Job

	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue is a bounded channel of jobs.
type InMemoryQueue struct {
	jobs     chan model.Job
	capacity int
	deduper  dedupe.Deduper

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates an in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan model.Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, job model.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}
	key := job.Key()
	if q.deduper != nil && q.deduper.SeenAndRecord(ctx, key) {
		return ErrCoalesced
	}

	select {
	case q.jobs <- job:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	case <-ctx.Done():
		q.release(ctx, key)
		metrics.RecordQueueEnqueueError()
		return ctx.Err()
	default:
		q.release(ctx, key)
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "full")
		return ErrFull
	}
}

// Dequeue implements Queue. The job's coalescing key is released as soon
// as a consumer takes it.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Job {
	out := make(chan model.Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-q.jobs:
				if !ok {
					return
				}
				q.release(ctx, job.Key())
				metrics.RecordQueueDequeue()
				q.observe()
				select {
				case out <- job:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) release(ctx context.Context, key string) {
	if q.deduper != nil {
		q.deduper.Unrecord(ctx, key)
	}
}

func (q *InMemoryQueue) observe() {
	n := len(q.jobs)
	metrics.UpdateQueueSize(n)
	metrics.UpdateQueueUtilization(float64(n) / float64(q.capacity))
}

// Len implements Queue.
func (q *InMemoryQueue) Len(context.Context) int {
	q.observe()
	return len(q.jobs)
}

// Close implements Queue. Jobs already queued are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
