// Package worker runs queued jobs. Jobs for the same player never run
// concurrently; jobs for different players do.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	defaultJobTimeout       = 2 * time.Minute
	poolShutdownTimeout     = 30 * time.Second
)

// Handler executes one job.
type Handler interface {
	Handle(ctx context.Context, job model.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job model.Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job model.Job) error { return f(ctx, job) }

// Queue is where workers take jobs from.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Job
}

// Worker processes jobs until stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker takes jobs from a queue and passes them to a handler.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string
	limiter *rate.Limiter
	locks   *playerLocks
	timeout time.Duration
	active  *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(queue Queue, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		handler:  handler,
		name:     "worker",
		timeout:  defaultJobTimeout,
		active:   new(atomic.Int64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.locks == nil {
		w.locks = newPlayerLocks()
	}
	return w
}

// Run processes jobs until ctx is done, Shutdown is called or the queue
// closes.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "job failed",
					logger.String("worker", w.name),
					logger.String("job_id", job.ID),
					logger.String("kind", string(job.Kind)),
					logger.Int64("player_id", job.PlayerID),
					logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after the current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out", logger.String("worker", w.name))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job model.Job) (err error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			metrics.RecordWorkerJob(string(job.Kind), "throttled", 0)
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	w.locks.lock(job.PlayerID)
	defer w.locks.unlock(job.PlayerID)

	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() { metrics.UpdateWorkerActiveCount(int(w.active.Add(-1))) }()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
		result := "ok"
		if err != nil {
			result = "error"
			metrics.RecordErrorByComponent("worker", string(job.Kind))
		}
		metrics.RecordWorkerJob(string(job.Kind), result, float64(time.Since(start).Milliseconds()))
	}()
	return w.handler.Handle(ctx, job)
}

// Pool runs workerCount workers on one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	handler Handler
	limiter *rate.Limiter
	timeout time.Duration
	locks   *playerLocks
	active  atomic.Int64

	logger logger.Logger
}

// NewPool creates a pool. A workerCount below one defaults to twice the
// number of CPUs.
func NewPool(workerCount int, queue Queue, handler Handler, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		handler: handler,
		timeout: defaultJobTimeout,
		locks:   newPlayerLocks(),
		logger:  logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := range p.workers {
		w := NewInMemoryWorker(queue, handler,
			WithName("worker-"+strconv.Itoa(i)),
			WithLimiter(p.limiter),
			WithJobTimeout(p.timeout),
			withLocks(p.locks))
		w.active = &p.active
		p.workers[i] = w
	}
	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active returns the number of jobs currently running.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Start starts every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue when it can be closed and waits for workers to
// finish their current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for _, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			timedOut++
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, ctx.Err())
	}
	return nil
}
