package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/rankd/internal/adapters/mq/queue"
	"github.com/okian/rankd/internal/adapters/mq/worker"
	"github.com/okian/rankd/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan model.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan model.Job, 100)}
}

func (q *mockQueue) Dequeue(context.Context) <-chan model.Job { return q.jobs }

func (q *mockQueue) Close() error {
	q.once.Do(func() { close(q.jobs) })
	return nil
}

// recorder remembers handled jobs and the peak concurrency per player.
type recorder struct {
	mu       sync.Mutex
	handled  []model.Job
	running  map[int64]int
	overlaps int
	fail     map[int64]error
	delay    time.Duration
}

func newRecorder() *recorder {
	return &recorder{running: map[int64]int{}, fail: map[int64]error{}}
}

func (r *recorder) Handle(ctx context.Context, job model.Job) error {
	r.mu.Lock()
	r.running[job.PlayerID]++
	if r.running[job.PlayerID] > 1 {
		r.overlaps++
	}
	err := r.fail[job.PlayerID]
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.running[job.PlayerID]--
	r.handled = append(r.handled, job)
	r.mu.Unlock()
	return err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handled)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker on a queue", t, func() {
		q := newMockQueue()
		rec := newRecorder()
		w := worker.NewInMemoryWorker(q, rec, worker.WithName("test"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When jobs arrive", func() {
			q.jobs <- model.NewJob(model.JobRestoreStats, 1)
			q.jobs <- model.NewJob(model.JobRestoreHidden, 2)

			convey.So(waitFor(func() bool { return rec.count() == 2 }), convey.ShouldBeTrue)

			convey.Convey("Then they are handled in order", func() {
				convey.So(rec.handled[0].Kind, convey.ShouldEqual, model.JobRestoreStats)
				convey.So(rec.handled[1].Kind, convey.ShouldEqual, model.JobRestoreHidden)
			})
		})

		convey.Convey("When a job fails", func() {
			rec.fail[1] = errors.New("db down")
			q.jobs <- model.NewJob(model.JobRestoreStats, 1)
			q.jobs <- model.NewJob(model.JobRestoreStats, 2)

			convey.Convey("Then the worker keeps going", func() {
				convey.So(waitFor(func() bool { return rec.count() == 2 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a handler panics", func() {
			p := worker.NewInMemoryWorker(q, worker.HandlerFunc(func(context.Context, model.Job) error {
				panic("boom")
			}))
			pctx, pcancel := context.WithCancel(context.Background())
			cancel()
			go p.Run(pctx)
			q.jobs <- model.NewJob(model.JobRestoreStats, 1)

			convey.Convey("Then the worker survives", func() {
				time.Sleep(50 * time.Millisecond)
				pcancel()
				sctx, scancel := context.WithTimeout(context.Background(), time.Second)
				defer scancel()
				convey.So(p.Shutdown(sctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()

			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		q := newMockQueue()
		rec := newRecorder()
		rec.delay = 5 * time.Millisecond
		pool := worker.NewPool(4, q, rec)
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When many jobs for few players arrive", func() {
			for i := 0; i < 40; i++ {
				q.jobs <- model.NewJob(model.JobRestoreStats, int64(i%3+1))
			}
			convey.So(waitFor(func() bool { return rec.count() == 40 }), convey.ShouldBeTrue)

			convey.Convey("Then no player runs two jobs at once", func() {
				convey.So(rec.overlaps, convey.ShouldEqual, 0)
				convey.So(pool.Active(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()

			convey.Convey("Then the queue closes and workers stop", func() {
				convey.So(pool.Shutdown(sctx), convey.ShouldBeNil)
				_, open := <-q.jobs
				convey.So(open, convey.ShouldBeFalse)
			})
		})
	})

	convey.Convey("Given a pool with a default size", t, func() {
		pool := worker.NewPool(0, newMockQueue(), newRecorder())
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}

func TestPoolRateLimit(t *testing.T) {
	convey.Convey("Given a throttled pool", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		var handled atomic.Int64
		pool := worker.NewPool(4, q, worker.HandlerFunc(func(context.Context, model.Job) error {
			handled.Add(1)
			return nil
		}), worker.WithRateLimit(20, 1))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		start := time.Now()
		for i := int64(1); i <= 5; i++ {
			convey.So(q.Enqueue(ctx, model.NewJob(model.JobRestoreStats, i)), convey.ShouldBeNil)
		}
		convey.So(waitFor(func() bool { return handled.Load() == 5 }), convey.ShouldBeTrue)

		convey.Convey("Then job starts are spaced out", func() {
			convey.So(time.Since(start), convey.ShouldBeGreaterThanOrEqualTo, 150*time.Millisecond)
		})
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
