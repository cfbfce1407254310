package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	worker "github.com/okian/tally/internal/adapters/mq/worker"
	logging "github.com/okian/tally/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// recorder collects task output per key.
type recorder struct {
	mu   sync.Mutex
	seen map[string][]int
}

func newRecorder() *recorder {
	return &recorder{seen: make(map[string][]int)}
}

func (r *recorder) task(key string, n int) worker.Task {
	return func(ctx context.Context) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.seen[key] = append(r.seen[key], n)
	}
}

func (r *recorder) get(key string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.seen[key]...)
}

func TestPool(t *testing.T) {
	convey.Convey("Given a started pool", t, func() {
		ctx := context.Background()
		pool := worker.NewPool(4, worker.WithLogger(logging.Nop()), worker.WithQueueSize(8))
		pool.Start(ctx)

		convey.Convey("When tasks for several keys are submitted", func() {
			rec := newRecorder()
			keys := []string{"1/1", "1/2", "2/1", "3/7"}
			for i := 0; i < 50; i++ {
				for _, k := range keys {
					convey.So(pool.Submit(ctx, k, rec.task(k, i)), convey.ShouldBeNil)
				}
			}
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then every key saw its tasks in submission order", func() {
				for _, k := range keys {
					got := rec.get(k)
					convey.So(len(got), convey.ShouldEqual, 50)
					for i, v := range got {
						convey.So(v, convey.ShouldEqual, i)
					}
				}
			})
		})

		convey.Convey("When tasks for one key are submitted concurrently", func() {
			var running, overlap atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 10; j++ {
						_ = pool.Submit(ctx, "same", func(context.Context) {
							if running.Add(1) > 1 {
								overlap.Add(1)
							}
							time.Sleep(100 * time.Microsecond)
							running.Add(-1)
						})
					}
				}()
			}
			wg.Wait()
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then they never ran at the same time", func() {
				convey.So(overlap.Load(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the pool is shut down", func() {
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then Submit reports ErrStopped", func() {
				err := pool.Submit(ctx, "k", func(context.Context) {})
				convey.So(errors.Is(err, worker.ErrStopped), convey.ShouldBeTrue)
			})

			convey.Convey("Then shutting down again is a no-op", func() {
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPoolBackpressure(t *testing.T) {
	convey.Convey("Given a single worker stuck on a task", t, func() {
		pool := worker.NewPool(1, worker.WithLogger(logging.Nop()), worker.WithQueueSize(1))
		pool.Start(context.Background())
		release := make(chan struct{})

		convey.So(pool.Submit(context.Background(), "a", func(context.Context) { <-release }), convey.ShouldBeNil)
		// Give the worker time to pick up the blocking task.
		time.Sleep(20 * time.Millisecond)
		convey.So(pool.Submit(context.Background(), "a", func(context.Context) {}), convey.ShouldBeNil)

		convey.Convey("When the queue is full", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			err := pool.Submit(ctx, "a", func(context.Context) {})

			convey.Convey("Then Submit waits and gives up with the context", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When Shutdown runs out of time", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			convey.Convey("Then it returns the context error", func() {
				convey.So(pool.Shutdown(ctx), convey.ShouldNotBeNil)
			})
		})

		close(release)
	})
}

func TestPoolSizing(t *testing.T) {
	convey.Convey("Given a non-positive worker count", t, func() {
		pool := worker.NewPool(0, worker.WithLogger(logging.Nop()))

		convey.Convey("Then one worker per CPU is used", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("Then shutting down an unstarted pool is immediate", func() {
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given many keys", t, func() {
		pool := worker.NewPool(3, worker.WithLogger(logging.Nop()))
		pool.Start(context.Background())
		var count atomic.Int64
		for i := 0; i < 300; i++ {
			_ = pool.Submit(context.Background(), fmt.Sprintf("%d/%d", i, i%7), func(context.Context) { count.Add(1) })
		}

		convey.Convey("Then all of them run before shutdown returns", func() {
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(count.Load(), convey.ShouldEqual, 300)
		})
	})
}
