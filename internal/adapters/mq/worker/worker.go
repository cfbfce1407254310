// Package worker runs tasks on a fixed set of goroutines. Tasks submitted
// with the same key always land on the same worker, so they run one at a
// time and in submission order; different keys spread across workers.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

const defaultQueueSize = 1024

// Task is one unit of work.
type Task = func(ctx context.Context)

type worker struct {
	name  string
	tasks chan Task
}

func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for task := range w.tasks {
		task(ctx)
		metrics.UpdateWorkerQueueDepth(w.name, len(w.tasks))
	}
}

// Pool is a key-sharded worker pool.
type Pool struct {
	workers   []*worker
	queueSize int
	logger    logger.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewPool creates a pool of workerCount workers. A count below one means one
// worker per CPU.
func NewPool(workerCount int, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{queueSize: defaultQueueSize}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}

	p.workers = make([]*worker, workerCount)
	for i := range p.workers {
		p.workers[i] = &worker{
			name:  "worker-" + strconv.Itoa(i),
			tasks: make(chan Task, p.queueSize),
		}
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start launches the workers. Tasks run with ctx.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run(ctx, &p.wg)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Submit queues task on the worker owning key. It blocks while that worker's
// queue is full.
func (p *Pool) Submit(ctx context.Context, key string, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}

	w := p.workers[p.index(key)]
	select {
	case w.tasks <- task:
		metrics.UpdateWorkerQueueDepth(w.name, len(w.tasks))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit to %s: %w", w.name, ctx.Err())
	}
}

func (p *Pool) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.workers)))
}

// Shutdown stops intake and waits for queued tasks to finish or ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	for _, w := range p.workers {
		close(w.tasks)
	}
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	start := time.Now()
	select {
	case <-done:
		p.logger.Info(ctx, "worker pool stopped", logger.Duration("took", time.Since(start)))
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
