// Package queue provides an unbounded in-memory FIFO. Push never blocks;
// Pop waits for an item, for Close, or for its context.
package queue

import (
	"context"
	"sync"
)

// FIFO is safe for concurrent use. After Close, Push fails but Pop keeps
// returning the remaining items until the queue is empty.
type FIFO[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	notify chan struct{}
	done   chan struct{}

	observe func(int)
}

// New creates an empty queue.
func New[T any](opts ...Option) *FIFO[T] {
	s := settings{observe: func(int) {}}
	for _, opt := range opts {
		opt(&s)
	}
	q := &FIFO[T]{
		items:   make([]T, 0, s.initialCapacity),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		observe: s.observe,
	}
	q.observe(0)
	return q
}

// Push appends v. It returns ErrClosed once the queue is closed.
func (q *FIFO[T]) Push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, v)
	n := len(q.items)
	q.mu.Unlock()

	q.observe(n)
	q.signal()
	return nil
}

// Pop removes the oldest item, waiting for one if the queue is empty. It
// returns ErrClosed when the queue is closed and drained.
func (q *FIFO[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		if q.IsClosed() {
			// An item may have landed between TryPop and the close.
			if v, ok := q.TryPop(); ok {
				return v, nil
			}
			return zero, ErrClosed
		}
		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryPop removes the oldest item without waiting.
func (q *FIFO[T]) TryPop() (T, bool) {
	var zero T
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	n := len(q.items)
	if n == 0 {
		q.items = q.items[:0:0]
	}
	q.mu.Unlock()

	q.observe(n)
	if n > 0 {
		q.signal()
	}
	return v, true
}

// Drain removes and returns every queued item.
func (q *FIFO[T]) Drain() []T {
	q.mu.Lock()
	out := q.items
	q.items = nil
	q.mu.Unlock()
	q.observe(0)
	return out
}

// Len returns the number of queued items.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops intake and wakes every waiting Pop. It is idempotent.
func (q *FIFO[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

// IsClosed reports whether Close was called.
func (q *FIFO[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *FIFO[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
