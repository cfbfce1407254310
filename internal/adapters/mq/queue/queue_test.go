package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFIFO_Order(t *testing.T) {
	q := New[int]()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if l := q.Len(); l != 3 {
		t.Errorf("expected length 3, got %d", l)
	}
	for want := 1; want <= 3; want++ {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("expected empty queue")
	}
}

func TestFIFO_PushNeverBlocks(t *testing.T) {
	q := New[int](WithInitialCapacity(1))
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100_000; i++ {
			_ = q.Push(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("push blocked")
	}
	if l := q.Len(); l != 100_000 {
		t.Errorf("expected 100000 items, got %d", l)
	}
}

func TestFIFO_PopWaits(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	_ = q.Push("late")

	select {
	case v := <-got:
		if v != "late" {
			t.Errorf("expected late, got %s", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestFIFO_PopContext(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestFIFO_CloseDrains(t *testing.T) {
	q := New[int]()
	_ = q.Push(1)
	_ = q.Push(2)

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected closed")
	}
	if err := q.Push(3); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	ctx := context.Background()
	for want := 1; want <= 2; want++ {
		v, err := q.Pop(ctx)
		if err != nil || v != want {
			t.Fatalf("expected %d, got %d (%v)", want, v, err)
		}
	}
	if _, err := q.Pop(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on drained queue, got %v", err)
	}
}

func TestFIFO_CloseWakesWaiters(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Pop(context.Background())
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	_ = q.Close()
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	}
}

func TestFIFO_ConcurrentConsumers(t *testing.T) {
	q := New[int]()
	const n = 1000
	for i := 0; i < n; i++ {
		_ = q.Push(i)
	}
	_ = q.Close()

	var mu sync.Mutex
	seen := make(map[int]bool, n)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := q.Pop(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Errorf("expected %d distinct items, got %d", n, len(seen))
	}
}

func TestFIFO_SizeObserverAndDrain(t *testing.T) {
	var mu sync.Mutex
	last := -1
	q := New[int](WithSizeObserver(func(n int) {
		mu.Lock()
		last = n
		mu.Unlock()
	}))
	_ = q.Push(1)
	_ = q.Push(2)

	mu.Lock()
	if last != 2 {
		t.Errorf("expected observed size 2, got %d", last)
	}
	mu.Unlock()

	rest := q.Drain()
	if len(rest) != 2 || q.Len() != 0 {
		t.Errorf("expected drain of 2 leaving 0, got %d leaving %d", len(rest), q.Len())
	}
	mu.Lock()
	if last != 0 {
		t.Errorf("expected observed size 0, got %d", last)
	}
	mu.Unlock()
}
