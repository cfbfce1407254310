package queue

type settings struct {
	initialCapacity int
	observe         func(int)
}

// Option configures a FIFO.
type Option func(*settings)

// WithInitialCapacity preallocates room for n items.
func WithInitialCapacity(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.initialCapacity = n
		}
	}
}

// WithSizeObserver calls fn with the queue length after every change.
func WithSizeObserver(fn func(int)) Option {
	return func(s *settings) {
		if fn != nil {
			s.observe = fn
		}
	}
}
