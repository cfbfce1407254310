package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithScoreLogLimit bounds how many audit scores are kept; the oldest are dropped.
func WithScoreLogLimit(limit int) Option {
	return func(s *MemoryStore) {
		if limit > 0 {
			s.scoreLogLimit = limit
		}
	}
}
