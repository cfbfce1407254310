package worker

import (
	"github.com/okian/tally/pkg/logger"
)

// Option configures a Pool.
type Option func(*Pool)

// WithQueueSize sets how many tasks each worker buffers before Submit blocks.
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
