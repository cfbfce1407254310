package consumer

import (
	"time"

	"github.com/okian/tally/pkg/logger"
)

// Option configures a Consumer.
type Option func(*Consumer)

// WithRunner routes handling through r instead of the delivery goroutine.
func WithRunner(r Runner) Option {
	return func(c *Consumer) {
		if r != nil {
			c.runner = r
		}
	}
}

// WithRetryDelay sets the fixed wait between subscription attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithLogger sets the consumer logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}
