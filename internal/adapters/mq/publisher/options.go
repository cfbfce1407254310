package publisher

import (
	"time"

	"github.com/okian/tally/pkg/logger"
)

// Option configures a Publisher.
type Option func(*Publisher)

// WithRetryDelay sets the fixed wait between connection attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.retryDelay = d
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}
