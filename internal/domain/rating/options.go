package rating

import (
	"github.com/okian/tally/internal/domain/dedupe"
	"github.com/okian/tally/internal/domain/scoring"
	"github.com/okian/tally/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithFolder replaces the incremental mean.
func WithFolder(f scoring.Folder) Option {
	return func(e *Engine) {
		if f != nil {
			e.folder = f
		}
	}
}

// WithDeduper sets the redelivery guard.
func WithDeduper(d dedupe.Deduper) Option {
	return func(e *Engine) {
		if d != nil {
			e.dedupe = d
		}
	}
}

// WithDefaultPlayerScore sets the score folded when a player is created.
func WithDefaultPlayerScore(score int) Option {
	return func(e *Engine) {
		e.defaultScore = score
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
