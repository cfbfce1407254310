// Package scoring folds individual scores into running average ratings.
package scoring

import (
	"time"

	"github.com/okian/tally/internal/domain/model"
)

// Option applies a configuration option to the IncrementalMean.
type Option func(*IncrementalMean)

// WithClock overrides the time source used for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(m *IncrementalMean) {
		if now != nil {
			m.now = now
		}
	}
}

// Folder computes the next rating state for one score.
type Folder interface {
	// Fold returns the rating after applying score. When found is false prev is
	// ignored and a fresh rating for key is returned.
	Fold(key model.Key, prev model.Rating, found bool, score int) model.Rating
}

// IncrementalMean keeps the average without the history of scores:
// new = (old*n + score) / (n+1).
type IncrementalMean struct {
	now func() time.Time
}

// NewIncrementalMean creates a folder with the given options.
func NewIncrementalMean(opts ...Option) *IncrementalMean {
	m := &IncrementalMean{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fold implements Folder.
func (m *IncrementalMean) Fold(key model.Key, prev model.Rating, found bool, score int) model.Rating {
	now := m.now()
	if !found || prev.TotalOfScores <= 0 {
		return model.Rating{
			PlayerID:      key.PlayerID,
			TeamID:        key.TeamID,
			AverageScore:  float64(score),
			TotalOfScores: 1,
			LastUpdated:   now,
		}
	}

	n := float64(prev.TotalOfScores)
	next := prev
	next.AverageScore = (prev.AverageScore*n + float64(score)) / (n + 1)
	next.TotalOfScores = prev.TotalOfScores + 1
	next.LastUpdated = now
	return next
}
