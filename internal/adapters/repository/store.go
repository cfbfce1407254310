// Package repository persists ratings and the score audit log.
package repository

import (
	"context"

	"github.com/okian/tally/internal/domain/model"
)

// Store provides read/write access to rating state.
type Store interface {
	// Get returns the rating for key. found is false when the key has no
	// rating yet; err is reserved for real failures.
	Get(ctx context.Context, key model.Key) (r model.Rating, found bool, err error)

	// Create inserts a new rating. Returns ErrAlreadyExists if the key is taken.
	Create(ctx context.Context, r model.Rating) error

	// Update replaces prev with next. Returns ErrNotFound if the key vanished
	// and ErrConflict if the stored total no longer matches prev.
	Update(ctx context.Context, prev, next model.Rating) error

	// ListByTeam returns the team's ratings ordered by player id.
	ListByTeam(ctx context.Context, teamID int64) ([]model.Rating, error)

	// Count returns the number of stored ratings.
	Count(ctx context.Context) (int, error)
}

// ScoreLog keeps an append-only audit copy of accepted scores.
type ScoreLog interface {
	AppendScore(ctx context.Context, s model.Score) (model.Score, error)
}

// Repository bundles both concerns behind one backend.
type Repository interface {
	Store
	ScoreLog
	Close() error
}
