// Package rating owns the rating state transition: absent -> rated on the
// first score, rated -> rated on every later one.
package rating

import (
	"context"
	"fmt"

	"github.com/okian/tally/internal/domain/dedupe"
	"github.com/okian/tally/internal/domain/keylock"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/scoring"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

const defaultPlayerScore = 5

// Store is the slice of the rating store the engine needs.
type Store interface {
	Get(ctx context.Context, key model.Key) (model.Rating, bool, error)
	Create(ctx context.Context, r model.Rating) error
	Update(ctx context.Context, prev, next model.Rating) error
}

// Publisher hands events to the outbound queue.
type Publisher interface {
	Publish(ctx context.Context, e model.Envelope) error
}

// Result describes one applied score.
type Result struct {
	Rating    model.Rating
	Created   bool
	Duplicate bool
	// Skipped is set when a seed score found the key already rated.
	Skipped bool
}

// Engine folds scores into ratings. The read, compute and write for one key
// happen under that key's lock; different keys proceed in parallel.
type Engine struct {
	store        Store
	publisher    Publisher
	folder       scoring.Folder
	locks        *keylock.Locker
	dedupe       dedupe.Deduper
	defaultScore int
	logger       logger.Logger
}

// NewEngine creates an engine writing to store and announcing through publisher.
func NewEngine(store Store, publisher Publisher, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		publisher:    publisher,
		folder:       scoring.NewIncrementalMean(),
		locks:        keylock.New(),
		dedupe:       dedupe.NewInMemoryDeduper(),
		defaultScore: defaultPlayerScore,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("rating-engine")
	}
	return e
}

// Apply folds score into the rating for key. eventID, when not empty, guards
// against folding the same event twice.
func (e *Engine) Apply(ctx context.Context, eventID string, key model.Key, score int) (Result, error) {
	return e.apply(ctx, eventID, key, score, false)
}

// Seed folds score only when key has no rating yet. A rated key is left
// untouched and the event is remembered as handled.
func (e *Engine) Seed(ctx context.Context, eventID string, key model.Key, score int) (Result, error) {
	return e.apply(ctx, eventID, key, score, true)
}

func (e *Engine) apply(ctx context.Context, eventID string, key model.Key, score int, onlyIfAbsent bool) (Result, error) {
	unlock, err := e.locks.Lock(ctx, key.String())
	if err != nil {
		metrics.RecordFoldError("lock")
		return Result{}, fmt.Errorf("%w %s: %w", ErrLock, key, err)
	}
	defer unlock()

	if e.dedupe.Seen(ctx, eventID) {
		metrics.RecordRedeliverySkip()
		e.logger.Debug(ctx, "event already folded",
			logger.String("event_id", eventID),
			logger.String("key", key.String()),
		)
		return Result{Duplicate: true}, nil
	}

	prev, found, err := e.store.Get(ctx, key)
	if err != nil {
		metrics.RecordFoldError("read")
		return Result{}, fmt.Errorf("read rating %s: %w", key, err)
	}
	if found && onlyIfAbsent {
		e.dedupe.Record(ctx, eventID)
		e.logger.Debug(ctx, "player already rated, seed skipped", logger.String("key", key.String()))
		return Result{Rating: prev, Skipped: true}, nil
	}

	next := e.folder.Fold(key, prev, found, score)
	if found {
		err = e.store.Update(ctx, prev, next)
	} else {
		err = e.store.Create(ctx, next)
	}
	if err != nil {
		metrics.RecordFoldError("write")
		return Result{}, fmt.Errorf("write rating %s: %w", key, err)
	}
	e.dedupe.Record(ctx, eventID)

	if found {
		metrics.RecordRatingUpdated()
	} else {
		metrics.RecordRatingCreated()
	}
	e.logger.Debug(ctx, "rating folded",
		logger.String("key", key.String()),
		logger.Int("score", score),
		logger.Float64("average_score", next.AverageScore),
		logger.Int64("total_of_scores", next.TotalOfScores),
	)

	// Still under the key lock so rating_updated events for one key leave in order.
	e.announce(ctx, next)
	return Result{Rating: next, Created: !found}, nil
}

func (e *Engine) announce(ctx context.Context, r model.Rating) {
	ev, err := model.RatingUpdatedEvent(r)
	if err != nil {
		e.logger.Error(ctx, "build rating_updated", logger.Error(err))
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn(ctx, "rating_updated not published",
			logger.String("key", r.Key().String()),
			logger.Error(err),
		)
	}
}

// Remembered returns how many event ids the redelivery guard holds.
func (e *Engine) Remembered() int {
	return e.dedupe.Size()
}

// HandleScoreCreated is the dispatch handler for score_created.
func (e *Engine) HandleScoreCreated(ctx context.Context, env model.Envelope) error {
	var p model.ScoreCreated
	if err := env.DecodeData(&p); err != nil {
		return err
	}
	if err := model.ValidateScore(p.Score); err != nil {
		return err
	}
	_, err := e.Apply(ctx, env.EventID, model.Key{PlayerID: p.PlayerID, TeamID: p.TeamID}, p.Score)
	return err
}

// HandlePlayerCreated is the dispatch handler for player_created. A player
// with no score yet gets the default score through the same fold as any
// other score; an already rated player keeps its rating.
func (e *Engine) HandlePlayerCreated(ctx context.Context, env model.Envelope) error {
	var p model.PlayerCreated
	if err := env.DecodeData(&p); err != nil {
		return err
	}
	_, err := e.Seed(ctx, env.EventID, model.Key{PlayerID: p.PlayerID, TeamID: p.TeamID}, e.defaultScore)
	return err
}
