package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/metrics"
)

// MemoryStore is an in-process Repository. Ratings live in a map keyed by
// (player, team); the score log is a bounded slice.
type MemoryStore struct {
	mu      sync.RWMutex
	ratings map[model.Key]model.Rating
	scores  []model.Score

	scoreLogLimit         int
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs a memory store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		ratings:               make(map[model.Key]model.Rating),
		scoreLogLimit:         10_000,
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key model.Key) (model.Rating, bool, error) {
	defer observe("get", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ratings[key]
	return r, ok, nil
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, r model.Rating) error {
	defer observe("create", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ratings[r.Key()]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, r.Key())
	}
	s.ratings[r.Key()] = r
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, prev, next model.Rating) error {
	defer observe("update", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.ratings[prev.Key()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, prev.Key())
	}
	if cur.TotalOfScores != prev.TotalOfScores {
		return fmt.Errorf("%w: %s total %d, expected %d", ErrConflict, prev.Key(), cur.TotalOfScores, prev.TotalOfScores)
	}
	s.ratings[prev.Key()] = next
	return nil
}

// ListByTeam implements Store.
func (s *MemoryStore) ListByTeam(_ context.Context, teamID int64) ([]model.Rating, error) {
	defer observe("list", time.Now())
	s.mu.RLock()
	out := make([]model.Rating, 0)
	for k, r := range s.ratings {
		if k.TeamID == teamID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ratings), nil
}

// AppendScore implements ScoreLog.
func (s *MemoryStore) AppendScore(_ context.Context, sc model.Score) (model.Score, error) {
	defer observe("append_score", time.Now())
	if sc.ScoreID == "" {
		sc.ScoreID = uuid.NewString()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, sc)
	if over := len(s.scores) - s.scoreLogLimit; over > 0 {
		s.scores = append(s.scores[:0:0], s.scores[over:]...)
	}
	return sc, nil
}

// Scores returns a copy of the retained audit log, oldest first.
func (s *MemoryStore) Scores() []model.Score {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Score(nil), s.scores...)
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				n, _ := s.Count(ctx)
				metrics.UpdateRatingsTotal(n)
			}
		}
	}()
}

func observe(op string, start time.Time) {
	metrics.RecordStoreOpLatency(op, float64(time.Since(start).Microseconds())/1000)
}
