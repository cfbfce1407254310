package seed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/types"
	"github.com/okian/tally/pkg/logger"
)

const (
	pollInterval = 250 * time.Millisecond
	tolerance    = 1e-9
)

// ErrMismatch is returned when ratings did not converge to the expected means.
var ErrMismatch = errors.New("ratings do not match submitted scores")

// Mismatch describes one player whose rating is off.
type Mismatch struct {
	Key          model.Key
	WantAverage  float64
	WantTotal    int64
	GotAverage   float64
	GotTotal     int64
	RatingAbsent bool
}

func (m Mismatch) String() string {
	if m.RatingAbsent {
		return fmt.Sprintf("%s: no rating, want %.4f over %d", m.Key, m.WantAverage, m.WantTotal)
	}
	return fmt.Sprintf("%s: got %.4f over %d, want %.4f over %d", m.Key, m.GotAverage, m.GotTotal, m.WantAverage, m.WantTotal)
}

// verify polls every team until each rating matches its expected mean or
// cfg.Settle runs out.
func verify(ctx context.Context, cfg *Config, c *client, plan Plan, stats *Stats) ([]Mismatch, error) {
	log := logger.Get().Named("seed")
	deadline := time.Now().Add(cfg.Settle)

	var mismatches []Mismatch
	for attempt := 1; ; attempt++ {
		var err error
		mismatches, err = compare(ctx, cfg, c, plan)
		if err != nil {
			return nil, err
		}
		if len(mismatches) == 0 || time.Now().After(deadline) {
			break
		}
		if cfg.Verbose {
			log.Info(ctx, "waiting for ratings to converge",
				logger.Int("attempt", attempt),
				logger.Int("pending", len(mismatches)),
			)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	stats.Mismatched = len(mismatches)
	stats.Verified = len(plan.Players) - len(mismatches)
	if len(mismatches) > 0 {
		return mismatches, fmt.Errorf("%w: %d of %d players", ErrMismatch, len(mismatches), len(plan.Players))
	}
	return nil, nil
}

func compare(ctx context.Context, cfg *Config, c *client, plan Plan) ([]Mismatch, error) {
	byTeam := make(map[int64]map[int64]model.Rating)
	for _, teamID := range plan.Teams() {
		var team types.TeamRatings
		status, err := c.getJSON(ctx, c.api("/teams/%d/ratings", teamID), http.StatusOK, &team)
		switch {
		case status == http.StatusNotFound:
			byTeam[teamID] = nil
			continue
		case err != nil:
			return nil, fmt.Errorf("read team %d: %w", teamID, err)
		}
		ratings := make(map[int64]model.Rating, len(team.Players))
		for _, r := range team.Players {
			ratings[r.PlayerID] = r
		}
		byTeam[teamID] = ratings
	}

	var out []Mismatch
	for _, p := range plan.Players {
		avg, total := p.Expected(cfg.CreatePlayers, cfg.DefaultScore)
		if total == 0 {
			continue
		}
		m := Mismatch{Key: model.Key{PlayerID: p.PlayerID, TeamID: p.TeamID}, WantAverage: avg, WantTotal: total}
		r, ok := byTeam[p.TeamID][p.PlayerID]
		if !ok {
			m.RatingAbsent = true
			out = append(out, m)
			continue
		}
		m.GotAverage, m.GotTotal = r.AverageScore, r.TotalOfScores
		if r.TotalOfScores != total || math.Abs(r.AverageScore-avg) > tolerance {
			out = append(out, m)
		}
	}
	return out, nil
}
