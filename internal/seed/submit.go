package seed

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tally/pkg/logger"
)

type playerBody struct {
	PlayerID int64 `json:"player_id"`
	TeamID   int64 `json:"team_id"`
}

type scoreBody struct {
	PlayerID int64 `json:"player_id"`
	TeamID   int64 `json:"team_id"`
	Score    int   `json:"score"`
}

type teamScore struct {
	PlayerID int64 `json:"player_id"`
	Score    int   `json:"score"`
}

type teamBody struct {
	Players []teamScore `json:"players"`
}

// counters are shared by the submit workers.
type counters struct {
	submitted atomic.Int64
	accepted  atomic.Int64
	failed    atomic.Int64
}

func (c *counters) record(err error) {
	c.submitted.Add(1)
	if err != nil {
		c.failed.Add(1)
		return
	}
	c.accepted.Add(1)
}

// submit sends the plan: players first when configured, then each team's
// first round as one batch, then every remaining score on its own. A
// failed request is counted, not fatal; verification reports what it cost.
func submit(ctx context.Context, cfg *Config, c *client, plan Plan, stats *Stats) error {
	log := logger.Get().Named("seed")
	var n counters
	start := time.Now()

	run := func(stage string, jobs []func(context.Context) error) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(cfg.Workers, 1))
		for _, job := range jobs {
			g.Go(func() error {
				err := job(gctx)
				n.record(err)
				if err != nil && cfg.Verbose {
					log.Warn(gctx, "request failed", logger.String("stage", stage), logger.Error(err))
				}
				// Only cancellation stops a stage.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				return nil
			})
		}
		err := g.Wait()
		log.Info(ctx, "stage submitted",
			logger.String("stage", stage),
			logger.Int("requests", len(jobs)),
			logger.Int64("failed", n.failed.Load()),
		)
		return err
	}

	if cfg.CreatePlayers {
		jobs := make([]func(context.Context) error, 0, len(plan.Players))
		for _, p := range plan.Players {
			jobs = append(jobs, func(ctx context.Context) error {
				return c.postJSON(ctx, c.api("/players"), playerBody{PlayerID: p.PlayerID, TeamID: p.TeamID}, http.StatusAccepted)
			})
		}
		if err := run("players", jobs); err != nil {
			return err
		}
	}

	batches := make(map[int64][]teamScore)
	singles := make([]func(context.Context) error, 0, plan.ScoreCount())
	for _, p := range plan.Players {
		for i, s := range p.Scores {
			if i == 0 {
				batches[p.TeamID] = append(batches[p.TeamID], teamScore{PlayerID: p.PlayerID, Score: s})
				continue
			}
			singles = append(singles, func(ctx context.Context) error {
				return c.postJSON(ctx, c.api("/scores"), scoreBody{PlayerID: p.PlayerID, TeamID: p.TeamID, Score: s}, http.StatusAccepted)
			})
		}
	}

	teamJobs := make([]func(context.Context) error, 0, len(batches))
	for _, teamID := range plan.Teams() {
		players, ok := batches[teamID]
		if !ok {
			continue
		}
		teamJobs = append(teamJobs, func(ctx context.Context) error {
			return c.postJSON(ctx, c.api("/teams/%d/ratings", teamID), teamBody{Players: players}, http.StatusAccepted)
		})
	}
	if err := run("teams", teamJobs); err != nil {
		return err
	}
	if err := run("scores", singles); err != nil {
		return err
	}

	stats.Submitted = int(n.submitted.Load())
	stats.Accepted = int(n.accepted.Load())
	stats.Failed = int(n.failed.Load())
	stats.SubmitDuration = time.Since(start)
	return nil
}
