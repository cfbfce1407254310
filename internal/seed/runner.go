package seed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/okian/tally/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
	maxReportedMismatch = 10
)

// ErrUnhealthy is returned when the service does not report healthy.
var ErrUnhealthy = errors.New("service unhealthy")

// Run executes a complete seeding run: health check, plan, submit, verify.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("seed")
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Prefix, cfg.Timeout)

	log.Info(ctx, "starting tally seed run",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("teams", cfg.Teams),
		logger.Int("players_per_team", cfg.PlayersPerTeam),
		logger.Int("scores_per_player", cfg.ScoresPerPlayer),
		logger.Int("workers", cfg.Workers),
		logger.Bool("create_players", cfg.CreatePlayers),
	)

	if err := checkHealth(ctx, c); err != nil {
		return stats, err
	}

	plan := Generate(cfg)
	stats.Players = len(plan.Players)
	stats.Scores = plan.ScoreCount()
	log.Info(ctx, "plan generated",
		logger.Int64("seed", int64(plan.Seed)),
		logger.Int("players", stats.Players),
		logger.Int("scores", stats.Scores),
	)
	if cfg.OutputFile != "" {
		if err := savePlan(cfg.OutputFile, plan); err != nil {
			log.Warn(ctx, "failed to save plan", logger.Error(err))
		}
	}

	if err := submit(ctx, cfg, c, plan, stats); err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}

	mismatches, err := verify(ctx, cfg, c, plan, stats)
	stats.Duration = time.Since(stats.StartTime)
	displayStats(ctx, stats)
	for i, m := range mismatches {
		if i == maxReportedMismatch {
			log.Warn(ctx, "more mismatches omitted", logger.Int("omitted", len(mismatches)-i))
			break
		}
		log.Warn(ctx, "rating mismatch", logger.String("detail", m.String()))
	}
	if err != nil {
		return stats, err
	}
	log.Info(ctx, "seed run verified")
	return stats, nil
}

// checkHealth verifies the service is up and its pipeline is connected.
func checkHealth(ctx context.Context, c *client) error {
	status, err := c.getJSON(ctx, c.root("/healthz"), http.StatusOK, nil)
	if status == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	return nil
}

// savePlan writes the plan as JSON so a run can be replayed with -seed.
func savePlan(filename string, plan Plan) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

func displayStats(ctx context.Context, stats *Stats) {
	var perSecond float64
	if stats.SubmitDuration > 0 {
		perSecond = float64(stats.Submitted) / stats.SubmitDuration.Seconds()
	}
	logger.Get().Named("seed").Info(ctx, "final statistics",
		logger.Int("players", stats.Players),
		logger.Int("scores", stats.Scores),
		logger.Int("requests_submitted", stats.Submitted),
		logger.Int("requests_accepted", stats.Accepted),
		logger.Int("requests_failed", stats.Failed),
		logger.Int("players_verified", stats.Verified),
		logger.Int("players_mismatched", stats.Mismatched),
		logger.Duration("duration", stats.Duration),
		logger.Float64("requests_per_second", perSecond),
	)
}
