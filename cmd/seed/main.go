// Command seed loads a running tally service with players and scores and
// verifies that every rating converges to the mean of what it was sent.
package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/tally/internal/seed"
	"github.com/okian/tally/pkg/logger"
)

// Default configuration constants.
const (
	defaultTeams          = 10
	defaultPlayers        = 25
	defaultScores         = 20
	defaultWorkers        = 2 // multiplier for runtime.NumCPU()
	defaultTimeout        = 10 * time.Second
	defaultSettle         = 30 * time.Second
	defaultRunTimeout     = 10 * time.Minute
	defaultPlayerScore    = 5
	defaultLogLevel       = "info"
	verboseLogLevel       = "debug"
	exitVerificationError = 2
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		prefix    = flag.String("prefix", "", "API prefix the service is mounted under")
		teams     = flag.Int("teams", defaultTeams, "Number of teams")
		players   = flag.Int("players", defaultPlayers, "Players per team")
		scores    = flag.Int("scores", defaultScores, "Scores per player")
		create    = flag.Bool("create-players", true, "Create players before scoring them")
		defScore  = flag.Int("default-score", defaultPlayerScore, "Score the service folds for a created player")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent requests")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle    = flag.Duration("settle", defaultSettle, "How long to wait for ratings to converge")
		seedValue = flag.Uint64("seed", 0, "Generator seed (0 picks one)")
		output    = flag.String("output", "", "Write the generated plan to this JSON file")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	level := defaultLogLevel
	if *verbose {
		level = verboseLogLevel
	}
	if err := logger.InitWith(logger.Options{Level: level}); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &seed.Config{
		BaseURL:         *baseURL,
		Prefix:          *prefix,
		Teams:           *teams,
		PlayersPerTeam:  *players,
		ScoresPerPlayer: *scores,
		CreatePlayers:   *create,
		DefaultScore:    *defScore,
		Workers:         *workers,
		Timeout:         *timeout,
		Settle:          *settle,
		Seed:            *seedValue,
		OutputFile:      *output,
		Verbose:         *verbose,
	}

	if _, err := seed.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "seed run failed", logger.Error(err))
		os.Exit(exitVerificationError)
	}
}
