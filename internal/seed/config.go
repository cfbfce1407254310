// Package seed drives a running tally service over HTTP: it creates players,
// submits scores for them and checks that every rating converges to the mean
// of what was submitted.
package seed

import "time"

// Config holds the seeder settings.
type Config struct {
	BaseURL string // Service root, e.g. http://localhost:9080
	Prefix  string // API prefix the service was started with

	Teams           int
	PlayersPerTeam  int
	ScoresPerPlayer int

	// CreatePlayers posts player_created first, so every rating also
	// carries the service's default score.
	CreatePlayers bool
	DefaultScore  int

	Workers int
	Timeout time.Duration // per HTTP request
	Settle  time.Duration // how long verification waits for convergence
	Seed    uint64        // generator seed, 0 picks one from the clock

	OutputFile string // optional JSON dump of the plan
	Verbose    bool
}

// Stats summarizes one run.
type Stats struct {
	Players        int
	Scores         int
	Submitted      int
	Accepted       int
	Failed         int
	Verified       int
	Mismatched     int
	StartTime      time.Time
	SubmitDuration time.Duration
	Duration       time.Duration
}
