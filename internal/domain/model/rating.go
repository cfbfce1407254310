// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Accepted score range, inclusive.
const (
	MinScore = 0
	MaxScore = 10
)

// Key identifies one rating: a player within a team.
type Key struct {
	PlayerID int64
	TeamID   int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.TeamID, k.PlayerID)
}

// Rating is the running average of every score folded for a key.
// AverageScore is always the mean of exactly TotalOfScores observations.
type Rating struct {
	PlayerID      int64     `json:"player_id"`
	TeamID        int64     `json:"team_id"`
	AverageScore  float64   `json:"average_score"`
	TotalOfScores int64     `json:"total_of_scores"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Key returns the rating's composite key.
func (r Rating) Key() Key {
	return Key{PlayerID: r.PlayerID, TeamID: r.TeamID}
}

// Score is one accepted observation, kept as an audit record.
type Score struct {
	ScoreID   string    `json:"score_id"`
	PlayerID  int64     `json:"player_id"`
	TeamID    int64     `json:"team_id"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the key the score folds into.
func (s Score) Key() Key {
	return Key{PlayerID: s.PlayerID, TeamID: s.TeamID}
}

// ValidateScore reports whether v is inside the accepted range.
func ValidateScore(v int) error {
	if v < MinScore || v > MaxScore {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidScore, v, MinScore, MaxScore)
	}
	return nil
}
