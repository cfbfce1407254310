// Package types contains the shapes shared between the service and its API.
package types

import "github.com/okian/tally/internal/domain/model"

// PlayerScore is one player's score inside a team rating request.
type PlayerScore struct {
	PlayerID int64 `json:"player_id"`
	Score    int   `json:"score"`
}

// TeamRatings lists the ratings of every rated player in a team.
type TeamRatings struct {
	TeamID  int64          `json:"team_id"`
	Players []model.Rating `json:"players"`
}

// TeamRatingAck acknowledges a batch of scores for a team.
type TeamRatingAck struct {
	Status   string `json:"status"`
	TeamID   int64  `json:"team_id"`
	Accepted int    `json:"accepted"`
}

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Health reports whether the service can do its job.
type Health struct {
	Status           string `json:"status"`
	ConsumerRunning  bool   `json:"consumer_running"`
	BrokerConnected  bool   `json:"broker_connected"`
	StoreReachable   bool   `json:"store_reachable"`
	Ratings          int    `json:"ratings"`
	PublisherPending int    `json:"publisher_pending"`
}

// Healthy reports whether the store is up and, while consuming, the broker too.
func (h Health) Healthy() bool {
	return h.StoreReachable && (h.BrokerConnected || !h.ConsumerRunning)
}
