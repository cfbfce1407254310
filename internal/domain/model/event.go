package model

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EventType tags a domain event.
type EventType string

// Known event types.
const (
	EventScoreCreated  EventType = "score_created"
	EventPlayerCreated EventType = "player_created"
	EventRatingUpdated EventType = "rating_updated"
)

// Envelope is the wire form of every domain event.
type Envelope struct {
	EventID    string          `json:"event_id,omitempty"`
	EventType  EventType       `json:"event_type"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at,omitempty"`
}

// ScoreCreated carries one score to fold.
type ScoreCreated struct {
	PlayerID int64 `json:"player_id"`
	TeamID   int64 `json:"team_id"`
	Score    int   `json:"score"`
}

// PlayerCreated announces a new player in a team.
type PlayerCreated struct {
	PlayerID int64 `json:"player_id"`
	TeamID   int64 `json:"team_id"`
}

// RatingUpdated is emitted after every successful fold.
type RatingUpdated struct {
	PlayerID      int64     `json:"player_id"`
	TeamID        int64     `json:"team_id"`
	AverageScore  float64   `json:"average_score"`
	TotalOfScores int64     `json:"total_of_scores"`
	LastUpdated   time.Time `json:"last_updated"`
}

// NewEvent wraps payload in an envelope with a fresh id and timestamp.
func NewEvent(t EventType, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  t,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// RatingUpdatedEvent builds the event announcing r.
func RatingUpdatedEvent(r Rating) (Envelope, error) {
	return NewEvent(EventRatingUpdated, RatingUpdated{
		PlayerID:      r.PlayerID,
		TeamID:        r.TeamID,
		AverageScore:  r.AverageScore,
		TotalOfScores: r.TotalOfScores,
		LastUpdated:   r.LastUpdated,
	})
}

// Encode renders the envelope as UTF-8 JSON.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a message body. Bodies that are not JSON objects or carry no
// event_type fail with ErrDecode.
func Decode(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if e.EventType == "" {
		return Envelope{}, fmt.Errorf("%w: missing event_type", ErrDecode)
	}
	return e, nil
}

// DecodeData unmarshals the payload into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrDecode, e.EventType)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %w", ErrDecode, e.EventType, err)
	}
	return nil
}

// RoutingKey returns the rating key the event targets, or the event type when
// the payload has no player/team fields.
func (e Envelope) RoutingKey() string {
	var k struct {
		PlayerID *int64 `json:"player_id"`
		TeamID   *int64 `json:"team_id"`
	}
	if err := json.Unmarshal(e.Data, &k); err != nil || k.PlayerID == nil || k.TeamID == nil {
		return string(e.EventType)
	}
	return Key{PlayerID: *k.PlayerID, TeamID: *k.TeamID}.String()
}
