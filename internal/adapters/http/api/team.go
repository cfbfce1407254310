package api

import (
	"fmt"
	"net/http"

	"github.com/okian/tally/internal/domain/types"
)

type teamRatingRequest struct {
	Players []playerScoreRequest `json:"players" validate:"required,min=1,dive"`
}

type playerScoreRequest struct {
	PlayerID int64 `json:"player_id" validate:"min=1"`
	Score    *int  `json:"score" validate:"required,min=0,max=10"`
}

// TeamHandler serves team-wide reads and batch scoring.
type TeamHandler struct {
	svc RatingService
}

// NewTeamHandler creates a new team handler.
func NewTeamHandler(svc RatingService) *TeamHandler {
	return &TeamHandler{svc: svc}
}

// HandlePostTeamRatings handles POST /teams/{team_id}/ratings: one score per
// listed player.
func (h *TeamHandler) HandlePostTeamRatings(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_team_ratings"
	teamID, err := pathID(r, "team_id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req teamRatingRequest
	if err := decodeRequest(op, r, &req); err != nil {
		writeError(w, err)
		return
	}

	players := make([]types.PlayerScore, len(req.Players))
	for i, p := range req.Players {
		players[i] = types.PlayerScore{PlayerID: p.PlayerID, Score: *p.Score}
	}
	if err := h.svc.RatePlayers(r.Context(), teamID, players); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, types.TeamRatingAck{Status: "accepted", TeamID: teamID, Accepted: len(players)})
}

// HandleGetTeamRatings handles GET /teams/{team_id}/ratings.
func (h *TeamHandler) HandleGetTeamRatings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_team_ratings"
	teamID, err := pathID(r, "team_id")
	if err != nil {
		writeError(w, err)
		return
	}
	ratings, err := h.svc.TeamRatings(r.Context(), teamID)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if len(ratings) == 0 {
		writeError(w, WrapKind(op, ErrNotFound, fmt.Errorf("no ratings for team %d", teamID)))
		return
	}
	writeJSON(w, http.StatusOK, types.TeamRatings{TeamID: teamID, Players: ratings})
}
