package api

import (
	"fmt"
	"net/http"
)

// RatingHandler serves single player ratings.
type RatingHandler struct {
	svc RatingService
}

// NewRatingHandler creates a new rating handler.
func NewRatingHandler(svc RatingService) *RatingHandler {
	return &RatingHandler{svc: svc}
}

// HandleGetRating handles GET /teams/{team_id}/players/{player_id}/rating.
func (h *RatingHandler) HandleGetRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rating"
	teamID, err := pathID(r, "team_id")
	if err != nil {
		writeError(w, err)
		return
	}
	playerID, err := pathID(r, "player_id")
	if err != nil {
		writeError(w, err)
		return
	}

	rating, found, err := h.svc.GetPlayerRating(r.Context(), playerID, teamID)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if !found {
		writeError(w, WrapKind(op, ErrNotFound, fmt.Errorf("no rating for player %d in team %d", playerID, teamID)))
		return
	}
	writeJSON(w, http.StatusOK, rating)
}
