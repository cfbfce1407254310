package api

import (
	"net/http"
)

type scoreRequest struct {
	PlayerID int64 `json:"player_id" validate:"min=1"`
	TeamID   int64 `json:"team_id" validate:"min=1"`
	Score    *int  `json:"score" validate:"required,min=0,max=10"`
}

type playerRequest struct {
	PlayerID int64 `json:"player_id" validate:"min=1"`
	TeamID   int64 `json:"team_id" validate:"min=1"`
}

// EventsHandler accepts the requests that become broker events.
type EventsHandler struct {
	svc RatingService
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(svc RatingService) *EventsHandler {
	return &EventsHandler{svc: svc}
}

// HandlePostScore handles POST /scores. The score is folded asynchronously.
func (h *EventsHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	var req scoreRequest
	if err := decodeRequest(op, r, &req); err != nil {
		writeError(w, err)
		return
	}
	sc, err := h.svc.CreateScore(r.Context(), req.PlayerID, req.TeamID, *req.Score)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, sc)
}

// HandlePostPlayer handles POST /players.
func (h *EventsHandler) HandlePostPlayer(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_player"
	var req playerRequest
	if err := decodeRequest(op, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.CreatePlayer(r.Context(), req.PlayerID, req.TeamID); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "accepted"})
}
