package api

import (
	"net/http"
)

// ConsumerHandler exposes start and stop of inbound consumption.
type ConsumerHandler struct {
	ctl ConsumerControl
}

// NewConsumerHandler creates a new consumer handler.
func NewConsumerHandler(ctl ConsumerControl) *ConsumerHandler {
	return &ConsumerHandler{ctl: ctl}
}

// HandleStart handles POST /consumer/start.
func (h *ConsumerHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.ctl.StartConsumer(r.Context()); err != nil {
		writeError(w, Wrap("api.consumer_start", err))
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "started"})
}

// HandleStop handles POST /consumer/stop.
func (h *ConsumerHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.ctl.StopConsumer(r.Context()); err != nil {
		writeError(w, Wrap("api.consumer_stop", err))
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "stopped"})
}
