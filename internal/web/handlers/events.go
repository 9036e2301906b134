package handlers

import (
	"net/http"

	"github.com/kozaktomas/rollcall/internal/dispatch"
)

// EventsResponse lists recently dispatched events, newest first
type EventsResponse struct {
	Events []dispatch.Payload `json:"events"`
	Count  int                `json:"count"`
}

// EventsHandler serves the in-memory ring of recent events
type EventsHandler struct {
	recent *dispatch.Recent
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(recent *dispatch.Recent) *EventsHandler {
	return &EventsHandler{recent: recent}
}

// List returns up to ?limit recent events
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	resp := EventsResponse{Events: []dispatch.Payload{}}
	if h.recent != nil {
		for _, e := range h.recent.List(limit) {
			resp.Events = append(resp.Events, e.Payload())
		}
	}
	resp.Count = len(resp.Events)
	respondJSON(w, http.StatusOK, resp)
}
