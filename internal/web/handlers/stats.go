package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/rollcall/internal/dispatch"
	"github.com/kozaktomas/rollcall/internal/emitter"
	"github.com/kozaktomas/rollcall/internal/recognizer"
)

// PipelineStats is implemented by the recognition pipeline
type PipelineStats interface {
	Stats() recognizer.Stats
}

// DispatcherStats is implemented by the event dispatcher
type DispatcherStats interface {
	Stats() dispatch.Stats
}

// MQTTStats is implemented by the MQTT emitter
type MQTTStats interface {
	Stats() emitter.Stats
}

// StatsResponse represents the stats response
type StatsResponse struct {
	StartedAt   time.Time         `json:"started_at"`
	Uptime      string            `json:"uptime"`
	GallerySize int               `json:"gallery_size"`
	Recognition *recognizer.Stats `json:"recognition,omitempty"`
	Sinks       *dispatch.Stats   `json:"sinks,omitempty"`
	MQTT        *emitter.Stats    `json:"mqtt,omitempty"`
}

// StatsHandler handles the statistics endpoint. Every source is optional.
type StatsHandler struct {
	Pipeline   PipelineStats
	Dispatcher DispatcherStats
	MQTT       MQTTStats
	Gallery    interface{ Size() int }

	startedAt time.Time
	now       func() time.Time
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler() *StatsHandler {
	return &StatsHandler{startedAt: time.Now(), now: time.Now}
}

// Get returns counters from every configured component
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		StartedAt: h.startedAt,
		Uptime:    h.now().Sub(h.startedAt).Truncate(time.Second).String(),
	}
	if h.Gallery != nil {
		resp.GallerySize = h.Gallery.Size()
	}
	if h.Pipeline != nil {
		st := h.Pipeline.Stats()
		resp.Recognition = &st
		resp.GallerySize = st.GallerySize
	}
	if h.Dispatcher != nil {
		st := h.Dispatcher.Stats()
		resp.Sinks = &st
	}
	if h.MQTT != nil {
		st := h.MQTT.Stats()
		resp.MQTT = &st
	}
	respondJSON(w, http.StatusOK, resp)
}
