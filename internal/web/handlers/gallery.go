package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/kozaktomas/rollcall/internal/gallery"
)

// ReloadFunc reloads the gallery and everything derived from it.
type ReloadFunc func(ctx context.Context) error

// LabelCount is the number of gallery records stored under a label
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// GalleryResponse describes the loaded gallery
type GalleryResponse struct {
	Path     string       `json:"path"`
	Size     int          `json:"size"`
	Dim      int          `json:"dim"`
	Labels   []LabelCount `json:"labels"`
	Reloaded bool         `json:"reloaded,omitempty"`
}

// GalleryHandler handles gallery endpoints
type GalleryHandler struct {
	gallery *gallery.Gallery
	reload  ReloadFunc
	log     *slog.Logger
}

// NewGalleryHandler creates a new gallery handler. A nil reload falls back
// to re-reading the gallery file.
func NewGalleryHandler(g *gallery.Gallery, reload ReloadFunc, logger *slog.Logger) *GalleryHandler {
	if reload == nil {
		reload = func(context.Context) error { return g.Reload() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GalleryHandler{gallery: g, reload: reload, log: logger}
}

func (h *GalleryHandler) describe() GalleryResponse {
	counts := h.gallery.Counts()
	labels := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		labels = append(labels, LabelCount{Label: label, Count: n})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Label < labels[j].Label })

	return GalleryResponse{
		Path:   h.gallery.Path(),
		Size:   h.gallery.Size(),
		Dim:    h.gallery.Dim(),
		Labels: labels,
	}
}

// Get returns the gallery summary
func (h *GalleryHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.describe())
}

// Reload re-reads the gallery file. On failure the previous gallery stays
// in use.
func (h *GalleryHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.reload(r.Context()); err != nil {
		h.log.Error("gallery reload failed", "error", sanitizeForLog(err.Error()))
		respondError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}
	resp := h.describe()
	resp.Reloaded = true
	respondJSON(w, http.StatusOK, resp)
}
