package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// AttendanceEntry is a row of the attendance log
type AttendanceEntry struct {
	MemberID   *int64    `json:"member_id"`
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	Status     string    `json:"status"`
	DeviceID   string    `json:"device_id"`
	CapturedAt time.Time `json:"captured_at"`
}

// AttendanceResponse lists attendance rows, newest first
type AttendanceResponse struct {
	Entries []AttendanceEntry `json:"entries"`
	Count   int               `json:"count"`
}

// AttendanceHandler reads the persistent attendance log
type AttendanceHandler struct {
	reader database.AttendanceReader
	log    *slog.Logger
}

// NewAttendanceHandler creates a new attendance handler. reader may be nil
// when no database is configured.
func NewAttendanceHandler(reader database.AttendanceReader, logger *slog.Logger) *AttendanceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceHandler{reader: reader, log: logger}
}

// List returns up to ?limit rows
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		respondError(w, http.StatusServiceUnavailable, database.ErrNotConfigured.Error())
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	rows, err := h.reader.RecentAttendance(r.Context(), limit)
	if err != nil {
		h.log.Error("failed to read attendance", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read attendance")
		return
	}

	resp := AttendanceResponse{Entries: make([]AttendanceEntry, 0, len(rows))}
	for _, row := range rows {
		resp.Entries = append(resp.Entries, AttendanceEntry{
			MemberID:   row.MemberID,
			Name:       row.Name,
			Confidence: row.Confidence,
			Status:     row.Status,
			DeviceID:   row.DeviceID,
			CapturedAt: row.CapturedAt,
		})
	}
	resp.Count = len(resp.Entries)
	respondJSON(w, http.StatusOK, resp)
}
