package database

import (
	"context"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/dispatch"
)

// Sink writes dispatched events to the attendance log.
type Sink struct {
	store    AttendanceWriter
	deviceID string
	closer   func() error
}

// NewSink wraps store. If store also implements Close, closing the sink
// closes it.
func NewSink(store AttendanceWriter, deviceID string) *Sink {
	s := &Sink{store: store, deviceID: deviceID}
	if c, ok := store.(interface{ Close() error }); ok {
		s.closer = c.Close
	}
	return s
}

func (s *Sink) Name() string { return "database" }

func (s *Sink) Deliver(ctx context.Context, event dispatch.Event) error {
	status := event.Status
	if status == "" {
		status = dispatch.StatusPresent
	}
	err := s.store.InsertAttendance(ctx, AttendanceRecord{
		MemberID:   event.MemberID,
		Name:       event.Label,
		Confidence: event.Confidence,
		Status:     string(status),
		DeviceID:   s.deviceID,
		CapturedAt: event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
