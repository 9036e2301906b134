package dispatch

import (
	"encoding/json"
	"time"
)

// Status is the attendance status carried by an event.
type Status string

const StatusPresent Status = "present"

// Event is an identity recognized in a frame that passed the cooldown filter.
type Event struct {
	Label      string
	Confidence float64
	Timestamp  time.Time
	MemberID   *int64
	Status     Status
}

// Payload is the flat JSON form of an event published to subscribers.
type Payload struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
	MemberID   *int64  `json:"member_id"`
	Status     Status  `json:"status"`
}

// Payload converts the event to its wire representation.
func (e Event) Payload() Payload {
	status := e.Status
	if status == "" {
		status = StatusPresent
	}
	return Payload{
		Name:       e.Label,
		Confidence: e.Confidence,
		Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
		MemberID:   e.MemberID,
		Status:     status,
	}
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Payload())
}
