package dispatch

import "context"

// Sink delivers identity events to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
	Close() error
}

// NopSink stands in for a destination that is not configured.
type NopSink struct {
	SinkName string
}

func (s NopSink) Name() string {
	if s.SinkName == "" {
		return "nop"
	}
	return s.SinkName
}

func (NopSink) Deliver(context.Context, Event) error { return nil }

func (NopSink) Close() error { return nil }
