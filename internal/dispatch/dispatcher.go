// Package dispatch fans identity events out to independent sinks. Each sink
// has its own worker and bounded queue, so a slow or failing sink never
// delays the recognizer or the other sinks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultQueueSize = 64
	DefaultTimeout   = 5 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	// QueueSize bounds the number of pending events per sink.
	QueueSize int
	// Timeout limits a single delivery.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Dispatched uint64               `json:"dispatched"`
	Sinks      map[string]SinkStats `json:"sinks"`
}

// SinkStats holds the counters of a single sink.
type SinkStats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}

type worker struct {
	sink  Sink
	queue chan Event

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Dispatcher delivers each event to every sink. Deliveries are not retried
// and their failures never reach the caller.
type Dispatcher struct {
	workers []*worker
	timeout time.Duration
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	dispatched atomic.Uint64
}

// New starts one worker per sink. Nil sinks are ignored.
func New(sinks []Sink, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Dispatcher{
		timeout: opts.Timeout,
		log:     opts.Logger,
	}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		w := &worker{sink: s, queue: make(chan Event, opts.QueueSize)}
		d.workers = append(d.workers, w)
		d.wg.Add(1)
		go d.run(w)
	}
	return d
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.workers))
	for i, w := range d.workers {
		names[i] = w.sink.Name()
	}
	return names
}

// Dispatch queues event for every sink without blocking. A sink whose queue
// is full loses the event.
func (d *Dispatcher) Dispatch(event Event) {
	d.dispatched.Add(1)

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, w := range d.workers {
		if d.closed {
			w.dropped.Add(1)
			continue
		}
		select {
		case w.queue <- event:
		default:
			w.dropped.Add(1)
			d.log.Warn("sink queue full, event dropped",
				"sink", w.sink.Name(), "label", event.Label)
		}
	}
}

func (d *Dispatcher) run(w *worker) {
	defer d.wg.Done()

	for event := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := deliver(ctx, w.sink, event)
		cancel()

		if err != nil {
			w.failed.Add(1)
			d.log.Error("sink delivery failed",
				"sink", w.sink.Name(), "label", event.Label, "error", err)
			continue
		}
		w.delivered.Add(1)
		d.log.Debug("event delivered", "sink", w.sink.Name(), "label", event.Label)
	}
}

func deliver(ctx context.Context, s Sink, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.Deliver(ctx, event)
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	st := Stats{
		Dispatched: d.dispatched.Load(),
		Sinks:      make(map[string]SinkStats, len(d.workers)),
	}
	for _, w := range d.workers {
		st.Sinks[w.sink.Name()] = SinkStats{
			Delivered: w.delivered.Load(),
			Failed:    w.failed.Load(),
			Dropped:   w.dropped.Load(),
			Queued:    len(w.queue),
		}
	}
	return st
}

// Close stops accepting events, waits for queued deliveries and closes every
// sink. If ctx expires first the sinks are closed anyway.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, w := range d.workers {
		close(w.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("drain sink queues: %w", ctx.Err()))
	}

	for _, w := range d.workers {
		if err := w.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", w.sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
