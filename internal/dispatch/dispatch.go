// Package dispatch delivers new decodes to output sinks off the decode path.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/christian-lee/ft8mon/internal/report"
)

// Sink stores or forwards spots. Write is only ever called from the
// dispatcher goroutine.
type Sink interface {
	Name() string
	Write(ctx context.Context, s report.Spot) error
}

// SinkState tracks per-sink delivery counts for the status page.
type SinkState struct {
	Name      string    `json:"name"`
	Delivered int64     `json:"delivered"`
	Failed    int64     `json:"failed"`
	LastError string    `json:"last_error,omitempty"`
	LastWrite time.Time `json:"last_write,omitempty"`
}

// Dispatcher receives decodes from the cycle context and fans them out to
// sinks in order. Emit never blocks; spots are dropped when the queue is full.
type Dispatcher struct {
	syncOffset time.Duration
	station    string
	runID      string
	timeout    time.Duration

	mu      sync.RWMutex
	sinks   []Sink
	states  map[string]*SinkState
	dropped int64
	closed  bool

	ch chan report.Spot
	wg sync.WaitGroup
}

// New creates a Dispatcher. syncOffset, station and runID are stamped on
// every spot.
func New(syncOffset time.Duration, station, runID string) *Dispatcher {
	return &Dispatcher{
		syncOffset: syncOffset,
		station:    station,
		runID:      runID,
		timeout:    5 * time.Second,
		states:     make(map[string]*SinkState),
		ch:         make(chan report.Spot, 256),
	}
}

// Add registers a sink. Call before Start.
func (d *Dispatcher) Add(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
	d.states[s.Name()] = &SinkState{Name: s.Name()}
}

// Len is the number of registered sinks.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sinks)
}

// Start begins delivering. Call Stop to drain and shut down.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Emit queues a decode for delivery.
func (d *Dispatcher) Emit(dec report.Decode) {
	spot := report.NewSpot(dec, d.syncOffset, d.station, d.runID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- spot:
	default:
		d.dropped++
		slog.Warn("spot queue full, dropping", "message", spot.Message, "dropped", d.dropped)
	}
}

// Stop delivers what is queued and waits for the sinks to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	d.wg.Wait()
}

// States returns per-sink counters in registration order.
func (d *Dispatcher) States() []SinkState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]SinkState, 0, len(d.sinks))
	for _, s := range d.sinks {
		out = append(out, *d.states[s.Name()])
	}
	return out
}

// Dropped counts spots lost to a full queue.
func (d *Dispatcher) Dropped() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dropped
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	d.mu.RLock()
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.RUnlock()

	for spot := range d.ch {
		for _, s := range sinks {
			d.deliver(ctx, s, spot)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, spot report.Spot) {
	// Sinks still get the drained queue after ctx is cancelled.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	err := s.Write(wctx, spot)

	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.states[s.Name()]
	if err != nil {
		st.Failed++
		st.LastError = err.Error()
		slog.Warn("spot delivery failed", "sink", s.Name(), "message", spot.Message, "err", err)
		return
	}
	st.Delivered++
	st.LastWrite = time.Now()
}
