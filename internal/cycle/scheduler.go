package cycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/christian-lee/ft8mon/internal/audio"
	"github.com/christian-lee/ft8mon/internal/decoder"
	"github.com/christian-lee/ft8mon/internal/report"
)

// Clock is the scheduler's view of time.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type wallClock struct{}

func (wallClock) Now() time.Time        { return time.Now() }
func (wallClock) Sleep(d time.Duration) { time.Sleep(d) }

// WallClock is the real clock.
var WallClock Clock = wallClock{}

// Gate is polled once per loop iteration.
type Gate interface {
	Stopping() bool
}

// Outcome classifies a finished cycle.
type Outcome int

const (
	Decoded Outcome = iota
	Skipped         // window failed alignment, engine not called
	Failed          // source or engine error
)

func (o Outcome) String() string {
	switch o {
	case Decoded:
		return "decoded"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// CycleResult describes one pass through the cycle steps.
type CycleResult struct {
	CycleStart   time.Time
	Outcome      Outcome
	Decodes      int
	Duplicates   int
	Samples      int
	NominalStart int
	Acquire      time.Duration // time spent fetching the window
	Elapsed      time.Duration // time spent in the engine
	Err          error
}

// Observer is told about every cycle after its summary is printed.
type Observer interface {
	ObserveCycle(res CycleResult)
}

// Options configure a Scheduler. Zero values pick defaults.
type Options struct {
	Timing    Timing
	Params    decoder.Params
	Clock     Clock
	Gate      Gate
	Summary   io.Writer
	Observers []Observer
	// ReplayRate is the rate recordings are brought to before decoding.
	// Zero means decoder.JT9Rate.
	ReplayRate int
}

// Scheduler runs the decode loop. It owns the source exclusively.
type Scheduler struct {
	src       audio.Source
	engine    decoder.Engine
	cc        *CycleContext
	timing    Timing
	clock     Clock
	gate      Gate
	summary   io.Writer
	observers []Observer
	replay    int
	params    atomic.Pointer[decoder.Params]
}

type neverStop struct{}

func (neverStop) Stopping() bool { return false }

// NewScheduler wires a scheduler. src may be nil for file replay.
func NewScheduler(src audio.Source, engine decoder.Engine, cc *CycleContext, opts Options) *Scheduler {
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	if opts.Params == (decoder.Params{}) {
		opts.Params = decoder.DefaultParams()
	}
	if opts.Clock == nil {
		opts.Clock = WallClock
	}
	if opts.Gate == nil {
		opts.Gate = neverStop{}
	}
	if opts.Summary == nil {
		opts.Summary = io.Discard
	}
	if opts.ReplayRate <= 0 {
		opts.ReplayRate = decoder.JT9Rate
	}
	s := &Scheduler{
		src:       src,
		engine:    engine,
		cc:        cc,
		timing:    opts.Timing,
		clock:     opts.Clock,
		gate:      opts.Gate,
		summary:   opts.Summary,
		observers: opts.Observers,
		replay:    opts.ReplayRate,
	}
	s.SetParams(opts.Params)
	return s
}

// SetParams replaces the decode parameters from the next cycle on.
func (s *Scheduler) SetParams(p decoder.Params) {
	s.params.Store(&p)
}

func (s *Scheduler) Params() decoder.Params {
	return *s.params.Load()
}

func (s *Scheduler) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Run polls the clock and decodes every cycle until the gate closes or ctx
// ends. A decode in flight is never interrupted by the gate.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("cycle loop started",
		"rate", s.src.Rate(),
		"period", s.timing.Period,
		"wake_after", s.timing.WakeAfter,
	)
	for !s.gate.Stopping() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		now := s.clock.Now()
		if s.timing.Due(now) {
			if _, err := s.RunCycle(ctx, now); err != nil && !errors.Is(err, ErrMisaligned) {
				slog.Error("cycle failed", "err", err)
			}
			s.clock.Sleep(s.timing.PostCycleSleep)
		}
		s.clock.Sleep(s.timing.IdlePoll)
	}
	slog.Info("cycle loop stopped")
	return nil
}

// RunCycle fetches the newest cycle-length window, aligns it and decodes it.
// polledAt is the clock reading that found the cycle due.
func (s *Scheduler) RunCycle(ctx context.Context, polledAt time.Time) (CycleResult, error) {
	rate := s.src.Rate()
	want := s.timing.Samples(rate)

	samples, first, err := s.src.Get(want, audio.DiscardOlder)
	res := CycleResult{Samples: len(samples), Acquire: s.clock.Now().Sub(polledAt)}
	slog.Info("get took about", "seconds", fmt.Sprintf("%5.2f", res.Acquire.Seconds()), "samples", len(samples))
	if err != nil {
		res.Outcome, res.Err = Failed, fmt.Errorf("get samples: %w", err)
		s.notify(res)
		return res, res.Err
	}

	win, err := s.timing.Align(first, len(samples), rate)
	res.CycleStart, res.NominalStart = win.CycleStart, win.NominalStart
	if err != nil {
		slog.Warn("didn't try to decode", "err", err, "first", first)
		res.Outcome, res.Err = Skipped, err
		s.notify(res)
		return res, err
	}

	return s.decode(ctx, res, FitWindow(samples, want), rate)
}

// decode resets the context, runs the engine synchronously and prints the
// summary line.
func (s *Scheduler) decode(ctx context.Context, res CycleResult, samples []float64, rate int) (CycleResult, error) {
	s.cc.Reset(res.CycleStart)

	req := decoder.Request{
		Samples:      samples,
		NominalStart: res.NominalStart,
		Rate:         rate,
		Params:       s.Params(),
	}
	began := s.clock.Now()
	err := s.engine.Decode(ctx, req, s.cc)
	res.Elapsed = s.clock.Now().Sub(began)
	res.Decodes = s.cc.Tally()
	res.Duplicates = s.cc.Duplicates()
	res.Outcome = Decoded

	if werr := report.Summary(s.summary, res.CycleStart, res.Decodes, res.Elapsed); werr != nil {
		slog.Warn("write summary", "err", werr)
	}
	if err != nil {
		res.Outcome, res.Err = Failed, fmt.Errorf("decode: %w", err)
	}
	s.notify(res)
	return res, res.Err
}

func (s *Scheduler) notify(res CycleResult) {
	for _, o := range s.observers {
		o.ObserveCycle(res)
	}
}
