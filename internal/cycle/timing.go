// Package cycle aligns the sample stream with wall-clock FT8 cycles and
// drives one decode per cycle.
package cycle

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMisaligned means a window does not hold enough signal after the
// nominal start to be worth decoding.
var ErrMisaligned = errors.New("window misaligned with cycle")

// Timing holds the cycle constants. The defaults are the FT8 ones.
type Timing struct {
	Period         time.Duration // cycle length
	WakeAfter      time.Duration // offset into the cycle at which it is considered complete
	SyncOffset     time.Duration // nominal start of a transmission within the cycle
	MinSignal      time.Duration // signal required after SyncOffset
	IdlePoll       time.Duration
	PostCycleSleep time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Period:         15 * time.Second,
		WakeAfter:      14 * time.Second,
		SyncOffset:     500 * time.Millisecond,
		MinSignal:      10 * time.Second,
		IdlePoll:       100 * time.Millisecond,
		PostCycleSleep: 2 * time.Second,
	}
}

// Validate checks that the constants keep their relative order.
func (t Timing) Validate() error {
	switch {
	case t.SyncOffset <= 0:
		return fmt.Errorf("sync offset must be positive, got %s", t.SyncOffset)
	case t.WakeAfter <= t.SyncOffset:
		return fmt.Errorf("wake_after %s must follow sync_offset %s", t.WakeAfter, t.SyncOffset)
	case t.Period <= t.WakeAfter:
		return fmt.Errorf("period %s must exceed wake_after %s", t.Period, t.WakeAfter)
	case t.SyncOffset+t.MinSignal > t.Period:
		return fmt.Errorf("sync_offset %s + min_signal %s exceeds period %s", t.SyncOffset, t.MinSignal, t.Period)
	case t.IdlePoll <= 0:
		return fmt.Errorf("idle poll must be positive, got %s", t.IdlePoll)
	}
	return nil
}

// Due reports whether now falls in the final stretch of its cycle.
func (t Timing) Due(now time.Time) bool {
	return now.Sub(t.floor(now)) >= t.WakeAfter
}

// Window locates a cycle inside a fetched sample buffer.
type Window struct {
	CycleStart   time.Time
	NominalStart int // sample index of SyncOffset into CycleStart
}

// Align derives the cycle from the timestamp of the first sample rather
// than the wall clock, since fetching may take long enough to cross a
// boundary. The cycle is the one containing the end of the buffer.
func (t Timing) Align(first time.Time, n, rate int) (Window, error) {
	if n <= 0 || rate <= 0 {
		return Window{}, fmt.Errorf("%w: %d samples at %d Hz", ErrMisaligned, n, rate)
	}
	end := first.Add(time.Duration(float64(n) / float64(rate) * float64(time.Second)))
	start := t.floor(end)
	into := end.Sub(start) - t.SyncOffset
	nominal := int(math.Round(float64(n) - float64(rate)*into.Seconds()))

	w := Window{CycleStart: start, NominalStart: nominal}
	need := int(t.MinSignal.Seconds() * float64(rate))
	if nominal < 0 || nominal+need >= n {
		return w, fmt.Errorf("%w: nominal start %d, %d samples", ErrMisaligned, nominal, n)
	}
	return w, nil
}

func (t Timing) floor(at time.Time) time.Time {
	ns := at.UnixNano()
	p := t.Period.Nanoseconds()
	r := ns % p
	if r < 0 {
		r += p
	}
	return time.Unix(0, ns-r).UTC()
}

// Samples is the length of one full cycle at rate.
func (t Timing) Samples(rate int) int {
	return int(t.Period.Seconds() * float64(rate))
}

// FitWindow returns samples zero-padded or truncated to exactly n.
func FitWindow(samples []float64, n int) []float64 {
	if len(samples) == n {
		return samples
	}
	out := make([]float64, n)
	copy(out, samples)
	return out
}
