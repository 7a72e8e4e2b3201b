package audio

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Level summarizes one block of samples in dB relative to full scale.
type Level struct {
	PeakDBFS float64
	RMSDBFS  float64
	Samples  int
}

// Measure computes the peak and RMS level of samples.
func Measure(samples []float64) Level {
	if len(samples) == 0 {
		return Level{PeakDBFS: math.Inf(-1), RMSDBFS: math.Inf(-1)}
	}
	abs := make([]float64, len(samples))
	for i, s := range samples {
		abs[i] = math.Abs(s)
	}
	peak := floats.Max(abs)
	rms := math.Sqrt(floats.Dot(samples, samples) / float64(len(samples)))
	return Level{PeakDBFS: toDB(peak), RMSDBFS: toDB(rms), Samples: len(samples)}
}

func toDB(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

// Levels prints the input level of src every interval until ctx is done
// or stop reports true.
func Levels(ctx context.Context, src Source, w io.Writer, every time.Duration, stop func() bool) error {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	n := int(every.Seconds() * float64(src.Rate()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if stop != nil && stop() {
			return nil
		}

		samples, _, err := src.Get(n, DiscardOlder)
		if err != nil {
			return fmt.Errorf("read levels: %w", err)
		}
		lv := Measure(samples)
		fmt.Fprintf(w, "peak %6.1f dBFS  rms %6.1f dBFS  %6d samples\n", lv.PeakDBFS, lv.RMSDBFS, lv.Samples)
	}
}
