package audio

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// Decimator is a streaming FIR low-pass filter followed by integer
// downsampling. State carries across Process calls.
type Decimator struct {
	factor int
	taps   []float64
	hist   []float64 // last len(taps)-1 input samples
	next   int       // index in hist+input of the next output's newest sample
}

// NewDecimator designs a Hamming-windowed sinc filter with the given cutoff
// (Hz) at inRate and decimates by factor.
func NewDecimator(factor int, inRate, cutoff float64, ntaps int) *Decimator {
	if ntaps%2 == 0 {
		ntaps++
	}
	fc := cutoff / inRate
	mid := float64(ntaps-1) / 2

	taps := make([]float64, ntaps)
	for i := range taps {
		x := float64(i) - mid
		if x == 0 {
			taps[i] = 2 * fc
		} else {
			taps[i] = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}
	}
	window.Hamming(taps)
	floats.Scale(1/floats.Sum(taps), taps)

	return newDecimator(factor, taps)
}

// NewBoxcar averages each run of factor samples. Cheap first stage for
// large decimation ratios.
func NewBoxcar(factor int) *Decimator {
	taps := make([]float64, factor)
	for i := range taps {
		taps[i] = 1 / float64(factor)
	}
	return newDecimator(factor, taps)
}

func newDecimator(factor int, taps []float64) *Decimator {
	if factor < 1 {
		factor = 1
	}
	return &Decimator{
		factor: factor,
		taps:   taps,
		hist:   make([]float64, len(taps)-1),
		next:   len(taps) - 1,
	}
}

// Factor is the downsampling ratio.
func (d *Decimator) Factor() int { return d.factor }

// Process filters in and returns the decimated output.
func (d *Decimator) Process(in []float64) []float64 {
	n := len(d.taps)
	buf := make([]float64, 0, len(d.hist)+len(in))
	buf = append(buf, d.hist...)
	buf = append(buf, in...)

	out := make([]float64, 0, len(in)/d.factor+1)
	i := d.next
	for ; i < len(buf); i += d.factor {
		out = append(out, floats.Dot(d.taps, buf[i-n+1:i+1]))
	}

	keep := n - 1
	d.next = i - (len(buf) - keep)
	copy(d.hist, buf[len(buf)-keep:])
	return out
}
