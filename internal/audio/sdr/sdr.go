//go:build rtlsdr

package sdr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	rtlsdr "github.com/jpoirier/gortlsdr"

	"github.com/christian-lee/ft8mon/internal/audio"
)

// usbCenter is the middle of the 0..3 kHz USB audio passband.
const usbCenter = 1500.0

// Receiver takes IQ from an RTL2832 dongle and demodulates upper sideband
// audio into the ring at the wanted rate.
type Receiver struct {
	dev     *rtlsdr.Context
	index   int
	dialHz  float64
	iqRate  int
	offset  float64
	rate    int
	ring    *audio.Ring
	bufLen  int
	stage1I *audio.Decimator
	stage1Q *audio.Decimator
	stage2I *audio.Decimator
	stage2Q *audio.Decimator

	mixPhase float64 // IQ-rate oscillator moving the passband to 0 Hz
	outPhase float64 // audio-rate oscillator moving it back up

	wg  sync.WaitGroup
	err error
}

// Open opens dongle index and tunes it for the dial frequency in MHz.
func Open(index int, mhz float64, cfg audio.Config) (*Receiver, error) {
	rc := cfg.RTLSDR
	if rc.SampleRate <= 0 {
		rc.SampleRate = 960000
	}
	if rc.OffsetHz == 0 {
		rc.OffsetHz = 20000
	}
	if cfg.Rate <= 0 || rc.SampleRate%(cfg.Rate*4) != 0 {
		return nil, fmt.Errorf("rtlsdr sample rate %d is not a multiple of 4x%d", rc.SampleRate, cfg.Rate)
	}

	if n := rtlsdr.GetDeviceCount(); n == 0 {
		return nil, fmt.Errorf("no rtlsdr device found")
	} else if index >= n {
		return nil, fmt.Errorf("rtlsdr index %d out of range (%d devices)", index, n)
	}

	dev, err := rtlsdr.Open(index)
	if err != nil {
		return nil, fmt.Errorf("open rtlsdr %d: %w", index, err)
	}

	dial := mhz * 1e6
	center := int(dial) - rc.OffsetHz
	setup := []struct {
		what string
		fn   func() error
	}{
		{"sample rate", func() error { return dev.SetSampleRate(rc.SampleRate) }},
		{"center frequency", func() error { return dev.SetCenterFreq(center) }},
		{"frequency correction", func() error {
			if rc.PPM == 0 {
				return nil
			}
			return dev.SetFreqCorrection(rc.PPM)
		}},
		{"gain mode", func() error { return dev.SetTunerGainMode(rc.GainTenthsDB != 0) }},
		{"gain", func() error {
			if rc.GainTenthsDB == 0 {
				return nil
			}
			return dev.SetTunerGain(rc.GainTenthsDB)
		}},
		{"agc", func() error { return dev.SetAgcMode(false) }},
		{"buffer reset", dev.ResetBuffer},
	}
	for _, s := range setup {
		if err := s.fn(); err != nil {
			dev.Close()
			return nil, fmt.Errorf("rtlsdr %s: %w", s.what, err)
		}
	}

	mid := 4 * cfg.Rate
	f1 := rc.SampleRate / mid
	r := &Receiver{
		dev:     dev,
		index:   index,
		dialHz:  dial,
		iqRate:  rc.SampleRate,
		offset:  float64(rc.OffsetHz),
		rate:    cfg.Rate,
		ring:    audio.NewRing(cfg.Capacity(cfg.Rate), cfg.Rate),
		bufLen:  16 * 16384,
		stage1I: audio.NewBoxcar(f1),
		stage1Q: audio.NewBoxcar(f1),
		stage2I: audio.NewDecimator(4, float64(mid), usbCenter, 129),
		stage2Q: audio.NewDecimator(4, float64(mid), usbCenter, 129),
	}

	slog.Info("rtlsdr opened",
		"device", rtlsdr.GetDeviceName(index),
		"dial_mhz", mhz,
		"iq_rate", rc.SampleRate,
		"rate", cfg.Rate,
	)
	return r, nil
}

// List writes the attached dongles.
func List(w io.Writer) error {
	for i := 0; i < rtlsdr.GetDeviceCount(); i++ {
		fmt.Fprintf(w, "rtlsdr %d: %s\n", i, rtlsdr.GetDeviceName(i))
	}
	return nil
}

func (r *Receiver) Start(context.Context) error {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// ReadAsync blocks until CancelAsync.
		if err := r.dev.ReadAsync(r.readCb, nil, 12, r.bufLen); err != nil {
			slog.Error("rtlsdr read stopped", "err", err)
			r.err = err
		}
	}()
	return nil
}

func (r *Receiver) readCb(data []byte) {
	now := time.Now()
	i, q := r.mixDown(data)
	i = r.stage2I.Process(r.stage1I.Process(i))
	q = r.stage2Q.Process(r.stage1Q.Process(q))
	r.ring.Write(r.upperSideband(i, q), now)
}

// mixDown converts unsigned IQ bytes to floats and shifts the USB passband
// center to 0 Hz so the low-pass stages keep only the wanted sideband.
func (r *Receiver) mixDown(data []byte) ([]float64, []float64) {
	n := len(data) / 2
	iOut := make([]float64, n)
	qOut := make([]float64, n)
	step := -2 * math.Pi * (r.offset + usbCenter) / float64(r.iqRate)

	for k := 0; k < n; k++ {
		si := (float64(data[2*k]) - 127.5) / 127.5
		sq := (float64(data[2*k+1]) - 127.5) / 127.5
		c, s := math.Cos(r.mixPhase), math.Sin(r.mixPhase)
		iOut[k] = si*c - sq*s
		qOut[k] = si*s + sq*c
		r.mixPhase += step
	}
	r.mixPhase = math.Mod(r.mixPhase, 2*math.Pi)
	return iOut, qOut
}

// upperSideband moves the filtered baseband back up by usbCenter and takes
// the real part, yielding 0..3 kHz audio.
func (r *Receiver) upperSideband(i, q []float64) []float64 {
	n := min(len(i), len(q))
	out := make([]float64, n)
	step := 2 * math.Pi * usbCenter / float64(r.rate)
	for k := 0; k < n; k++ {
		out[k] = i[k]*math.Cos(r.outPhase) - q[k]*math.Sin(r.outPhase)
		r.outPhase += step
	}
	r.outPhase = math.Mod(r.outPhase, 2*math.Pi)
	return out
}

func (r *Receiver) Rate() int { return r.rate }

func (r *Receiver) Get(n int, mode audio.GetMode) ([]float64, time.Time, error) {
	samples, first := r.ring.Get(n, mode)
	return samples, first, nil
}

func (r *Receiver) Close() error {
	if err := r.dev.CancelAsync(); err != nil {
		slog.Warn("rtlsdr cancel failed", "err", err)
	}
	r.wg.Wait()
	return r.dev.Close()
}
