// Package wavfile reads and writes the mono WAV recordings exchanged with
// jt9 and replayed by -file.
package wavfile

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const formatIEEEFloat = 3

var ErrNotWAV = errors.New("not a RIFF/WAVE file")

// Write stores mono samples in [-1, 1] as 16-bit PCM.
func Write(path string, samples []float64, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(floatToS16(s))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finish wav: %w", err)
	}
	return f.Close()
}

// Read returns the first channel of an integer PCM or 32-bit float WAV file
// as floats in [-1, 1], and its sample rate.
func Read(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read wav data: %w", err)
	}

	channels := int(dec.NumChans)
	bits := int(dec.BitDepth)
	if channels < 1 {
		return nil, 0, errors.New("wav has zero channels")
	}

	out := make([]float64, len(buf.Data)/channels)
	switch {
	case dec.WavAudioFormat == formatIEEEFloat && bits == 32:
		for i := range out {
			out[i] = float64(math.Float32frombits(uint32(buf.Data[i*channels])))
		}
	case dec.WavAudioFormat == formatIEEEFloat:
		return nil, 0, fmt.Errorf("unsupported float wav (%d bits)", bits)
	case bits == 8:
		// 8-bit PCM is unsigned.
		for i := range out {
			out[i] = float64(buf.Data[i*channels]-128) / 128
		}
	default:
		scale := math.Ldexp(1, bits-1)
		for i := range out {
			out[i] = float64(buf.Data[i*channels]) / scale
		}
	}
	return out, int(dec.SampleRate), nil
}

func floatToS16(s float64) int16 {
	v := math.Round(s * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
