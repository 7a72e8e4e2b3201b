package audio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errNoHardware = errors.New("no capture hardware available")

// GetMode selects which part of the buffered stream Get returns.
type GetMode int

const (
	// Oldest returns the oldest buffered samples and consumes them.
	Oldest GetMode = iota
	// DiscardOlder returns the most recent samples and drops everything
	// buffered before them.
	DiscardOlder
)

// Source is a continuously buffered, time-stamped audio stream.
type Source interface {
	// Start begins background capture. It returns once capture is running.
	Start(ctx context.Context) error
	// Rate is the sample rate of the samples returned by Get.
	Rate() int
	// Get returns up to n samples and the wall-clock time of the first one.
	Get(n int, mode GetMode) ([]float64, time.Time, error)
	Close() error
}

// Config carries the settings every backend may need.
type Config struct {
	Rate          int
	BufferSeconds int
	FFmpegPath    string
	RTLSDR        RTLSDRConfig
}

// Capacity is the ring size in samples for BufferSeconds at rate.
func (c Config) Capacity(rate int) int {
	secs := c.BufferSeconds
	if secs <= 0 {
		secs = 60
	}
	return secs * rate
}

// RTLSDRConfig tunes the dongle front end.
type RTLSDRConfig struct {
	SampleRate   int `yaml:"sample_rate"`    // must be a multiple of 48000
	GainTenthsDB int `yaml:"gain_tenths_db"` // 0 = automatic gain
	PPM          int `yaml:"ppm"`
	OffsetHz     int `yaml:"offset_hz"` // tune this far below the dial to keep DC out of the passband
}

// Hardware opens the cgo capture backends, which live in their own
// packages so the rest of the module builds without their C libraries.
type Hardware interface {
	OpenSoundCard(selector string, channel int, cfg Config) (Source, error)
	OpenRTLSDR(index int, mhz float64, cfg Config) (Source, error)
}

// Open picks a backend from the device selector:
//
//	rtlsdr  channel is "<index>,<MHz>"
//	ffmpeg  channel is an ffmpeg input, e.g. "pulse:default" or a URL
//	file    channel is a WAV path
//	other   a sound card index or name substring; channel is the input channel
func Open(selector, channel string, cfg Config, hw Hardware) (Source, error) {
	if cfg.Rate <= 0 {
		cfg.Rate = 12000
	}

	switch strings.ToLower(selector) {
	case "rtlsdr":
		index, mhz, err := parseRTLSDRChannel(channel)
		if err != nil {
			return nil, err
		}
		if hw == nil {
			return nil, errNoHardware
		}
		return hw.OpenRTLSDR(index, mhz, cfg)
	case "ffmpeg":
		return NewFFmpeg(channel, cfg), nil
	case "file":
		return OpenFile(channel)
	default:
		ch, err := strconv.Atoi(channel)
		if err != nil || ch < 0 {
			return nil, fmt.Errorf("invalid channel %q", channel)
		}
		if hw == nil {
			return nil, errNoHardware
		}
		return hw.OpenSoundCard(selector, ch, cfg)
	}
}

func parseRTLSDRChannel(s string) (int, float64, error) {
	idx, freq, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("rtlsdr channel must be <index>,<MHz>, got %q", s)
	}
	index, err := strconv.Atoi(strings.TrimSpace(idx))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid rtlsdr index: %w", err)
	}
	mhz, err := strconv.ParseFloat(strings.TrimSpace(freq), 64)
	if err != nil || mhz <= 0 {
		return 0, 0, fmt.Errorf("invalid rtlsdr frequency %q", freq)
	}
	return index, mhz, nil
}
