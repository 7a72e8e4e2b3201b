//go:build !noportaudio

package soundcard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/christian-lee/ft8mon/internal/audio"
)

// Card captures one input channel of a portaudio device. If the device
// cannot run at the wanted rate it is opened at an integer multiple and the
// stream is decimated down.
type Card struct {
	device  *portaudio.DeviceInfo
	channel int
	rate    int
	devRate int
	decim   *audio.Decimator
	ring    *audio.Ring
	stream  *portaudio.Stream
}

// Open finds the device by index or name substring and opens an input
// stream on it. The stream is not started.
func Open(selector string, channel int, cfg audio.Config) (*Card, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	dev, err := findInputDevice(selector)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	if channel >= dev.MaxInputChannels {
		portaudio.Terminate()
		return nil, fmt.Errorf("device %q has %d input channels, channel %d requested", dev.Name, dev.MaxInputChannels, channel)
	}

	sc := &Card{
		device:  dev,
		channel: channel,
		rate:    cfg.Rate,
		ring:    audio.NewRing(cfg.Capacity(cfg.Rate), cfg.Rate),
	}

	params, factor, err := sc.pickRate()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	sc.devRate = cfg.Rate * factor
	if factor > 1 {
		// Keep the passband flat to about 45% of the output rate.
		sc.decim = audio.NewDecimator(factor, float64(sc.devRate), 0.45*float64(cfg.Rate), 32*factor+1)
	}

	stream, err := portaudio.OpenStream(params, sc.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	sc.stream = stream

	slog.Info("sound card opened",
		"device", dev.Name,
		"channel", channel,
		"device_rate", sc.devRate,
		"rate", sc.rate,
	)
	return sc, nil
}

func findInputDevice(selector string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	if idx, err := strconv.Atoi(selector); err == nil {
		if idx < 0 || idx >= len(devices) {
			return nil, fmt.Errorf("no sound card with index %d", idx)
		}
		if devices[idx].MaxInputChannels == 0 {
			return nil, fmt.Errorf("sound card %d (%s) has no inputs", idx, devices[idx].Name)
		}
		return devices[idx], nil
	}

	if selector == "" || selector == "default" {
		return portaudio.DefaultInputDevice()
	}

	needle := strings.ToLower(selector)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no sound card matching %q", selector)
}

// pickRate tries the wanted rate, then small integer multiples of it.
func (sc *Card) pickRate() (portaudio.StreamParameters, int, error) {
	for _, factor := range []int{1, 2, 4, 3, 8} {
		p := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   sc.device,
				Channels: sc.channel + 1,
				Latency:  sc.device.DefaultHighInputLatency,
			},
			SampleRate:      float64(sc.rate * factor),
			FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
		}
		if err := portaudio.IsFormatSupported(p, make([]float32, 0)); err == nil {
			return p, factor, nil
		}
	}
	return portaudio.StreamParameters{}, 0, fmt.Errorf("device %q supports no multiple of %d Hz", sc.device.Name, sc.rate)
}

// callback runs on the portaudio thread with interleaved frames.
func (sc *Card) callback(in []float32) {
	now := time.Now()
	stride := sc.channel + 1
	mono := make([]float64, len(in)/stride)
	for i := range mono {
		mono[i] = float64(in[i*stride+sc.channel])
	}
	if sc.decim != nil {
		mono = sc.decim.Process(mono)
	}
	sc.ring.Write(mono, now)
}

func (sc *Card) Start(context.Context) error {
	if err := sc.stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	return nil
}

func (sc *Card) Rate() int { return sc.rate }

func (sc *Card) Get(n int, mode audio.GetMode) ([]float64, time.Time, error) {
	samples, first := sc.ring.Get(n, mode)
	return samples, first, nil
}

func (sc *Card) Close() error {
	var firstErr error
	if err := sc.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("stop stream: %w", err)
	}
	if err := sc.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close stream: %w", err)
	}
	if lost := sc.ring.Lost(); lost > 0 {
		slog.Debug("sound card samples overwritten unread", "samples", lost)
	}
	portaudio.Terminate()
	return firstErr
}
