package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// FFmpeg captures any input ffmpeg can open (PulseAudio, ALSA, a network
// stream) as mono PCM at the wanted rate.
type FFmpeg struct {
	input string
	path  string
	rate  int
	ring  *Ring

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewFFmpeg(input string, cfg Config) *FFmpeg {
	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{
		input: input,
		path:  path,
		rate:  cfg.Rate,
		ring:  NewRing(cfg.Capacity(cfg.Rate), cfg.Rate),
	}
}

// inputArgs maps "pulse:default" to "-f pulse -i default"; anything else is
// passed to -i unchanged.
func inputArgs(input string) []string {
	if demuxer, dev, ok := strings.Cut(input, ":"); ok {
		switch demuxer {
		case "pulse", "alsa", "avfoundation", "dshow", "jack", "oss":
			return []string{"-f", demuxer, "-i", dev}
		}
	}
	return []string{"-i", input}
}

func (c *FFmpeg) args() []string {
	args := []string{"-nostdin"}
	args = append(args, inputArgs(c.input)...)
	return append(args,
		"-vn",                  // no video
		"-acodec", "pcm_s16le", // raw PCM
		"-ar", fmt.Sprintf("%d", c.rate),
		"-ac", "1",
		"-f", "s16le", // raw output format
		"-loglevel", "error",
		"-", // output to stdout
	)
}

func (c *FFmpeg) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, c.path, c.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	slog.Info("audio capture started (ffmpeg)", "input", c.input, "rate", c.rate)

	go func() {
		defer close(c.done)
		err := pumpS16LE(stdout, c.ring, time.Now)
		_ = cmd.Wait()
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		if ctx.Err() == nil {
			slog.Error("ffmpeg capture ended unexpectedly", "input", c.input, "err", err)
		}
	}()
	return nil
}

func (c *FFmpeg) Rate() int { return c.rate }

func (c *FFmpeg) Get(n int, mode GetMode) ([]float64, time.Time, error) {
	samples, first := c.ring.Get(n, mode)
	c.mu.Lock()
	err := c.err
	c.mu.Unlock()
	if len(samples) == 0 && err != nil {
		return nil, first, fmt.Errorf("ffmpeg capture: %w", err)
	}
	return samples, first, nil
}

func (c *FFmpeg) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	slog.Info("audio capture stopped", "input", c.input)
	return nil
}
