package decoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/christian-lee/ft8mon/internal/wavfile"
)

// JT9Rate is the only input rate jt9 accepts.
const JT9Rate = 12000

// JT9Config configures the jt9 subprocess engine.
type JT9Config struct {
	Path       string
	WorkDir    string
	DepthA     int
	DepthB     int
	Threads    int
	KeepWAV    bool
	Period     time.Duration // cycle length written to the WAV
	SyncOffset time.Duration // where NominalStart sits within the cycle
}

// JT9 decodes by writing each window to a WAV file and running the WSJT-X
// jt9 decoder on it once per hint pass. jt9 has no hint interface, so the two
// passes differ by decode depth.
type JT9 struct {
	cfg JT9Config
}

func NewJT9(cfg JT9Config) *JT9 {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.DepthA < 1 {
		cfg.DepthA = 2
	}
	if cfg.DepthB < 1 {
		cfg.DepthB = 3
	}
	if cfg.Period <= 0 {
		cfg.Period = 15 * time.Second
	}
	if cfg.SyncOffset <= 0 {
		cfg.SyncOffset = 500 * time.Millisecond
	}
	return &JT9{cfg: cfg}
}

// CheckAvailable verifies the jt9 binary exists and is executable.
func (j *JT9) CheckAvailable() error {
	path := j.cfg.Path
	if !filepath.IsAbs(path) {
		found, err := exec.LookPath(path)
		if err != nil {
			return fmt.Errorf("jt9 not found: %w", err)
		}
		path = found
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat jt9: %w", err)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("jt9 is not executable: %s", path)
	}
	slog.Info("found decoder", "binary", "jt9", "path", path)
	return nil
}

func (j *JT9) Decode(ctx context.Context, req Request, sink Sink) error {
	if req.Rate != JT9Rate {
		return fmt.Errorf("jt9 needs %d Hz, got %d: %w", JT9Rate, req.Rate, ErrRateUnsupported)
	}

	if err := os.MkdirAll(j.cfg.WorkDir, 0755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(j.cfg.WorkDir, "cycle-")
	if err != nil {
		return fmt.Errorf("create cycle dir: %w", err)
	}
	defer func() {
		if j.cfg.KeepWAV {
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove cycle dir", "dir", dir, "err", err)
		}
	}()

	wav := filepath.Join(dir, "cycle.wav")
	aligned := j.cycleAligned(req)
	if err := wavfile.Write(wav, aligned, req.Rate); err != nil {
		return fmt.Errorf("write cycle wav: %w", err)
	}

	var dups atomic.Int64
	counting := SinkFunc(func(rec Record) Disposition {
		d := sink.Report(rec)
		if d == Duplicate {
			dups.Add(1)
		}
		return d
	})

	err = RunPasses(ctx, req, counting, func(ctx context.Context, index int, _ Hints, s Sink) error {
		depth := j.cfg.DepthA
		if index == 1 {
			depth = j.cfg.DepthB
		}
		return j.runPass(ctx, dir, wav, depth, index, req.Params.FreqCeiling, s)
	})
	slog.Debug("jt9 decode finished", "duplicates", dups.Load())
	return err
}

// cycleAligned returns exactly one period of samples starting at the cycle
// boundary, which is where jt9 expects its input to begin.
func (j *JT9) cycleAligned(req Request) []float64 {
	n := int(j.cfg.Period.Seconds() * float64(req.Rate))
	offset := req.NominalStart - int(j.cfg.SyncOffset.Seconds()*float64(req.Rate))

	out := make([]float64, n)
	for i := range out {
		src := offset + i
		if src < 0 || src >= len(req.Samples) {
			continue
		}
		out[i] = req.Samples[src]
	}
	return out
}

func (j *JT9) runPass(ctx context.Context, dir, wav string, depth, pass int, ceiling float64, sink Sink) error {
	args := []string{
		"-8",
		"-d", strconv.Itoa(depth),
		"-m", strconv.Itoa(j.cfg.Threads),
		"-a", dir,
		"-t", dir,
	}
	if ceiling > 0 {
		args = append(args, "-H", strconv.Itoa(int(ceiling)))
	}
	args = append(args, wav)

	// jt9 is killed if reading its output fails.
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cmd := exec.CommandContext(pctx, j.cfg.Path, args...)
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start jt9: %w", err)
	}

	g, gctx := errgroup.WithContext(pctx)
	lines := make(chan string, 64)
	g.Go(func() error {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read jt9 output: %w", err)
		}
		return nil
	})
	for w := 0; w < j.cfg.Threads; w++ {
		g.Go(func() error {
			for line := range lines {
				rec, err := ParseJT9Line(line, j.cfg.SyncOffset)
				if err != nil {
					continue
				}
				rec.Pass = pass
				sink.Report(rec)
			}
			return nil
		})
	}

	readErr := g.Wait()
	if readErr != nil {
		cancel()
	}
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return fmt.Errorf("jt9 exited with status %d", exitErr.ExitCode())
		}
		return fmt.Errorf("wait jt9: %w", waitErr)
	}
	return nil
}
