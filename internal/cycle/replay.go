package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/christian-lee/ft8mon/internal/audio"
)

// ReplayFiles decodes each recording as a single cycle. Recordings are
// assumed to start on a cycle boundary, so the nominal start is SyncOffset
// into the file. Recordings at an integer multiple of the replay rate are
// decimated down; other rates are rejected. A file that cannot be used is
// logged and skipped; the joined errors are returned at the end.
func (s *Scheduler) ReplayFiles(ctx context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.gate.Stopping() {
			break
		}

		samples, start, err := s.loadRecording(path)
		if err != nil {
			slog.Error("read recording", "file", path, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		res := CycleResult{
			CycleStart:   start,
			Samples:      len(samples),
			NominalStart: int(s.timing.SyncOffset.Seconds() * float64(s.replay)),
		}
		slog.Debug("replaying", "file", path, "rate", s.replay, "samples", len(samples), "cycle", start)
		if _, err := s.decode(ctx, res, samples, s.replay); err != nil {
			slog.Error("decode recording", "file", path, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// loadRecording reads a whole recording at the replay rate.
func (s *Scheduler) loadRecording(path string) ([]float64, time.Time, error) {
	f, err := audio.OpenFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	rate := f.Rate()
	if rate%s.replay != 0 {
		return nil, time.Time{}, fmt.Errorf("%d Hz recording is not a multiple of %d Hz", rate, s.replay)
	}

	samples, start, err := f.Get(f.Len(), audio.Oldest)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read samples: %w", err)
	}
	if factor := rate / s.replay; factor > 1 {
		d := audio.NewDecimator(factor, float64(rate), 0.45*float64(s.replay), 32*factor+1)
		samples = d.Process(samples)
	}
	return samples, start, nil
}
