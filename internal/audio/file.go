package audio

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/christian-lee/ft8mon/internal/wavfile"
)

// File replays a WAV recording through the Source interface. The timestamp of
// sample 0 comes from a YYMMDD_HHMMSS file name when present (the layout
// recorders write per cycle), otherwise the zero time.
type File struct {
	path    string
	rate    int
	start   time.Time
	mu      sync.Mutex
	samples []float64
	cursor  int
}

func OpenFile(path string) (*File, error) {
	samples, rate, err := wavfile.Read(path)
	if err != nil {
		return nil, err
	}
	start, _ := CycleTimeFromName(path)
	return &File{path: path, rate: rate, start: start, samples: samples}, nil
}

// CycleTimeFromName parses recordings named like 231014_153015.wav.
func CycleTimeFromName(path string) (time.Time, bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	t, err := time.ParseInLocation("060102_150405", base, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (f *File) Start(context.Context) error { return nil }

func (f *File) Rate() int { return f.rate }

// Start time of sample 0.
func (f *File) StartTime() time.Time { return f.start }

func (f *File) Len() int { return len(f.samples) }

func (f *File) Get(n int, mode GetMode) ([]float64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	remaining := len(f.samples) - f.cursor
	if n > remaining {
		n = remaining
	}
	if n <= 0 {
		return nil, f.at(f.cursor), nil
	}

	from := f.cursor
	if mode == DiscardOlder {
		from = len(f.samples) - n
	}
	out := make([]float64, n)
	copy(out, f.samples[from:from+n])
	f.cursor = from + n
	return out, f.at(from), nil
}

func (f *File) at(index int) time.Time {
	return f.start.Add(samplesToDuration(index, f.rate))
}

func (f *File) Close() error { return nil }
