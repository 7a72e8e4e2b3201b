package spotlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/christian-lee/ft8mon/internal/report"
)

// CSVLog writes spots to one CSV file per run.
// Files are saved as: <dir>/ft8mon_<date>_<time>.csv
type CSVLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var csvHeader = []string{"cycle_start", "snr", "dt", "freq_hz", "corrected_bits", "pass", "message", "station"}

func NewCSVLog(dir string) (*CSVLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create spot log dir: %w", err)
	}

	session := time.Now().UTC().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("ft8mon_%s.csv", session))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create spot log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write spot log header: %w", err)
	}
	w.Flush()

	return &CSVLog{file: f, writer: w}, nil
}

func (l *CSVLog) Name() string { return "csv" }

// Write appends one row and flushes it.
func (l *CSVLog) Write(_ context.Context, sp report.Spot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return fmt.Errorf("spot log closed")
	}
	l.writer.Write([]string{
		sp.CycleStart.Format(time.RFC3339),
		strconv.Itoa(sp.SNR),
		strconv.FormatFloat(sp.TimeOffset, 'f', 2, 64),
		strconv.FormatFloat(sp.FreqHz, 'f', 1, 64),
		strconv.Itoa(sp.CorrectedBits),
		strconv.Itoa(sp.Pass),
		sp.Message,
		sp.Station,
	})
	l.writer.Flush()
	return l.writer.Error()
}

// Close flushes and closes the file.
func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Path returns the file path.
func (l *CSVLog) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}
