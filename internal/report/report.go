// Package report formats decodes for stdout and for downstream consumers.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/christian-lee/ft8mon/internal/decoder"
)

// Decode is a newly counted message of one cycle.
type Decode struct {
	CycleStart time.Time
	Text       string
	Record     decoder.Record
}

// Printer writes one fixed-width line per decode and flushes it at once.
type Printer struct {
	mu         sync.Mutex
	w          *bufio.Writer
	syncOffset float64
}

// NewPrinter prints time offsets relative to syncOffset, the point in the
// cycle where transmissions nominally begin.
func NewPrinter(w io.Writer, syncOffset time.Duration) *Printer {
	return &Printer{w: bufio.NewWriter(w), syncOffset: syncOffset.Seconds()}
}

// Emit prints HHMMSS SNR CORRECTED DT FREQ MESSAGE.
func (p *Printer) Emit(d Decode) {
	t := d.CycleStart.UTC()
	r := d.Record

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%02d%02d%02d %3d %3d %5.2f %6.1f %s\n",
		t.Hour(), t.Minute(), t.Second(),
		int(r.SNR),
		r.CorrectedBits,
		r.TimeOffset-p.syncOffset,
		r.Hz0,
		d.Text,
	)
	p.w.Flush()
}

// Summary writes the per-cycle line printed after every decode run.
func Summary(w io.Writer, cycleStart time.Time, decodes int, elapsed time.Duration) error {
	t := cycleStart.UTC()
	_, err := fmt.Fprintf(w, "%02d:%02d:%02d decodes: %d, processing time %3.1f seconds\n",
		t.Hour(), t.Minute(), t.Second(), decodes, elapsed.Seconds())
	return err
}
