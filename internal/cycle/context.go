package cycle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/christian-lee/ft8mon/internal/decoder"
	"github.com/christian-lee/ft8mon/internal/report"
)

// Emitter receives each newly counted decode. Emit is called outside the
// context lock, possibly from several engine workers at once.
type Emitter interface {
	Emit(d report.Decode)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(d report.Decode)

func (f EmitterFunc) Emit(d report.Decode) { f(d) }

// CycleContext deduplicates and counts the decodes of the cycle in flight.
// It is the Sink handed to the engine.
type CycleContext struct {
	unpacker decoder.Unpacker
	emitters []Emitter

	mu         sync.Mutex
	seen       map[string]struct{}
	tally      int
	duplicates int
	start      time.Time
}

// NewCycleContext creates a context. unpacker may be nil when the engine
// always fills Record.Text.
func NewCycleContext(unpacker decoder.Unpacker, emitters ...Emitter) *CycleContext {
	return &CycleContext{
		unpacker: unpacker,
		emitters: emitters,
		seen:     make(map[string]struct{}),
	}
}

// AddEmitter registers e. Not safe once decoding has started.
func (c *CycleContext) AddEmitter(e Emitter) {
	c.emitters = append(c.emitters, e)
}

// Reset starts a new cycle. It must complete before the engine is invoked.
func (c *CycleContext) Reset(start time.Time) {
	c.mu.Lock()
	c.seen = make(map[string]struct{})
	c.tally = 0
	c.duplicates = 0
	c.start = start
	c.mu.Unlock()
}

// Report implements decoder.Sink.
func (c *CycleContext) Report(rec decoder.Record) decoder.Disposition {
	text := rec.Text
	if text == "" && c.unpacker != nil {
		var err error
		text, err = c.unpacker.Unpack(rec.Payload)
		if err != nil {
			slog.Debug("unpack failed", "err", err, "hz", rec.Hz0)
		}
	}

	c.mu.Lock()
	if text == "" {
		// Nothing to count; also keeps the engine from subtracting it.
		c.mu.Unlock()
		return decoder.Duplicate
	}
	if _, ok := c.seen[text]; ok {
		c.duplicates++
		c.mu.Unlock()
		return decoder.Duplicate
	}
	c.seen[text] = struct{}{}
	c.tally++
	start := c.start
	c.mu.Unlock()

	d := report.Decode{CycleStart: start, Text: text, Record: rec}
	for _, e := range c.emitters {
		e.Emit(d)
	}
	return decoder.New
}

// Tally is the number of distinct decodes in the current cycle.
func (c *CycleContext) Tally() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tally
}

// Duplicates counts reports that repeated a message already seen this cycle.
func (c *CycleContext) Duplicates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duplicates
}

func (c *CycleContext) CycleStart() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start
}
