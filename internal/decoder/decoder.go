package decoder

import (
	"context"
	"errors"
	"time"
)

// Disposition is the sink's verdict on a reported decode. The numeric values
// are part of the engine contract: engines subtract a decoded signal from
// their residual only for New.
type Disposition int

const (
	Reserved  Disposition = 0
	Duplicate Disposition = 1
	New       Disposition = 2
)

func (d Disposition) String() string {
	switch d {
	case Duplicate:
		return "duplicate"
	case New:
		return "new"
	default:
		return "reserved"
	}
}

// PayloadBits is the length of an FT8 payload including its CRC (77 + 14).
const PayloadBits = 91

// Record is one successful decode as delivered by an engine.
type Record struct {
	Payload       [PayloadBits]byte // one bit per element; zero when Text is set
	Text          string            // unpacked message, if the engine unpacks itself
	Hz0           float64           // frequency at start of transmission
	Hz1           float64           // frequency at end of transmission
	TimeOffset    float64           // seconds from cycle start
	Annotation    string
	SNR           float64
	Pass          int
	CorrectedBits int
}

// Sink receives decodes. Engines may call Report from several goroutines at
// once during one Decode call.
type Sink interface {
	Report(rec Record) Disposition
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec Record) Disposition

func (f SinkFunc) Report(rec Record) Disposition { return f(rec) }

// Unpacker turns a raw payload into canonical message text.
type Unpacker interface {
	Unpack(payload [PayloadBits]byte) (string, error)
}

// Hints biases a pass toward a message class (e.g. {2, 0} for CQ).
type Hints [2]int

// Candidate is a prior (time, frequency) hypothesis handed to an engine.
type Candidate struct {
	Hz         float64
	TimeOffset float64
}

// Params are the per-cycle tuning knobs passed with every request.
type Params struct {
	MaxFreqBin  int
	FreqCeiling float64
	HintsA      Hints
	HintsB      Hints
	BudgetA     time.Duration
	BudgetB     time.Duration
}

// DefaultParams matches the stock monitor settings: CQ hints on both passes
// and five seconds of compute per pass.
func DefaultParams() Params {
	return Params{
		MaxFreqBin:  150,
		FreqCeiling: 3600,
		HintsA:      Hints{2, 0},
		HintsB:      Hints{2, 0},
		BudgetA:     5 * time.Second,
		BudgetB:     5 * time.Second,
	}
}

// Request is a single decode invocation against one cycle window.
type Request struct {
	Samples      []float64
	NominalStart int
	Rate         int
	Params       Params
	Prior        []Candidate
}

// Engine decodes a window and reports each distinct decode to the sink.
// Decode must not return until every report for the request has completed.
type Engine interface {
	Decode(ctx context.Context, req Request, sink Sink) error
}

// ErrRateUnsupported is returned by engines that cannot handle the request's sample rate.
var ErrRateUnsupported = errors.New("sample rate not supported by engine")
