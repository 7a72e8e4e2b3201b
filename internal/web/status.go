package web

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/christian-lee/ft8mon/internal/cycle"
	"github.com/christian-lee/ft8mon/internal/report"
)

const maxCycles = 40

// CycleSummary is the JSON form of one finished cycle.
type CycleSummary struct {
	CycleStart time.Time `json:"cycle_start"`
	Outcome    string    `json:"outcome"`
	Decodes    int       `json:"decodes"`
	Duplicates int       `json:"duplicates"`
	AcquireSec float64   `json:"acquire_seconds"`
	DecodeSec  float64   `json:"decode_seconds"`
	Error      string    `json:"error,omitempty"`
}

// Snapshot is served by /api/status.
type Snapshot struct {
	Mode      string         `json:"mode"`
	Device    string         `json:"device"`
	Station   string         `json:"station,omitempty"`
	RunID     string         `json:"run_id"`
	Started   time.Time      `json:"started"`
	Decodes   int64          `json:"decodes_total"`
	Cycles    []CycleSummary `json:"cycles"` // newest first
	Clients   int            `json:"ws_clients"`
	Sinks     any            `json:"sinks,omitempty"`
}

// Status keeps recent cycles and decodes in memory and pushes both to the
// websocket hub as they happen.
type Status struct {
	hub        *Hub
	syncOffset time.Duration
	station    string
	runID      string
	mode       string
	device     string
	started    time.Time
	keep       int

	mu     sync.RWMutex
	cycles []CycleSummary
	spots  []report.Spot
	total  int64
	sinks  func() any
}

// NewStatus keeps the last keep decodes.
func NewStatus(hub *Hub, keep int, syncOffset time.Duration, station, runID string) *Status {
	if keep <= 0 {
		keep = 50
	}
	return &Status{
		hub:        hub,
		syncOffset: syncOffset,
		station:    station,
		runID:      runID,
		started:    time.Now(),
		keep:       keep,
	}
}

// SetSource records what the monitor is listening to.
func (s *Status) SetSource(mode, device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode, s.device = mode, device
}

// SetSinks supplies delivery counters for the snapshot.
func (s *Status) SetSinks(fn func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = fn
}

// ObserveCycle implements cycle.Observer.
func (s *Status) ObserveCycle(res cycle.CycleResult) {
	sum := CycleSummary{
		CycleStart: res.CycleStart,
		Outcome:    res.Outcome.String(),
		Decodes:    res.Decodes,
		Duplicates: res.Duplicates,
		AcquireSec: res.Acquire.Seconds(),
		DecodeSec:  res.Elapsed.Seconds(),
	}
	if res.Err != nil {
		sum.Error = res.Err.Error()
	}

	s.mu.Lock()
	s.cycles = append([]CycleSummary{sum}, s.cycles...)
	if len(s.cycles) > maxCycles {
		s.cycles = s.cycles[:maxCycles]
	}
	s.mu.Unlock()

	s.push("cycle", sum)
}

// Emit implements cycle.Emitter.
func (s *Status) Emit(d report.Decode) {
	spot := report.NewSpot(d, s.syncOffset, s.station, s.runID)

	s.mu.Lock()
	s.spots = append(s.spots, spot)
	if len(s.spots) > s.keep {
		s.spots = s.spots[len(s.spots)-s.keep:]
	}
	s.total++
	s.mu.Unlock()

	s.push("decode", spot)
}

func (s *Status) push(kind string, v any) {
	if s.hub == nil {
		return
	}
	msg, err := json.Marshal(map[string]any{"type": kind, "data": v})
	if err != nil {
		slog.Warn("encode live update", "err", err)
		return
	}
	s.hub.Broadcast(msg)
}

// Recent returns up to limit decodes, newest first.
func (s *Status) Recent(limit int) []report.Spot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.spots) {
		limit = len(s.spots)
	}
	out := make([]report.Spot, 0, limit)
	for i := len(s.spots) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.spots[i])
	}
	return out
}

func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Mode:    s.mode,
		Device:  s.device,
		Station: s.station,
		RunID:   s.runID,
		Started: s.started,
		Decodes: s.total,
		Cycles:  append([]CycleSummary(nil), s.cycles...),
	}
	if s.hub != nil {
		snap.Clients = s.hub.Clients()
	}
	if s.sinks != nil {
		snap.Sinks = s.sinks()
	}
	return snap
}
