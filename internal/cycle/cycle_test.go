package cycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/christian-lee/ft8mon/internal/audio"
	"github.com/christian-lee/ft8mon/internal/decoder"
	"github.com/christian-lee/ft8mon/internal/report"
	"github.com/christian-lee/ft8mon/internal/wavfile"
)

// base is on a 15 second boundary.
var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestTimingDue(t *testing.T) {
	tm := DefaultTiming()
	cases := []struct {
		at   time.Duration
		want bool
	}{
		{0, false},
		{13900 * time.Millisecond, false},
		{14 * time.Second, true},
		{14900 * time.Millisecond, true},
		{15 * time.Second, false},
		{29500 * time.Millisecond, true},
	}
	for _, c := range cases {
		if got := tm.Due(base.Add(c.at)); got != c.want {
			t.Errorf("Due(+%s) = %v, want %v", c.at, got, c.want)
		}
	}
}

func TestTimingValidate(t *testing.T) {
	if err := DefaultTiming().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	bad := []func(*Timing){
		func(t *Timing) { t.SyncOffset = 0 },
		func(t *Timing) { t.WakeAfter = t.SyncOffset },
		func(t *Timing) { t.Period = t.WakeAfter },
		func(t *Timing) { t.MinSignal = 15 * time.Second },
		func(t *Timing) { t.IdlePoll = 0 },
	}
	for i, mutate := range bad {
		tm := DefaultTiming()
		mutate(&tm)
		if err := tm.Validate(); err == nil {
			t.Errorf("case %d: expected error for %+v", i, tm)
		}
	}
}

func TestAlign(t *testing.T) {
	tm := DefaultTiming()
	const rate = 100
	cases := []struct {
		name    string
		first   time.Duration // relative to base
		n       int
		start   time.Time
		nominal int
		ok      bool
	}{
		{"full window", -950 * time.Millisecond, 1500, base, 145, true},
		{"short window", 50 * time.Millisecond, 1490, base, 45, true},
		{"nominal before buffer", time.Second, 1350, base, -50, false},
		{"too little signal", 700 * time.Millisecond, 1500, base.Add(15 * time.Second), 1480, false},
		{"signal ends exactly at minimum", 10500 * time.Millisecond, 1500, base.Add(15 * time.Second), 500, false},
		{"one sample past minimum", 10510 * time.Millisecond, 1500, base.Add(15 * time.Second), 499, true},
	}
	for _, c := range cases {
		w, err := tm.Align(base.Add(c.first), c.n, rate)
		if !w.CycleStart.Equal(c.start) || w.NominalStart != c.nominal {
			t.Errorf("%s: got start %v nominal %d, want %v %d", c.name, w.CycleStart, w.NominalStart, c.start, c.nominal)
		}
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && !errors.Is(err, ErrMisaligned) {
			t.Errorf("%s: expected ErrMisaligned, got %v", c.name, err)
		}
	}
}

func TestFitWindow(t *testing.T) {
	short := FitWindow([]float64{1, 2, 3}, 5)
	if len(short) != 5 || short[2] != 3 || short[3] != 0 || short[4] != 0 {
		t.Fatalf("pad: %v", short)
	}
	long := FitWindow([]float64{1, 2, 3, 4}, 2)
	if len(long) != 2 || long[1] != 2 {
		t.Fatalf("truncate: %v", long)
	}
}

type collect struct {
	mu  sync.Mutex
	got []report.Decode
}

func (c *collect) Emit(d report.Decode) {
	c.mu.Lock()
	c.got = append(c.got, d)
	c.mu.Unlock()
}

func (c *collect) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestReportDispositions(t *testing.T) {
	out := &collect{}
	cc := NewCycleContext(nil, out)
	cc.Reset(base)

	if d := cc.Report(decoder.Record{Text: "CQ AB1HL FN42", Pass: 0}); d != decoder.New {
		t.Fatalf("first report = %v, want new", d)
	}
	if d := cc.Report(decoder.Record{Text: "CQ AB1HL FN42", Pass: 1}); d != decoder.Duplicate {
		t.Fatalf("second report = %v, want duplicate", d)
	}
	if int(decoder.New) != 2 || int(decoder.Duplicate) != 1 {
		t.Fatal("disposition values changed")
	}
	if cc.Tally() != 1 || cc.Duplicates() != 1 || out.len() != 1 {
		t.Fatalf("tally=%d dup=%d emitted=%d", cc.Tally(), cc.Duplicates(), out.len())
	}
	if !out.got[0].CycleStart.Equal(base) {
		t.Fatalf("decode stamped %v", out.got[0].CycleStart)
	}
}

func TestResetAllowsMessageAgain(t *testing.T) {
	cc := NewCycleContext(nil)
	cc.Reset(base)
	cc.Report(decoder.Record{Text: "CQ AB1HL FN42"})

	next := base.Add(15 * time.Second)
	cc.Reset(next)
	if cc.Tally() != 0 {
		t.Fatalf("tally after reset = %d", cc.Tally())
	}
	if d := cc.Report(decoder.Record{Text: "CQ AB1HL FN42"}); d != decoder.New {
		t.Fatalf("after reset got %v", d)
	}
	if !cc.CycleStart().Equal(next) {
		t.Fatalf("cycle start %v", cc.CycleStart())
	}
}

type tableUnpacker map[byte]string

func (u tableUnpacker) Unpack(p [decoder.PayloadBits]byte) (string, error) {
	if s, ok := u[p[0]]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown payload %d", p[0])
}

func TestReportUnpacksPayload(t *testing.T) {
	out := &collect{}
	cc := NewCycleContext(tableUnpacker{1: "K1ABC W9XYZ EN37"}, out)
	cc.Reset(base)

	var a, b, bad decoder.Record
	a.Payload[0], b.Payload[0], bad.Payload[0] = 1, 1, 9
	b.Hz0 = 700 // different bits, same text

	if cc.Report(a) != decoder.New || cc.Report(b) != decoder.Duplicate {
		t.Fatal("payloads with the same text must collapse")
	}
	if d := cc.Report(bad); d != decoder.Duplicate {
		t.Fatalf("unpack failure = %v, want duplicate", d)
	}
	if cc.Tally() != 1 || out.got[0].Text != "K1ABC W9XYZ EN37" {
		t.Fatalf("tally=%d text=%q", cc.Tally(), out.got[0].Text)
	}
}

func TestConcurrentReportsCountDistinct(t *testing.T) {
	out := &collect{}
	cc := NewCycleContext(nil, out)
	cc.Reset(base)

	const workers, distinct = 16, 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	news := 0
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < distinct; i++ {
				msg := fmt.Sprintf("CQ K%dAA FN%02d", (i+w)%distinct, (i+w)%distinct)
				if cc.Report(decoder.Record{Text: msg}) == decoder.New {
					mu.Lock()
					news++
					mu.Unlock()
				}
			}
		}(w)
	}
	wg.Wait()

	if cc.Tally() != distinct || news != distinct || out.len() != distinct {
		t.Fatalf("tally=%d new=%d emitted=%d, want %d", cc.Tally(), news, out.len(), distinct)
	}
	if cc.Duplicates() != workers*distinct-distinct {
		t.Fatalf("duplicates=%d", cc.Duplicates())
	}
}

// fakeClock advances only when slept on.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// liveSource hands out the newest window ending at the clock's now, or a
// fixed window when one is set.
type liveSource struct {
	clock *fakeClock
	rate  int
	n     int
	first *time.Time
	err   error
	gets  int
}

func (s *liveSource) Start(context.Context) error { return nil }
func (s *liveSource) Rate() int                   { return s.rate }
func (s *liveSource) Close() error                { return nil }

func (s *liveSource) Get(n int, mode audio.GetMode) ([]float64, time.Time, error) {
	s.gets++
	if s.err != nil {
		return nil, time.Time{}, s.err
	}
	if mode != audio.DiscardOlder {
		return nil, time.Time{}, errors.New("scheduler must discard older samples")
	}
	count := n
	if s.n > 0 {
		count = s.n
	}
	samples := make([]float64, count)
	for i := range samples {
		samples[i] = 0.25
	}
	if s.first != nil {
		return samples, *s.first, nil
	}
	return samples, s.clock.Now().Add(-time.Duration(count) * time.Second / time.Duration(s.rate)), nil
}

type engineFunc func(ctx context.Context, req decoder.Request, sink decoder.Sink) error

func (f engineFunc) Decode(ctx context.Context, req decoder.Request, sink decoder.Sink) error {
	return f(ctx, req, sink)
}

type recordingEngine struct {
	mu   sync.Mutex
	reqs []decoder.Request
	msgs []string
}

func (e *recordingEngine) Decode(_ context.Context, req decoder.Request, sink decoder.Sink) error {
	e.mu.Lock()
	e.reqs = append(e.reqs, req)
	e.mu.Unlock()
	for _, m := range e.msgs {
		sink.Report(decoder.Record{Text: m})
	}
	return nil
}

func (e *recordingEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reqs)
}

type observed struct {
	res []CycleResult
}

func (o *observed) ObserveCycle(res CycleResult) { o.res = append(o.res, res) }

func TestRunCycleSkipsMisalignedWindow(t *testing.T) {
	clock := &fakeClock{now: base.Add(14500 * time.Millisecond)}
	first := base.Add(time.Second)
	src := &liveSource{clock: clock, rate: 100, n: 1350, first: &first}
	eng := &recordingEngine{}
	obs := &observed{}
	var summary bytes.Buffer
	s := NewScheduler(src, eng, NewCycleContext(nil), Options{Clock: clock, Summary: &summary, Observers: []Observer{obs}})

	res, err := s.RunCycle(context.Background(), clock.Now())
	if !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
	if eng.calls() != 0 {
		t.Fatalf("engine called %d times", eng.calls())
	}
	if res.Outcome != Skipped || res.NominalStart != -50 {
		t.Fatalf("result %+v", res)
	}
	if summary.Len() != 0 {
		t.Fatalf("summary printed for skipped cycle: %q", summary.String())
	}
	if len(obs.res) != 1 || obs.res[0].Outcome != Skipped {
		t.Fatalf("observer saw %+v", obs.res)
	}
}

func TestRunCyclePadsShortWindow(t *testing.T) {
	clock := &fakeClock{now: base.Add(14950 * time.Millisecond)}
	src := &liveSource{clock: clock, rate: 100, n: 1490}
	eng := &recordingEngine{msgs: []string{"CQ AB1HL FN42"}}
	var summary bytes.Buffer
	s := NewScheduler(src, eng, NewCycleContext(nil), Options{Clock: clock, Summary: &summary})

	res, err := s.RunCycle(context.Background(), clock.Now())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	req := eng.reqs[0]
	if len(req.Samples) != 1500 {
		t.Fatalf("engine got %d samples, want 1500", len(req.Samples))
	}
	for i := 1490; i < 1500; i++ {
		if req.Samples[i] != 0 {
			t.Fatalf("tail sample %d = %f, want zero padding", i, req.Samples[i])
		}
	}
	if req.Samples[1489] != 0.25 || req.NominalStart != 45 || req.Rate != 100 {
		t.Fatalf("request nominal=%d rate=%d", req.NominalStart, req.Rate)
	}
	if req.Params != decoder.DefaultParams() || req.Prior != nil {
		t.Fatalf("unexpected params %+v", req.Params)
	}
	if res.Decodes != 1 || summary.String() != "12:00:00 decodes: 1, processing time 0.0 seconds\n" {
		t.Fatalf("decodes=%d summary=%q", res.Decodes, summary.String())
	}
}

func TestRunCycleSourceError(t *testing.T) {
	clock := &fakeClock{now: base.Add(14 * time.Second)}
	src := &liveSource{clock: clock, rate: 100, err: errors.New("device gone")}
	eng := &recordingEngine{}
	s := NewScheduler(src, eng, NewCycleContext(nil), Options{Clock: clock})

	res, err := s.RunCycle(context.Background(), clock.Now())
	if err == nil || res.Outcome != Failed || eng.calls() != 0 {
		t.Fatalf("res=%+v err=%v calls=%d", res, err, eng.calls())
	}
}

// stopAfter closes the gate once the engine has run n times.
type stopAfter struct {
	eng *recordingEngine
	n   int
}

func (g stopAfter) Stopping() bool { return g.eng.calls() >= g.n }

func TestRunDecodesOncePerCycle(t *testing.T) {
	clock := &fakeClock{now: base.Add(13 * time.Second)}
	src := &liveSource{clock: clock, rate: 100}
	eng := &recordingEngine{msgs: []string{"CQ AB1HL FN42", "CQ AB1HL FN42"}}
	obs := &observed{}
	var summary bytes.Buffer
	s := NewScheduler(src, eng, NewCycleContext(nil), Options{
		Clock:     clock,
		Gate:      stopAfter{eng: eng, n: 3},
		Summary:   &summary,
		Observers: []Observer{obs},
	})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.gets != 3 {
		t.Fatalf("source read %d times for 3 cycles", src.gets)
	}
	for i, res := range obs.res {
		want := base.Add(time.Duration(i) * 15 * time.Second)
		if !res.CycleStart.Equal(want) || res.Decodes != 1 || res.Duplicates != 1 {
			t.Fatalf("cycle %d: %+v", i, res)
		}
	}
	if got := strings.Count(summary.String(), "decodes: 1,"); got != 3 {
		t.Fatalf("summary:\n%s", summary.String())
	}
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	clock := &fakeClock{now: base}
	s := NewScheduler(&liveSource{clock: clock, rate: 100}, &recordingEngine{}, NewCycleContext(nil), Options{Clock: clock})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSetParamsAppliesToNextCycle(t *testing.T) {
	clock := &fakeClock{now: base.Add(14 * time.Second)}
	eng := &recordingEngine{}
	s := NewScheduler(&liveSource{clock: clock, rate: 100}, eng, NewCycleContext(nil), Options{Clock: clock})

	p := decoder.DefaultParams()
	p.BudgetA, p.BudgetB = time.Second, 2*time.Second
	s.SetParams(p)
	if _, err := s.RunCycle(context.Background(), clock.Now()); err != nil {
		t.Fatal(err)
	}
	if eng.reqs[0].Params.BudgetB != 2*time.Second {
		t.Fatalf("params not applied: %+v", eng.reqs[0].Params)
	}
}

func TestReplayFilesPrintsEachMessageOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "240101_120015.wav")
	if err := wavfile.Write(path, make([]float64, 15*12000), 12000); err != nil {
		t.Fatal(err)
	}

	// Two passes recover the same message from different workers.
	eng := engineFunc(func(ctx context.Context, req decoder.Request, sink decoder.Sink) error {
		if req.NominalStart != 6000 || req.Rate != 12000 {
			return fmt.Errorf("nominal %d rate %d", req.NominalStart, req.Rate)
		}
		var wg sync.WaitGroup
		for pass := 0; pass < 2; pass++ {
			wg.Add(1)
			go func(pass int) {
				defer wg.Done()
				sink.Report(decoder.Record{Text: "CQ AB1HL FN42", SNR: -3, TimeOffset: 0.6, Hz0: 1200, Pass: pass})
			}(pass)
		}
		wg.Wait()
		return nil
	})

	var lines, summary bytes.Buffer
	cc := NewCycleContext(nil, report.NewPrinter(&lines, 500*time.Millisecond))
	s := NewScheduler(nil, eng, cc, Options{Summary: &summary})

	err := s.ReplayFiles(context.Background(), []string{path, filepath.Join(dir, "missing.wav")})
	if err == nil || !strings.Contains(err.Error(), "missing.wav") {
		t.Fatalf("expected error naming the missing file, got %v", err)
	}
	if got := strings.Count(lines.String(), "CQ AB1HL FN42"); got != 1 {
		t.Fatalf("message printed %d times:\n%s", got, lines.String())
	}
	if !strings.HasPrefix(lines.String(), "120015  -3   0  0.10 ") {
		t.Fatalf("decode line %q", lines.String())
	}
	if !strings.HasPrefix(summary.String(), "12:00:15 decodes: 1,") {
		t.Fatalf("summary %q", summary.String())
	}
}

func TestReplayFilesDecimatesMultipleRates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "240101_120030.wav")
	in := make([]float64, 15*48000)
	for i := range in {
		in[i] = 0.25
	}
	if err := wavfile.Write(path, in, 48000); err != nil {
		t.Fatal(err)
	}

	eng := &recordingEngine{}
	s := NewScheduler(nil, eng, NewCycleContext(nil), Options{})
	if err := s.ReplayFiles(context.Background(), []string{path}); err != nil {
		t.Fatal(err)
	}
	if eng.calls() != 1 {
		t.Fatalf("engine called %d times", eng.calls())
	}
	req := eng.reqs[0]
	if req.Rate != 12000 || req.NominalStart != 6000 || len(req.Samples) != 15*12000 {
		t.Fatalf("rate %d nominal %d samples %d", req.Rate, req.NominalStart, len(req.Samples))
	}
	if mid := req.Samples[len(req.Samples)/2]; mid < 0.24 || mid > 0.26 {
		t.Fatalf("level after decimation %f", mid)
	}
}

func TestReplayFilesRejectsOddRates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "240101_120045.wav")
	if err := wavfile.Write(path, make([]float64, 44100), 44100); err != nil {
		t.Fatal(err)
	}

	eng := &recordingEngine{}
	s := NewScheduler(nil, eng, NewCycleContext(nil), Options{})
	err := s.ReplayFiles(context.Background(), []string{path})
	if err == nil || !strings.Contains(err.Error(), "44100 Hz") {
		t.Fatalf("expected rate error, got %v", err)
	}
	if eng.calls() != 0 {
		t.Fatal("engine ran on an unusable recording")
	}
}
