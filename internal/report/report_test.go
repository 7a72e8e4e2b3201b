package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/christian-lee/ft8mon/internal/decoder"
)

var cycle = time.Date(2024, 3, 9, 21, 4, 45, 0, time.UTC)

func TestPrinterLineFormat(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, 500*time.Millisecond)
	p.Emit(Decode{
		CycleStart: cycle,
		Text:       "CQ AB1HL FN42",
		Record:     decoder.Record{SNR: -12.7, CorrectedBits: 3, TimeOffset: 0.62, Hz0: 1234.56},
	})

	want := "210445 -12   3  0.12 1234.6 CQ AB1HL FN42\n"
	if got := buf.String(); got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}
}

func TestPrinterConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, 500*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Emit(Decode{CycleStart: cycle, Text: "K1ABC W9XYZ EN37", Record: decoder.Record{Hz0: 500}})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines", len(lines))
	}
	for _, l := range lines {
		if !strings.HasSuffix(l, "K1ABC W9XYZ EN37") || !strings.HasPrefix(l, "210445 ") {
			t.Fatalf("mangled line %q", l)
		}
	}
}

func TestSummaryFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Summary(&buf, cycle, 7, 2340*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "21:04:45 decodes: 7, processing time 2.3 seconds\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSpotJSON(t *testing.T) {
	s := NewSpot(Decode{
		CycleStart: cycle,
		Text:       "CQ AB1HL FN42",
		Record:     decoder.Record{SNR: 4, TimeOffset: 0.3, Hz0: 1500, Hz1: 1501, Pass: 1},
	}, 500*time.Millisecond, "AB1HL", "run-1")

	raw, err := s.JSON()
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back["message"] != "CQ AB1HL FN42" || back["station"] != "AB1HL" || back["pass"] != 1.0 {
		t.Fatalf("unexpected spot %s", raw)
	}
	if dt := back["dt"].(float64); dt > -0.19 || dt < -0.21 {
		t.Fatalf("dt = %v, want -0.2", dt)
	}
}
