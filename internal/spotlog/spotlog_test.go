package spotlog

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/christian-lee/ft8mon/internal/report"
)

var cycle = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func spot(msg string, at time.Time) report.Spot {
	return report.Spot{CycleStart: at, Message: msg, SNR: -8, TimeOffset: 0.2, FreqHz: 1234.5, Pass: 1, Station: "AB1HL"}
}

func TestStoreWriteRecentCount(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(filepath.Join(t.TempDir(), "spots.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	for _, sp := range []report.Spot{
		spot("CQ K1ABC FN42", cycle),
		spot("CQ K1ABC FN42", cycle), // same cycle, ignored
		spot("CQ K1ABC FN42", cycle.Add(15*time.Second)),
		spot("W9XYZ K1ABC -05", cycle.Add(15*time.Second)),
	} {
		if err := s.Write(ctx, sp); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	recent, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d spots, want 3", len(recent))
	}
	if !recent[0].CycleStart.Equal(cycle.Add(15*time.Second)) || recent[0].Message != "CQ K1ABC FN42" {
		t.Fatalf("newest first violated: %+v", recent[0])
	}
	if recent[0].FreqHz != 1234.5 || recent[0].SNR != -8 || recent[0].Station != "AB1HL" {
		t.Fatalf("fields lost: %+v", recent[0])
	}

	n, err := s.CountSince(ctx, cycle.Add(time.Second))
	if err != nil || n != 2 {
		t.Fatalf("CountSince = %d, %v", n, err)
	}
}

func TestCSVLogWritesHeaderAndRows(t *testing.T) {
	l, err := NewCSVLog(filepath.Join(t.TempDir(), "logs"))
	if err != nil {
		t.Fatalf("NewCSVLog: %v", err)
	}
	if err := l.Write(context.Background(), spot("CQ K1ABC FN42", cycle)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	path := l.Path()
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0][0] != "cycle_start" {
		t.Fatalf("rows %v", rows)
	}
	if rows[1][0] != "2024-05-01T10:30:00Z" || rows[1][3] != "1234.5" || rows[1][6] != "CQ K1ABC FN42" {
		t.Fatalf("row %v", rows[1])
	}
	if err := l.Write(context.Background(), spot("late", cycle)); err == nil {
		t.Fatal("expected error writing to a closed log")
	}
}
