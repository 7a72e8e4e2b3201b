// Package spotlog keeps a durable record of decoded spots.
package spotlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/christian-lee/ft8mon/internal/report"
)

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite only supports one writer at a time; the dispatcher writes while
	// web handlers read.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS decodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_start INTEGER NOT NULL,
			message TEXT NOT NULL,
			snr INTEGER NOT NULL,
			dt REAL NOT NULL,
			freq_hz REAL NOT NULL,
			drift_hz REAL NOT NULL DEFAULT 0,
			corrected_bits INTEGER NOT NULL DEFAULT 0,
			pass INTEGER NOT NULL DEFAULT 0,
			annotation TEXT NOT NULL DEFAULT '',
			station TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			UNIQUE (cycle_start, message)
		);
		CREATE INDEX IF NOT EXISTS idx_decodes_cycle ON decodes(cycle_start DESC);
	`)
	return err
}

func (s *Store) Name() string { return "sqlite" }

// Write stores a spot. A message already stored for the same cycle is
// ignored, which keeps replays of the same recording idempotent.
func (s *Store) Write(ctx context.Context, sp report.Spot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO decodes
			(cycle_start, message, snr, dt, freq_hz, drift_hz, corrected_bits, pass, annotation, station, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.CycleStart.Unix(), sp.Message, sp.SNR, sp.TimeOffset, sp.FreqHz, sp.DriftHz,
		sp.CorrectedBits, sp.Pass, sp.Annotation, sp.Station, sp.RunID,
	)
	if err != nil {
		return fmt.Errorf("insert decode: %w", err)
	}
	return nil
}

// Recent returns up to limit spots, newest cycle first.
func (s *Store) Recent(ctx context.Context, limit int) ([]report.Spot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_start, message, snr, dt, freq_hz, drift_hz, corrected_bits, pass, annotation, station, run_id
		FROM decodes ORDER BY cycle_start DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decodes: %w", err)
	}
	defer rows.Close()

	var out []report.Spot
	for rows.Next() {
		var sp report.Spot
		var cycle int64
		if err := rows.Scan(&cycle, &sp.Message, &sp.SNR, &sp.TimeOffset, &sp.FreqHz, &sp.DriftHz,
			&sp.CorrectedBits, &sp.Pass, &sp.Annotation, &sp.Station, &sp.RunID); err != nil {
			return nil, fmt.Errorf("scan decode: %w", err)
		}
		sp.CycleStart = time.Unix(cycle, 0).UTC()
		out = append(out, sp)
	}
	return out, rows.Err()
}

// CountSince counts spots in cycles starting at or after t.
func (s *Store) CountSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decodes WHERE cycle_start >= ?`, t.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count decodes: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
