// Package history keeps a SQLite journal of emitted earbuds statuses for
// diagnostics. The journal is append-only and never restores tracker state.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"budwatch/internal/podstate"
)

// Entry is one journaled status.
type Entry struct {
	ID        int64
	SessionID string
	Time      time.Time
	Status    podstate.DeviceStatus
}

// Store is the sighting journal.
type Store struct {
	mu sync.Mutex
	db *sql.DB

	now func() time.Time
}

// Open opens (or creates) the journal at dbPath. The parent directory is
// created when missing.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite is effectively single-writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, now: time.Now}
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sightings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	connected INTEGER NOT NULL,
	left_battery INTEGER NOT NULL,
	right_battery INTEGER NOT NULL,
	case_battery INTEGER NOT NULL,
	left_charging INTEGER NOT NULL,
	right_charging INTEGER NOT NULL,
	case_charging INTEGER NOT NULL,
	model TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sightings_session ON sightings(session_id);
`)
	if err != nil {
		return fmt.Errorf("create sightings table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a status to the journal, stamped with the current time.
func (s *Store) Record(ctx context.Context, sessionID string, status podstate.DeviceStatus) error {
	return s.recordAt(ctx, sessionID, s.now(), status)
}

func (s *Store) recordAt(ctx context.Context, sessionID string, at time.Time, status podstate.DeviceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO sightings (
	session_id, timestamp, connected,
	left_battery, right_battery, case_battery,
	left_charging, right_charging, case_charging, model
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, at.UTC().Format(time.RFC3339Nano), boolToInt(status.Connected),
		status.LeftBattery, status.RightBattery, status.CaseBattery,
		boolToInt(status.LeftCharging), boolToInt(status.RightCharging), boolToInt(status.CaseCharging),
		status.Model,
	)
	if err != nil {
		return fmt.Errorf("record sighting: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, timestamp, connected,
	left_battery, right_battery, case_battery,
	left_charging, right_charging, case_charging, model
FROM sightings ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		var connected, leftChg, rightChg, caseChg int
		if err := rows.Scan(&e.ID, &e.SessionID, &ts, &connected,
			&e.Status.LeftBattery, &e.Status.RightBattery, &e.Status.CaseBattery,
			&leftChg, &rightChg, &caseChg, &e.Status.Model); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		e.Time, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse sighting timestamp %q: %w", ts, err)
		}
		e.Status.Connected = connected != 0
		e.Status.LeftCharging = leftChg != 0
		e.Status.RightCharging = rightChg != 0
		e.Status.CaseCharging = caseChg != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
