// Package store persists daily summaries and per-session logs in SQLite.
// Every mutation goes through a batched write queue flushed on a short
// interval inside a single transaction; reads go straight to the
// database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"timekeep/internal/clock"
	"timekeep/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_program_summary (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  exe_path TEXT NOT NULL,
  hours_spent REAL NOT NULL DEFAULT 0,
  gathering_date TEXT NOT NULL,
  gathering_date_local TEXT NOT NULL,
  UNIQUE (exe_path, gathering_date_local)
);

CREATE TABLE IF NOT EXISTS program_summary_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  exe_path TEXT NOT NULL,
  process_name TEXT,
  window_title TEXT,
  detail TEXT,
  productive INTEGER NOT NULL DEFAULT 0,
  start_time TEXT NOT NULL,
  end_time TEXT NOT NULL,
  duration_in_sec INTEGER NOT NULL DEFAULT 0,
  gathering_date TEXT NOT NULL,
  gathering_date_local TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_tab_summary (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  domain TEXT NOT NULL,
  hours_spent REAL NOT NULL DEFAULT 0,
  gathering_date TEXT NOT NULL,
  gathering_date_local TEXT NOT NULL,
  UNIQUE (domain, gathering_date_local)
);

CREATE TABLE IF NOT EXISTS tab_summary_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  domain TEXT NOT NULL,
  tab_title TEXT,
  productive INTEGER NOT NULL DEFAULT 0,
  start_time TEXT NOT NULL,
  end_time TEXT NOT NULL,
  duration_in_sec INTEGER NOT NULL DEFAULT 0,
  gathering_date TEXT NOT NULL,
  gathering_date_local TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS system_status_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  status TEXT NOT NULL,
  ts TEXT NOT NULL,
  ts_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_program_log_day ON program_summary_log (exe_path, gathering_date_local);
CREATE INDEX IF NOT EXISTS idx_tab_log_day ON tab_summary_log (domain, gathering_date_local);
CREATE INDEX IF NOT EXISTS idx_status_ts_ms ON system_status_log (ts_ms);
`

const (
	timeLayout      = time.RFC3339Nano
	localDateLayout = "2006-01-02"

	// Any single session above this is a bug or a missed sleep event.
	maxSessionDuration = time.Hour
	// A human day of tracked focus cannot exceed this.
	maxDailyHours = 16.0
)

// Statuses recorded in the system status log.
const (
	StatusProgramStarted = "program_started"
	StatusOnline         = "online"
	StatusSleepDetected  = "sleep_detected"
	StatusShutdown       = "shutdown"
)

// StatusRow is one heartbeat entry.
type StatusRow struct {
	ID     int64
	Status string
	TS     time.Time
}

// Store owns the database handle and the write queue.
type Store struct {
	db     *sql.DB
	queue  *writeQueue
	logger *slog.Logger

	programs *Entity
	tabs     *Entity
}

// Open opens (creating if needed) the tracker database and starts the
// write queue. flushInterval above one second is a configuration error.
func Open(path string, flushInterval time.Duration, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("db path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	queue, err := newWriteQueue(db, flushInterval, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db, queue: queue, logger: logger}
	s.programs = &Entity{
		store:        s,
		kind:         session.KindProgram,
		summaryTable: "daily_program_summary",
		logTable:     "program_summary_log",
		identityCol:  "exe_path",
	}
	s.tabs = &Entity{
		store:        s,
		kind:         session.KindTab,
		summaryTable: "daily_tab_summary",
		logTable:     "tab_summary_log",
		identityCol:  "domain",
	}
	return s, nil
}

// Programs returns the program-entity operations.
func (s *Store) Programs() *Entity {
	return s.programs
}

// Tabs returns the tab-entity operations.
func (s *Store) Tabs() *Entity {
	return s.tabs
}

// DB exposes the handle for read-only consumers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Flush drains the write queue synchronously.
func (s *Store) Flush() error {
	return s.queue.Flush()
}

// Close flushes pending writes, stops the queue, and closes the handle.
func (s *Store) Close() error {
	err := s.queue.Close()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// AppendStatus records one status heartbeat. Heartbeats are written
// directly: the sleep detector reads them back and must not race the
// queue.
func (s *Store) AppendStatus(status string, ts time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO system_status_log (status, ts, ts_ms) VALUES (?, ?, ?)`,
		status,
		ts.Format(timeLayout),
		ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append status: %w", err)
	}
	return nil
}

// RecentStatuses returns the newest limit heartbeats, oldest first.
func (s *Store) RecentStatuses(limit int) ([]StatusRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, status, ts FROM system_status_log ORDER BY ts_ms DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	var out []StatusRow
	for rows.Next() {
		var row StatusRow
		var ts string
		if err := rows.Scan(&row.ID, &row.Status, &ts); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		row.TS, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse status ts: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("status rows: %w", err)
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Health verifies the database answers basic queries.
func (s *Store) Health() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM system_status_log`).Scan(&n); err != nil {
		return fmt.Errorf("count statuses: %w", err)
	}
	return nil
}

func gatheringDate(t time.Time) (aware string, local string) {
	midnight := clock.Midnight(t)
	return midnight.Format(timeLayout), midnight.Format(localDateLayout)
}
