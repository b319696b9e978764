// Package testutil provides shared helpers for the tracker's tests.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"timekeep/internal/store"
)

// Zone is the fixed local zone all tests run in, so results never depend
// on the host machine's timezone.
var Zone = time.FixedZone("TESTZONE", -5*3600)

// Day returns local midnight of the given date in the test zone.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Zone)
}

// At returns a timestamp on 2025-03-10 in the test zone.
func At(hour, min, sec int) time.Time {
	return time.Date(2025, time.March, 10, hour, min, sec, 0, Zone)
}

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TempStore opens a store on a temporary database, cleaned up with the
// test.
func TempStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timekeep-test.db")
	st, err := store.Open(path, 100*time.Millisecond, QuietLogger())
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("Failed to close test store: %v", err)
		}
	})
	return st
}
