package store_test

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"timekeep/internal/session"
	"timekeep/internal/store"
	"timekeep/testutil"
)

func program(exe string, start time.Time) session.Session {
	return session.NewProgram(session.ProgramInfo{
		ExePath:     exe,
		ProcessName: filepath.Base(exe),
		WindowTitle: "w",
	}, start, false)
}

func tab(domain string, start time.Time) session.Session {
	return session.NewTab(session.TabInfo{Domain: domain, Title: "t"}, start, false)
}

// slowStore opens a store whose background flusher will not get a
// chance to run mid-test, so error-path tests observe the batch failure
// from their own Flush call.
func slowStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timekeep-test.db")
	st, err := store.Open(path, time.Second, testutil.QuietLogger())
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen_RejectsSlowFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slow.db")
	_, err := store.Open(path, 2*time.Second, testutil.QuietLogger())
	var wait *session.WayTooLongWaitError
	if !errors.As(err, &wait) {
		t.Fatalf("Open() error = %v, want WayTooLongWaitError", err)
	}
}

func TestStartSession_OpensLogAndZeroSummary(t *testing.T) {
	st := testutil.TempStore(t)
	start := testutil.At(12, 0, 0)

	if err := st.Programs().StartSession(program("/usr/bin/vim", start)); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	logs, err := st.Programs().LogsForDay(start)
	if err != nil {
		t.Fatalf("LogsForDay() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("log rows = %d, want 1", len(logs))
	}
	row := logs[0]
	if row.DurationInSec != 0 {
		t.Errorf("new log row duration = %d, want 0 (open)", row.DurationInSec)
	}
	if !row.EndTime.Equal(start.Add(10 * time.Second)) {
		t.Errorf("new log row end = %v, want start+10s", row.EndTime)
	}
	if row.ProcessName != "vim" {
		t.Errorf("process name = %q", row.ProcessName)
	}

	summary, ok, err := st.Programs().ReadRowForIdentity("/usr/bin/vim", start)
	if err != nil || !ok {
		t.Fatalf("ReadRowForIdentity() = %v, %v", ok, err)
	}
	if summary.HoursSpent != 0 {
		t.Errorf("fresh summary hours = %f, want 0", summary.HoursSpent)
	}
}

func TestStartSession_ReusesSummaryRow(t *testing.T) {
	st := testutil.TempStore(t)
	start := testutil.At(12, 0, 0)

	st.Programs().StartSession(program("/usr/bin/vim", start))
	st.Programs().StartSession(program("/usr/bin/vim", start.Add(time.Minute)))
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	rows, err := st.Programs().ReadDay(start)
	if err != nil {
		t.Fatalf("ReadDay() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("summary rows = %d, want 1 per identity-day", len(rows))
	}
}

func TestPushWindowAheadTenSec(t *testing.T) {
	st := testutil.TempStore(t)
	start := testutil.At(12, 0, 0)
	s := program("/usr/bin/vim", start)

	st.Programs().StartSession(s)
	st.Programs().PushWindowAheadTenSec(s)
	st.Programs().PushWindowAheadTenSec(s)
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	logs, _ := st.Programs().LogsForDay(start)
	if want := start.Add(30 * time.Second); !logs[0].EndTime.Equal(want) {
		t.Errorf("end after 2 pulses = %v, want %v", logs[0].EndTime, want)
	}
	summary, _, _ := st.Programs().ReadRowForIdentity("/usr/bin/vim", start)
	if want := 20.0 / 3600; math.Abs(summary.HoursSpent-want) > 1e-9 {
		t.Errorf("hours after 2 pulses = %f, want %f", summary.HoursSpent, want)
	}
}

func TestPushWithoutOpenRow(t *testing.T) {
	st := slowStore(t)
	s := program("/usr/bin/vim", testutil.At(12, 0, 0))

	st.Programs().PushWindowAheadTenSec(s)
	err := st.Flush()
	var impossible *session.ImpossibleStateError
	if !errors.As(err, &impossible) {
		t.Fatalf("Flush() error = %v, want ImpossibleStateError", err)
	}
}

func TestAddPartialWindow(t *testing.T) {
	st := testutil.TempStore(t)
	start := testutil.At(12, 0, 0)
	s := program("/usr/bin/vim", start)

	st.Programs().StartSession(s)
	st.Programs().PushWindowAheadTenSec(s)
	st.Programs().AddPartialWindow(s, 3)
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	logs, _ := st.Programs().LogsForDay(start)
	if want := start.Add(23 * time.Second); !logs[0].EndTime.Equal(want) {
		t.Errorf("end after pulse+partial = %v, want %v", logs[0].EndTime, want)
	}
	summary, _, _ := st.Programs().ReadRowForIdentity("/usr/bin/vim", start)
	if want := 13.0 / 3600; math.Abs(summary.HoursSpent-want) > 1e-9 {
		t.Errorf("hours = %f, want %f", summary.HoursSpent, want)
	}
}

func TestFinalizeLog(t *testing.T) {
	st := testutil.TempStore(t)
	start := testutil.At(12, 0, 0)
	s := program("/usr/bin/vim", start)

	st.Programs().StartSession(s)
	st.Programs().PushWindowAheadTenSec(s)
	if err := s.ConcludeAt(start.Add(16 * time.Second)); err != nil {
		t.Fatalf("ConcludeAt() error = %v", err)
	}
	if err := st.Programs().FinalizeLog(s); err != nil {
		t.Fatalf("FinalizeLog() error = %v", err)
	}
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	logs, _ := st.Programs().LogsForDay(start)
	row := logs[0]
	if row.DurationInSec != 16 {
		t.Errorf("finalized duration = %d, want 16", row.DurationInSec)
	}
	if !row.EndTime.Equal(start.Add(16 * time.Second)) {
		t.Errorf("finalized end = %v", row.EndTime)
	}

	// second finalize is a no-op
	if err := st.Programs().FinalizeLog(s); err != nil {
		t.Fatalf("second FinalizeLog() error = %v", err)
	}
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	logs, _ = st.Programs().LogsForDay(start)
	if len(logs) != 1 || logs[0].DurationInSec != 16 {
		t.Errorf("second finalize changed the row: %+v", logs)
	}
}

func TestFinalizeLog_RejectsSuspiciousDuration(t *testing.T) {
	st := testutil.TempStore(t)
	start := testutil.At(9, 0, 0)
	s := program("/usr/bin/vim", start)
	if err := s.ConcludeAt(start.Add(2 * time.Hour)); err != nil {
		t.Fatalf("ConcludeAt() error = %v", err)
	}

	err := st.Programs().FinalizeLog(s)
	var suspicious *session.SuspiciousDurationError
	if !errors.As(err, &suspicious) {
		t.Fatalf("FinalizeLog() error = %v, want SuspiciousDurationError", err)
	}
}

func TestDailyCapSurfaces(t *testing.T) {
	st := slowStore(t)
	start := testutil.At(12, 0, 0)
	s := program("/usr/bin/vim", start)

	st.Programs().StartSession(s)
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	// push the summary just under the daily cap, then pulse over it
	if _, err := st.DB().Exec(
		`UPDATE daily_program_summary SET hours_spent = 15.999 WHERE exe_path = ?`,
		"/usr/bin/vim",
	); err != nil {
		t.Fatalf("seed hours: %v", err)
	}

	st.Programs().PushWindowAheadTenSec(s)
	err := st.Flush()
	var suspicious *session.SuspiciousDurationError
	if !errors.As(err, &suspicious) {
		t.Fatalf("Flush() error = %v, want SuspiciousDurationError", err)
	}
}

func TestAtMostOneOpenRowPerDay(t *testing.T) {
	st := testutil.TempStore(t)
	start := testutil.At(12, 0, 0)

	first := program("/usr/bin/vim", start)
	st.Programs().StartSession(first)
	if err := first.ConcludeAt(start.Add(20 * time.Second)); err != nil {
		t.Fatalf("ConcludeAt() error = %v", err)
	}
	st.Programs().FinalizeLog(first)

	second := program("/usr/bin/vim", start.Add(time.Minute))
	st.Programs().StartSession(second)
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	logs, _ := st.Programs().LogsForDay(start)
	open := 0
	for _, row := range logs {
		if row.DurationInSec == 0 {
			open++
		}
	}
	if open > 1 {
		t.Errorf("open rows = %d, want at most 1", open)
	}
}

// Feeding a full day of events through the write path must leave the
// summary and logs agreeing within 0.2%.
func TestSummaryMatchesLogs(t *testing.T) {
	st := testutil.TempStore(t)
	day := testutil.At(9, 0, 0)

	cases := []struct {
		exe     string
		seconds int
	}{
		{"/usr/bin/vim", 30},
		{"/usr/bin/go", 43},
		{"/usr/bin/slack", 17},
	}
	cursor := day
	for _, c := range cases {
		s := program(c.exe, cursor)
		st.Programs().StartSession(s)
		for i := 0; i < c.seconds/10; i++ {
			st.Programs().PushWindowAheadTenSec(s)
		}
		if rem := c.seconds % 10; rem > 0 {
			st.Programs().AddPartialWindow(s, rem)
		}
		if err := s.ConcludeAt(cursor.Add(time.Duration(c.seconds) * time.Second)); err != nil {
			t.Fatalf("ConcludeAt() error = %v", err)
		}
		if err := st.Programs().FinalizeLog(s); err != nil {
			t.Fatalf("FinalizeLog() error = %v", err)
		}
		cursor = cursor.Add(time.Duration(c.seconds) * time.Second)
	}
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	logs, err := st.Programs().LogsForDay(day)
	if err != nil {
		t.Fatalf("LogsForDay() error = %v", err)
	}
	byIdentity := map[string]int64{}
	for _, row := range logs {
		byIdentity[row.Identity] += row.DurationInSec
	}

	summaries, err := st.Programs().ReadDay(day)
	if err != nil {
		t.Fatalf("ReadDay() error = %v", err)
	}
	if len(summaries) != len(cases) {
		t.Fatalf("summary rows = %d, want %d", len(summaries), len(cases))
	}
	for _, summary := range summaries {
		logSec := float64(byIdentity[summary.Identity])
		sumSec := summary.HoursSpent * 3600
		if logSec == 0 {
			t.Fatalf("no logs for %s", summary.Identity)
		}
		if diff := math.Abs(sumSec-logSec) / logSec; diff > 0.002 {
			t.Errorf("%s: summary %.2fs vs logs %.2fs (%.4f%% off)",
				summary.Identity, sumSec, logSec, diff*100)
		}
	}
}

func TestReadRanges(t *testing.T) {
	st := testutil.TempStore(t)

	days := []time.Time{
		testutil.Day(2025, time.March, 10),
		testutil.Day(2025, time.March, 8),
		testutil.Day(2025, time.February, 20),
	}
	for _, day := range days {
		s := program("/usr/bin/vim", day.Add(10*time.Hour))
		st.Programs().StartSession(s)
		st.Programs().PushWindowAheadTenSec(s)
	}
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	ref := testutil.Day(2025, time.March, 10)

	day, err := st.Programs().ReadDay(ref)
	if err != nil || len(day) != 1 {
		t.Errorf("ReadDay() = %d rows, %v; want 1", len(day), err)
	}
	week, err := st.Programs().ReadPastWeek(ref)
	if err != nil || len(week) != 2 {
		t.Errorf("ReadPastWeek() = %d rows, %v; want 2", len(week), err)
	}
	month, err := st.Programs().ReadPastMonth(ref)
	if err != nil || len(month) != 3 {
		t.Errorf("ReadPastMonth() = %d rows, %v; want 3", len(month), err)
	}
	all, err := st.Programs().ReadAll()
	if err != nil || len(all) != 3 {
		t.Errorf("ReadAll() = %d rows, %v; want 3", len(all), err)
	}
	if len(all) == 3 && all[0].GatheringDateLocal != "2025-02-20" {
		t.Errorf("ReadAll() first row = %s, want oldest day", all[0].GatheringDateLocal)
	}
}

func TestTabEntity(t *testing.T) {
	st := testutil.TempStore(t)
	start := testutil.At(12, 0, 0)
	s := tab("github.com", start)

	st.Tabs().StartSession(s)
	st.Tabs().PushWindowAheadTenSec(s)
	if err := s.ConcludeAt(start.Add(12 * time.Second)); err != nil {
		t.Fatalf("ConcludeAt() error = %v", err)
	}
	st.Tabs().FinalizeLog(s)
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	logs, err := st.Tabs().LogsForDay(start)
	if err != nil || len(logs) != 1 {
		t.Fatalf("LogsForDay() = %d rows, %v", len(logs), err)
	}
	if logs[0].Identity != "github.com" || logs[0].TabTitle != "t" {
		t.Errorf("tab log row = %+v", logs[0])
	}
	if logs[0].DurationInSec != 12 {
		t.Errorf("tab duration = %d, want 12", logs[0].DurationInSec)
	}

	// tab writes never leak into the program tables
	progs, _ := st.Programs().ReadDay(start)
	if len(progs) != 0 {
		t.Errorf("program summaries = %d, want 0", len(progs))
	}
}

func TestStatusLog(t *testing.T) {
	st := testutil.TempStore(t)
	t1 := testutil.At(12, 0, 0)

	st.AppendStatus(store.StatusProgramStarted, t1)
	st.AppendStatus(store.StatusOnline, t1.Add(10*time.Second))
	st.AppendStatus(store.StatusSleepDetected, t1.Add(3*time.Hour))

	rows, err := st.RecentStatuses(10)
	if err != nil {
		t.Fatalf("RecentStatuses() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("status rows = %d, want 3", len(rows))
	}
	if rows[0].Status != store.StatusProgramStarted {
		t.Errorf("first status = %s, want chronological order", rows[0].Status)
	}
	if rows[2].Status != store.StatusSleepDetected {
		t.Errorf("last status = %s", rows[2].Status)
	}

	if err := st.Health(); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}
