package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timekeep/internal/session"
)

// SummaryRow is one (identity, day) rollup.
type SummaryRow struct {
	Identity           string
	HoursSpent         float64
	GatheringDate      time.Time
	GatheringDateLocal string
}

// LogRow is one per-session log entry. DurationInSec stays zero while
// the session is open; FinalizeLog closes it.
type LogRow struct {
	ID            int64
	Identity      string
	ProcessName   string
	WindowTitle   string
	Detail        string
	TabTitle      string
	Productive    bool
	StartTime     time.Time
	EndTime       time.Time
	DurationInSec int64
	GatheringDate time.Time
	CreatedAt     time.Time
}

// Entity carries the summary and log operations for one session variant.
// Program and tab stores differ only in table names, identity column,
// and log metadata columns.
type Entity struct {
	store        *Store
	kind         session.Kind
	summaryTable string
	logTable     string
	identityCol  string
}

// StartSession opens a log row with the initial ten-second window and
// creates the daily summary row at zero hours if today has none yet.
func (e *Entity) StartSession(s session.Session) error {
	identity := s.Identity()
	aware, local := gatheringDate(s.StartTime)
	start := s.StartTime
	end := start.Add(10 * time.Second)
	createdAt := time.Now().In(start.Location())
	meta := s

	e.store.queue.Enqueue(e.logTable+" start", func(tx *sql.Tx) error {
		if err := e.insertLog(tx, meta, identity, start, end, aware, local, createdAt); err != nil {
			return err
		}
		_, err := tx.Exec(
			fmt.Sprintf(`INSERT INTO %s (%s, hours_spent, gathering_date, gathering_date_local)
			 VALUES (?, 0, ?, ?)
			 ON CONFLICT(%s, gathering_date_local) DO NOTHING`,
				e.summaryTable, e.identityCol, e.identityCol),
			identity, aware, local,
		)
		if err != nil {
			return fmt.Errorf("create summary row: %w", err)
		}
		return nil
	})
	return nil
}

// PushWindowAheadTenSec extends the open log row by a full window and
// credits the summary.
func (e *Entity) PushWindowAheadTenSec(s session.Session) error {
	return e.advanceOpenWindow(s, 10)
}

// AddPartialWindow extends the open log row by the consumed remainder of
// the final window.
func (e *Entity) AddPartialWindow(s session.Session, usedSec int) error {
	return e.advanceOpenWindow(s, usedSec)
}

func (e *Entity) advanceOpenWindow(s session.Session, seconds int) error {
	identity := s.Identity()
	_, local := gatheringDate(s.StartTime)

	e.store.queue.Enqueue(fmt.Sprintf("%s advance +%ds", e.logTable, seconds), func(tx *sql.Tx) error {
		id, endTime, ok, err := e.openLogRow(tx, identity, local)
		if err != nil {
			return err
		}
		if !ok {
			return &session.ImpossibleStateError{Identity: identity, Detail: "no open log row today"}
		}
		newEnd := endTime.Add(time.Duration(seconds) * time.Second)
		if _, err := tx.Exec(
			fmt.Sprintf(`UPDATE %s SET end_time = ? WHERE id = ?`, e.logTable),
			newEnd.Format(timeLayout), id,
		); err != nil {
			return fmt.Errorf("advance end_time: %w", err)
		}
		return e.addHours(tx, identity, local, float64(seconds)/3600)
	})
	return nil
}

// FinalizeLog stamps the concluded session's end time and duration on
// the open log row. With no open row left it is a no-op, so a second
// finalize cannot double-close.
func (e *Entity) FinalizeLog(s session.Session) error {
	if !s.Ended {
		return &session.ImpossibleStateError{Identity: s.Identity(), Detail: "finalize of a session without an end time"}
	}
	if s.Duration > maxSessionDuration {
		return &session.SuspiciousDurationError{
			Identity: s.Identity(),
			Duration: s.Duration,
			Limit:    maxSessionDuration,
		}
	}
	identity := s.Identity()
	_, local := gatheringDate(s.StartTime)
	end := s.EndTime
	durationSec := int64(s.Duration.Seconds())

	e.store.queue.Enqueue(e.logTable+" finalize", func(tx *sql.Tx) error {
		id, _, ok, err := e.openLogRow(tx, identity, local)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := tx.Exec(
			fmt.Sprintf(`UPDATE %s SET end_time = ?, duration_in_sec = ? WHERE id = ?`, e.logTable),
			end.Format(timeLayout), durationSec, id,
		); err != nil {
			return fmt.Errorf("finalize log: %w", err)
		}
		return nil
	})
	return nil
}

// openLogRow finds the unique open row for (identity, local day). The
// newest one wins; the invariants keep it unique in the first place.
func (e *Entity) openLogRow(tx *sql.Tx, identity, local string) (int64, time.Time, bool, error) {
	row := tx.QueryRow(
		fmt.Sprintf(`SELECT id, end_time FROM %s
		 WHERE %s = ? AND gathering_date_local = ? AND duration_in_sec = 0
		 ORDER BY id DESC LIMIT 1`, e.logTable, e.identityCol),
		identity, local,
	)
	var id int64
	var endStr string
	if err := row.Scan(&id, &endStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, fmt.Errorf("find open log row: %w", err)
	}
	end, err := time.Parse(timeLayout, endStr)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("parse end_time: %w", err)
	}
	return id, end, true, nil
}

func (e *Entity) addHours(tx *sql.Tx, identity, local string, delta float64) error {
	row := tx.QueryRow(
		fmt.Sprintf(`SELECT id, hours_spent FROM %s WHERE %s = ? AND gathering_date_local = ?`,
			e.summaryTable, e.identityCol),
		identity, local,
	)
	var id int64
	var hours float64
	if err := row.Scan(&id, &hours); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &session.ImpossibleStateError{Identity: identity, Detail: "no summary row today"}
		}
		return fmt.Errorf("find summary row: %w", err)
	}
	next := hours + delta
	if next < 0 {
		return &session.NegativeTimeError{Identity: identity, Hours: next}
	}
	if next > maxDailyHours {
		return &session.SuspiciousDurationError{
			Identity: identity,
			Duration: time.Duration(next * float64(time.Hour)),
			Limit:    time.Duration(maxDailyHours * float64(time.Hour)),
		}
	}
	if _, err := tx.Exec(
		fmt.Sprintf(`UPDATE %s SET hours_spent = ? WHERE id = ?`, e.summaryTable),
		next, id,
	); err != nil {
		return fmt.Errorf("update hours: %w", err)
	}
	return nil
}

func (e *Entity) insertLog(tx *sql.Tx, s session.Session, identity string, start, end time.Time, aware, local string, createdAt time.Time) error {
	var err error
	switch e.kind {
	case session.KindProgram:
		_, err = tx.Exec(
			`INSERT INTO program_summary_log
			 (exe_path, process_name, window_title, detail, productive, start_time, end_time, duration_in_sec, gathering_date, gathering_date_local, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			identity,
			s.Program.ProcessName,
			s.Program.WindowTitle,
			s.Program.Detail,
			s.Productive,
			start.Format(timeLayout),
			end.Format(timeLayout),
			aware,
			local,
			createdAt.Format(timeLayout),
		)
	case session.KindTab:
		_, err = tx.Exec(
			`INSERT INTO tab_summary_log
			 (domain, tab_title, productive, start_time, end_time, duration_in_sec, gathering_date, gathering_date_local, created_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			identity,
			s.Tab.Title,
			s.Productive,
			start.Format(timeLayout),
			end.Format(timeLayout),
			aware,
			local,
			createdAt.Format(timeLayout),
		)
	}
	if err != nil {
		return fmt.Errorf("insert log row: %w", err)
	}
	return nil
}
