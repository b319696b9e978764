package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timekeep/internal/clock"
	"timekeep/internal/session"
)

// ReadDay returns the summary rows for one local day.
func (e *Entity) ReadDay(day time.Time) ([]SummaryRow, error) {
	local := clock.Midnight(day).Format(localDateLayout)
	return e.querySummaries(
		fmt.Sprintf(`SELECT %s, hours_spent, gathering_date, gathering_date_local
		 FROM %s WHERE gathering_date_local = ?
		 ORDER BY hours_spent DESC`, e.identityCol, e.summaryTable),
		local,
	)
}

// ReadPastWeek returns summary rows for the seven days ending at ref.
func (e *Entity) ReadPastWeek(ref time.Time) ([]SummaryRow, error) {
	return e.readRange(ref.AddDate(0, 0, -6), ref)
}

// ReadPastMonth returns summary rows for the thirty days ending at ref.
func (e *Entity) ReadPastMonth(ref time.Time) ([]SummaryRow, error) {
	return e.readRange(ref.AddDate(0, 0, -29), ref)
}

func (e *Entity) readRange(from, to time.Time) ([]SummaryRow, error) {
	// localDateLayout strings sort chronologically, so BETWEEN works.
	return e.querySummaries(
		fmt.Sprintf(`SELECT %s, hours_spent, gathering_date, gathering_date_local
		 FROM %s WHERE gathering_date_local BETWEEN ? AND ?
		 ORDER BY gathering_date_local ASC, hours_spent DESC`, e.identityCol, e.summaryTable),
		clock.Midnight(from).Format(localDateLayout),
		clock.Midnight(to).Format(localDateLayout),
	)
}

// ReadRowForIdentity returns the summary row for one identity on one
// local day.
func (e *Entity) ReadRowForIdentity(identity string, day time.Time) (SummaryRow, bool, error) {
	local := clock.Midnight(day).Format(localDateLayout)
	row := e.store.db.QueryRow(
		fmt.Sprintf(`SELECT %s, hours_spent, gathering_date, gathering_date_local
		 FROM %s WHERE %s = ? AND gathering_date_local = ?`,
			e.identityCol, e.summaryTable, e.identityCol),
		identity, local,
	)
	out, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SummaryRow{}, false, nil
		}
		return SummaryRow{}, false, err
	}
	return out, true, nil
}

// ReadAll returns every summary row, oldest day first.
func (e *Entity) ReadAll() ([]SummaryRow, error) {
	return e.querySummaries(
		fmt.Sprintf(`SELECT %s, hours_spent, gathering_date, gathering_date_local
		 FROM %s ORDER BY gathering_date_local ASC, hours_spent DESC`, e.identityCol, e.summaryTable),
	)
}

// LogsForDay returns the log rows for one local day in start order.
func (e *Entity) LogsForDay(day time.Time) ([]LogRow, error) {
	local := clock.Midnight(day).Format(localDateLayout)
	return e.queryLogs(`WHERE gathering_date_local = ?`, local)
}

// LogsBetween returns the log rows for the local days from..to
// inclusive, in start order.
func (e *Entity) LogsBetween(from, to time.Time) ([]LogRow, error) {
	return e.queryLogs(
		`WHERE gathering_date_local BETWEEN ? AND ?`,
		clock.Midnight(from).Format(localDateLayout),
		clock.Midnight(to).Format(localDateLayout),
	)
}

func (e *Entity) querySummaries(query string, args ...any) ([]SummaryRow, error) {
	rows, err := e.store.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		row, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summary rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(s scanner) (SummaryRow, error) {
	var row SummaryRow
	var aware string
	if err := s.Scan(&row.Identity, &row.HoursSpent, &aware, &row.GatheringDateLocal); err != nil {
		return SummaryRow{}, err
	}
	parsed, err := time.Parse(timeLayout, aware)
	if err != nil {
		return SummaryRow{}, fmt.Errorf("parse gathering_date: %w", err)
	}
	row.GatheringDate = parsed
	return row, nil
}

func (e *Entity) queryLogs(where string, args ...any) ([]LogRow, error) {
	var query string
	switch e.kind {
	case session.KindProgram:
		query = `SELECT id, exe_path, COALESCE(process_name, ''), COALESCE(window_title, ''), COALESCE(detail, ''), productive, start_time, end_time, duration_in_sec, gathering_date, created_at
		 FROM program_summary_log ` + where + ` ORDER BY start_time ASC, id ASC`
	case session.KindTab:
		query = `SELECT id, domain, COALESCE(tab_title, ''), productive, start_time, end_time, duration_in_sec, gathering_date, created_at
		 FROM tab_summary_log ` + where + ` ORDER BY start_time ASC, id ASC`
	}
	rows, err := e.store.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var out []LogRow
	for rows.Next() {
		var row LogRow
		var start, end, aware, created string
		var scanErr error
		if e.kind == session.KindProgram {
			scanErr = rows.Scan(&row.ID, &row.Identity, &row.ProcessName, &row.WindowTitle, &row.Detail,
				&row.Productive, &start, &end, &row.DurationInSec, &aware, &created)
		} else {
			scanErr = rows.Scan(&row.ID, &row.Identity, &row.TabTitle,
				&row.Productive, &start, &end, &row.DurationInSec, &aware, &created)
		}
		if scanErr != nil {
			return nil, fmt.Errorf("scan log row: %w", scanErr)
		}
		if row.StartTime, err = time.Parse(timeLayout, start); err != nil {
			return nil, fmt.Errorf("parse start_time: %w", err)
		}
		if row.EndTime, err = time.Parse(timeLayout, end); err != nil {
			return nil, fmt.Errorf("parse end_time: %w", err)
		}
		if row.GatheringDate, err = time.Parse(timeLayout, aware); err != nil {
			return nil, fmt.Errorf("parse gathering_date: %w", err)
		}
		if row.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("log rows: %w", err)
	}
	return out, nil
}
