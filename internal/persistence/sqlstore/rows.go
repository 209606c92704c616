package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/scheduler"
)

// timestampLayout is fixed width so text ordering matches chronological ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const sessionColumns = `id, label, room_id, weekdays, start_time, end_time, valid_from, valid_to, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, value)
	if err != nil {
		// Rows written by other tools may use plain RFC3339.
		return time.Parse(time.RFC3339Nano, value)
	}
	return t, nil
}

func sessionArgs(session scheduler.Session) []any {
	var from, to sql.NullString
	if session.Validity != nil {
		from = sql.NullString{String: session.Validity.From.String(), Valid: true}
		to = sql.NullString{String: session.Validity.To.String(), Valid: true}
	}
	return []any{
		session.Label,
		session.RoomID,
		session.Recurrence.Weekdays.String(),
		session.Recurrence.Start.String(),
		session.Recurrence.End.String(),
		from,
		to,
	}
}

func scanSession(row rowScanner) (scheduler.Session, error) {
	var (
		session                    scheduler.Session
		weekdays, startStr, endStr string
		validFrom, validTo         sql.NullString
		createdAtStr, updatedAtStr string
	)
	if err := row.Scan(
		&session.ID,
		&session.Label,
		&session.RoomID,
		&weekdays,
		&startStr,
		&endStr,
		&validFrom,
		&validTo,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return scheduler.Session{}, err
	}

	days, err := recurrence.ParseWeekdays(weekdays)
	if err != nil {
		return scheduler.Session{}, fmt.Errorf("session %s: weekdays: %w", session.ID, err)
	}
	start, err := recurrence.ParseTimeOfDay(startStr)
	if err != nil {
		return scheduler.Session{}, fmt.Errorf("session %s: start_time: %w", session.ID, err)
	}
	end, err := recurrence.ParseTimeOfDay(endStr)
	if err != nil {
		return scheduler.Session{}, fmt.Errorf("session %s: end_time: %w", session.ID, err)
	}
	session.Recurrence = recurrence.WeeklyRecurrence{Weekdays: days, Start: start, End: end}

	if validFrom.Valid && validTo.Valid {
		from, err := recurrence.ParseDate(validFrom.String)
		if err != nil {
			return scheduler.Session{}, fmt.Errorf("session %s: valid_from: %w", session.ID, err)
		}
		to, err := recurrence.ParseDate(validTo.String)
		if err != nil {
			return scheduler.Session{}, fmt.Errorf("session %s: valid_to: %w", session.ID, err)
		}
		session.Validity = &recurrence.ValidityWindow{From: from, To: to}
	}

	if session.CreatedAt, err = parseTimestamp(createdAtStr); err != nil {
		return scheduler.Session{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if session.UpdatedAt, err = parseTimestamp(updatedAtStr); err != nil {
		return scheduler.Session{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return session, nil
}
