package recurrence

import (
	"errors"
	"time"
)

// MaxExpansionDays caps how many calendar days a single expansion may cover.
const MaxExpansionDays = 366

// ErrInvalidRange indicates the expansion range is reversed or too long.
var ErrInvalidRange = errors.New("recurrence: expansion range must be ordered and at most 366 days")

// Occurrence represents one concrete instance of a weekly schedule.
type Occurrence struct {
	Date  Date
	Start time.Time
	End   time.Time
}

// Engine expands weekly schedules into concrete occurrences.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that materialises wall-clock times in loc.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location returns the engine's time zone.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// ValidateRange reports ErrInvalidRange unless from <= to and the inclusive range spans at
// most MaxExpansionDays days.
func ValidateRange(from, to Date) error {
	if from.After(to) {
		return ErrInvalidRange
	}
	if to.In(time.UTC).Sub(from.In(time.UTC)) >= MaxExpansionDays*24*time.Hour {
		return ErrInvalidRange
	}
	return nil
}

// Occurrences lists the occurrences of s on every date in the inclusive range [from, to].
//
// The engine enforces the following semantics:
//   - Dates outside the schedule's validity window are skipped.
//   - Only dates whose weekday belongs to the recurrence produce an occurrence.
//   - Start and End are built from the wall-clock window in the engine's location,
//     so daylight-saving shifts keep the advertised local times.
func (e *Engine) Occurrences(s Schedule, from, to Date) ([]Occurrence, error) {
	if err := ValidateRange(from, to); err != nil {
		return nil, err
	}
	if err := s.Recurrence.Validate(); err != nil {
		return nil, err
	}

	lower, upper := from, to
	if s.Validity != nil {
		if s.Validity.From.After(lower) {
			lower = s.Validity.From
		}
		if s.Validity.To.Before(upper) {
			upper = s.Validity.To
		}
	}
	if lower.After(upper) {
		return nil, nil
	}

	loc := e.Location()
	occurrences := make([]Occurrence, 0)
	for current := lower; !current.After(upper); current = current.AddDays(1) {
		if !s.Recurrence.Weekdays.Has(current.Weekday()) {
			continue
		}
		midnight := current.In(loc)
		occurrences = append(occurrences, Occurrence{
			Date:  current,
			Start: combine(midnight, s.Recurrence.Start, loc),
			End:   combine(midnight, s.Recurrence.End, loc),
		})
	}

	return occurrences, nil
}

func combine(midnight time.Time, t TimeOfDay, loc *time.Location) time.Time {
	y, m, d := midnight.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, loc)
}
