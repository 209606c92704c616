package recurrence

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTimeWindow indicates the start time is not before the end time.
	ErrInvalidTimeWindow = errors.New("recurrence: start time must be before end time")
	// ErrInvalidValidityWindow indicates the validity window ends before it starts.
	ErrInvalidValidityWindow = errors.New("recurrence: valid-from must not be after valid-to")
)

// WeeklyRecurrence is a weekly slot: a weekday set and a [Start, End) wall-clock window.
// Sessions never span midnight.
type WeeklyRecurrence struct {
	Weekdays WeekdaySet
	Start    TimeOfDay
	End      TimeOfDay
}

// NewWeeklyRecurrence validates and builds a recurrence.
func NewWeeklyRecurrence(weekdays WeekdaySet, start, end TimeOfDay) (WeeklyRecurrence, error) {
	rec := WeeklyRecurrence{Weekdays: weekdays, Start: start, End: end}
	if err := rec.Validate(); err != nil {
		return WeeklyRecurrence{}, err
	}
	return rec, nil
}

// Validate checks the recurrence invariants.
func (r WeeklyRecurrence) Validate() error {
	if r.Weekdays.Empty() {
		return ErrNoWeekdays
	}
	if !r.Start.Valid() || !r.End.Valid() {
		return fmt.Errorf("%w: %s-%s", ErrInvalidTimeOfDay, r.Start, r.End)
	}
	if r.Start >= r.End {
		return fmt.Errorf("%w: %s-%s", ErrInvalidTimeWindow, r.Start, r.End)
	}
	return nil
}

// TimeWindowOverlaps reports whether [Start, End) intersects [otherStart, otherEnd).
// Windows that merely touch do not overlap.
func (r WeeklyRecurrence) TimeWindowOverlaps(otherStart, otherEnd TimeOfDay) bool {
	return r.Start < otherEnd && otherStart < r.End
}

// ContainsTime reports whether t falls inside [Start, End).
func (r WeeklyRecurrence) ContainsTime(t TimeOfDay) bool {
	return r.Start <= t && t < r.End
}

// Duration returns the length of the time window.
func (r WeeklyRecurrence) Duration() time.Duration {
	return (r.End - r.Start).Duration()
}

// ValidityWindow bounds a recurrence to an inclusive calendar-date range.
type ValidityWindow struct {
	From Date
	To   Date
}

// NewValidityWindow validates and builds a validity window.
func NewValidityWindow(from, to Date) (ValidityWindow, error) {
	w := ValidityWindow{From: from, To: to}
	if err := w.Validate(); err != nil {
		return ValidityWindow{}, err
	}
	return w, nil
}

// Validate checks From <= To.
func (w ValidityWindow) Validate() error {
	if w.From.After(w.To) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidValidityWindow, w.From, w.To)
	}
	return nil
}

// Contains reports whether d lies within the inclusive window.
func (w ValidityWindow) Contains(d Date) bool {
	return !d.Before(w.From) && !d.After(w.To)
}

// WindowsOverlap reports whether two optional validity windows share at least one date.
// A nil window is unbounded in both directions.
func WindowsOverlap(a, b *ValidityWindow) bool {
	if a == nil || b == nil {
		return true
	}
	return !a.From.After(b.To) && !b.From.After(a.To)
}

// Schedule couples a recurrence with its optional validity window.
type Schedule struct {
	Recurrence WeeklyRecurrence
	Validity   *ValidityWindow
}

// NewSchedule validates both parts.
func NewSchedule(rec WeeklyRecurrence, validity *ValidityWindow) (Schedule, error) {
	if err := rec.Validate(); err != nil {
		return Schedule{}, err
	}
	if validity != nil {
		if err := validity.Validate(); err != nil {
			return Schedule{}, err
		}
	}
	return Schedule{Recurrence: rec, Validity: cloneWindow(validity)}, nil
}

// OccursOnDate reports whether the schedule is in effect on d.
func (s Schedule) OccursOnDate(d Date) bool {
	if !s.Recurrence.Weekdays.Has(d.Weekday()) {
		return false
	}
	return s.Validity == nil || s.Validity.Contains(d)
}

// ActiveAt reports whether the schedule is in progress at t, using t's own location
// for both the date and the wall-clock time.
func (s Schedule) ActiveAt(t time.Time) bool {
	return s.OccursOnDate(DateOf(t)) && s.Recurrence.ContainsTime(TimeOfDayOf(t))
}

func cloneWindow(w *ValidityWindow) *ValidityWindow {
	if w == nil {
		return nil
	}
	clone := *w
	return &clone
}
