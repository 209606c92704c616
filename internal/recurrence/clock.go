package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidTimeOfDay indicates a wall-clock value could not be parsed.
	ErrInvalidTimeOfDay = errors.New("recurrence: invalid time of day")
	// ErrInvalidDate indicates a calendar date could not be parsed.
	ErrInvalidDate = errors.New("recurrence: invalid date")
)

const secondsPerDay = 24 * 60 * 60

// TimeOfDay is a wall-clock time without date, stored as seconds since midnight.
type TimeOfDay int32

// NewTimeOfDay builds a TimeOfDay from its components.
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d:%02d", ErrInvalidTimeOfDay, hour, minute, second)
	}
	return TimeOfDay(hour*3600 + minute*60 + second), nil
}

// Clock returns the hour-and-minute constructor result, panicking on invalid input.
// Intended for tests and literals.
func Clock(hour, minute int) TimeOfDay {
	t, err := NewTimeOfDay(hour, minute, 0)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		if len(part) != 2 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
		}
		nums[i] = n
	}
	t, err := NewTimeOfDay(nums[0], nums[1], nums[2])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	return t, nil
}

// TimeOfDayOf extracts the wall-clock time of t in t's own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 3600 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }

// Second returns the second component.
func (t TimeOfDay) Second() int { return int(t) % 60 }

// Valid reports whether t lies within [00:00, 24:00).
func (t TimeOfDay) Valid() bool { return t >= 0 && t < secondsPerDay }

// Duration returns the offset from midnight.
func (t TimeOfDay) Duration() time.Duration { return time.Duration(t) * time.Second }

// String renders "HH:MM", or "HH:MM:SS" when seconds are set.
func (t TimeOfDay) String() string {
	if t.Second() != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
	}
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Date is a civil calendar date with no time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// NewDate builds a Date, rejecting out-of-range components such as February 30.
func NewDate(year int, month time.Month, day int) (Date, error) {
	d := Date{Year: year, Month: month, Day: day}
	if DateOf(d.In(time.UTC)) != d {
		return Date{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDate, year, int(month), day)
	}
	return d, nil
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(t), nil
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Weekday returns the day of the week of d.
func (d Date) Weekday() time.Weekday {
	return d.In(time.UTC).Weekday()
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

// IsZero reports whether d is the zero value.
func (d Date) IsZero() bool { return d == Date{} }

// String renders "YYYY-MM-DD".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
