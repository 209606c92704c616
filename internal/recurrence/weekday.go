package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNoWeekdays indicates a recurrence was built without any weekday.
	ErrNoWeekdays = errors.New("recurrence: at least one weekday is required")
	// ErrUnknownWeekday indicates a weekday label could not be recognised.
	ErrUnknownWeekday = errors.New("recurrence: unknown weekday")
	// ErrDuplicateWeekday indicates the same weekday was listed more than once.
	ErrDuplicateWeekday = errors.New("recurrence: duplicate weekday")
)

// WeekdaySet is the canonical set of weekdays a recurrence occurs on.
// Bit n is set when time.Weekday(n) is a member.
type WeekdaySet uint8

const allWeekdays WeekdaySet = 1<<7 - 1

// NewWeekdaySet builds a set from the provided weekdays. Duplicates and values
// outside Sunday..Saturday are rejected rather than collapsed.
func NewWeekdaySet(days ...time.Weekday) (WeekdaySet, error) {
	var set WeekdaySet
	for _, day := range days {
		if day < time.Sunday || day > time.Saturday {
			return 0, fmt.Errorf("%w: %d", ErrUnknownWeekday, int(day))
		}
		if set.Has(day) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateWeekday, day)
		}
		set |= 1 << uint(day)
	}
	if set == 0 {
		return 0, ErrNoWeekdays
	}
	return set, nil
}

// MustWeekdaySet is like NewWeekdaySet but panics on error. Intended for tests and literals.
func MustWeekdaySet(days ...time.Weekday) WeekdaySet {
	set, err := NewWeekdaySet(days...)
	if err != nil {
		panic(err)
	}
	return set
}

// Has reports whether day is a member of the set.
func (s WeekdaySet) Has(day time.Weekday) bool {
	if day < time.Sunday || day > time.Saturday {
		return false
	}
	return s&(1<<uint(day)) != 0
}

// Intersects reports whether both sets share at least one weekday.
func (s WeekdaySet) Intersects(other WeekdaySet) bool {
	return s&other != 0
}

// Empty reports whether the set has no members.
func (s WeekdaySet) Empty() bool {
	return s&allWeekdays == 0
}

// Days returns the members in Sunday..Saturday order.
func (s WeekdaySet) Days() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		if s.Has(day) {
			days = append(days, day)
		}
	}
	return days
}

// String renders the set as comma separated English weekday names.
func (s WeekdaySet) String() string {
	days := s.Days()
	names := make([]string, len(days))
	for i, day := range days {
		names[i] = day.String()
	}
	return strings.Join(names, ",")
}

var weekdayLabels = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,

	// Labels written by the legacy planning screen.
	"domingo": time.Sunday,
	"segunda": time.Monday,
	"terca":   time.Tuesday,
	"quarta":  time.Wednesday,
	"quinta":  time.Thursday,
	"sexta":   time.Friday,
	"sabado":  time.Saturday,
}

// ParseWeekday resolves a single weekday label. Matching ignores case, diacritics, extra
// whitespace and a Portuguese "-feira" or " feira" suffix.
func ParseWeekday(label string) (time.Weekday, error) {
	key := strings.Join(strings.Fields(normalizeLabel(label)), " ")
	key = strings.TrimSuffix(key, "-feira")
	key = strings.TrimSuffix(key, " feira")
	day, ok := weekdayLabels[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, strings.TrimSpace(label))
	}
	return day, nil
}

// ParseWeekdays parses a weekday list delimited by commas, semicolons or pipes, such as
// "Segunda,Quarta" or "segunda feira; quarta feira". Whitespace is not a delimiter.
// Empty lists, unknown labels and repeated days fail.
func ParseWeekdays(value string) (WeekdaySet, error) {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	days := make([]time.Weekday, 0, len(fields))
	for _, field := range fields {
		if strings.TrimSpace(field) == "" {
			continue
		}
		day, err := ParseWeekday(field)
		if err != nil {
			return 0, err
		}
		days = append(days, day)
	}
	if len(days) == 0 {
		return 0, ErrNoWeekdays
	}
	return NewWeekdaySet(days...)
}

// ParseWeekdayLabels is the slice form of ParseWeekdays.
func ParseWeekdayLabels(labels []string) (WeekdaySet, error) {
	if len(labels) == 0 {
		return 0, ErrNoWeekdays
	}
	days := make([]time.Weekday, 0, len(labels))
	for _, label := range labels {
		day, err := ParseWeekday(label)
		if err != nil {
			return 0, err
		}
		days = append(days, day)
	}
	return NewWeekdaySet(days...)
}

func normalizeLabel(label string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, strings.TrimSpace(label))
	if err != nil {
		stripped = strings.TrimSpace(label)
	}
	return cases.Fold().String(stripped)
}
