package recurrence

import (
	"errors"
	"testing"
	"time"
)

func TestNewWeeklyRecurrence_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		weekdays WeekdaySet
		start    TimeOfDay
		end      TimeOfDay
		wantErr  error
	}{
		{name: "valid", weekdays: MustWeekdaySet(time.Monday), start: Clock(8, 0), end: Clock(9, 30)},
		{name: "empty weekday set", weekdays: 0, start: Clock(8, 0), end: Clock(9, 0), wantErr: ErrNoWeekdays},
		{name: "start equals end", weekdays: MustWeekdaySet(time.Monday), start: Clock(9, 0), end: Clock(9, 0), wantErr: ErrInvalidTimeWindow},
		{name: "start after end", weekdays: MustWeekdaySet(time.Monday), start: Clock(22, 0), end: Clock(1, 0), wantErr: ErrInvalidTimeWindow},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewWeeklyRecurrence(tc.weekdays, tc.start, tc.end)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNewValidityWindow(t *testing.T) {
	t.Parallel()

	from := Date{Year: 2024, Month: time.February, Day: 1}
	to := Date{Year: 2024, Month: time.June, Day: 30}

	if _, err := NewValidityWindow(from, to); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewValidityWindow(from, from); err != nil {
		t.Fatalf("single-day window should be valid: %v", err)
	}
	if _, err := NewValidityWindow(to, from); !errors.Is(err, ErrInvalidValidityWindow) {
		t.Fatalf("expected ErrInvalidValidityWindow, got %v", err)
	}
}

func TestTimeWindowOverlaps_HalfOpen(t *testing.T) {
	t.Parallel()

	rec := WeeklyRecurrence{Weekdays: MustWeekdaySet(time.Monday), Start: Clock(8, 0), End: Clock(10, 0)}

	tests := []struct {
		name       string
		start, end TimeOfDay
		want       bool
	}{
		{name: "touching after", start: Clock(10, 0), end: Clock(11, 0), want: false},
		{name: "touching before", start: Clock(7, 0), end: Clock(8, 0), want: false},
		{name: "partial overlap", start: Clock(9, 0), end: Clock(10, 30), want: true},
		{name: "contained", start: Clock(8, 30), end: Clock(9, 0), want: true},
		{name: "containing", start: Clock(7, 0), end: Clock(11, 0), want: true},
		{name: "disjoint", start: Clock(12, 0), end: Clock(13, 0), want: false},
	}

	for _, tc := range tests {
		if got := rec.TimeWindowOverlaps(tc.start, tc.end); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSchedule_OccursOnDate(t *testing.T) {
	t.Parallel()

	// 2024-03-06 is a Wednesday.
	wednesday := Date{Year: 2024, Month: time.March, Day: 6}
	rec := WeeklyRecurrence{Weekdays: MustWeekdaySet(time.Monday, time.Wednesday), Start: Clock(8, 0), End: Clock(9, 30)}

	unbounded := Schedule{Recurrence: rec}
	if !unbounded.OccursOnDate(wednesday) {
		t.Fatal("expected occurrence on Wednesday without validity window")
	}
	if unbounded.OccursOnDate(wednesday.AddDays(1)) {
		t.Fatal("did not expect occurrence on Thursday")
	}

	window := ValidityWindow{From: wednesday, To: wednesday.AddDays(7)}
	bounded := Schedule{Recurrence: rec, Validity: &window}
	if !bounded.OccursOnDate(wednesday) || !bounded.OccursOnDate(wednesday.AddDays(7)) {
		t.Fatal("validity bounds must be inclusive")
	}
	if bounded.OccursOnDate(wednesday.AddDays(-7)) || bounded.OccursOnDate(wednesday.AddDays(14)) {
		t.Fatal("did not expect occurrences outside the validity window")
	}
}

func TestSchedule_ActiveAtBoundaries(t *testing.T) {
	t.Parallel()

	schedule := Schedule{Recurrence: WeeklyRecurrence{
		Weekdays: MustWeekdaySet(time.Wednesday),
		Start:    Clock(8, 0),
		End:      Clock(10, 0),
	}}
	at := func(h, m int) time.Time { return time.Date(2024, time.March, 6, h, m, 0, 0, time.UTC) }

	if !schedule.ActiveAt(at(8, 0)) {
		t.Fatal("start instant must be active")
	}
	if !schedule.ActiveAt(at(9, 59)) {
		t.Fatal("instant inside window must be active")
	}
	if schedule.ActiveAt(at(10, 0)) {
		t.Fatal("end instant must not be active")
	}
}

func TestWindowsOverlap(t *testing.T) {
	t.Parallel()

	d := func(day int) Date { return Date{Year: 2024, Month: time.March, Day: day} }
	a := &ValidityWindow{From: d(1), To: d(10)}
	b := &ValidityWindow{From: d(10), To: d(20)}
	c := &ValidityWindow{From: d(11), To: d(20)}

	if !WindowsOverlap(a, b) || !WindowsOverlap(b, a) {
		t.Fatal("windows sharing an inclusive endpoint must overlap")
	}
	if WindowsOverlap(a, c) || WindowsOverlap(c, a) {
		t.Fatal("disjoint windows must not overlap")
	}
	if !WindowsOverlap(nil, c) || !WindowsOverlap(a, nil) || !WindowsOverlap(nil, nil) {
		t.Fatal("absent windows are unbounded")
	}
}
