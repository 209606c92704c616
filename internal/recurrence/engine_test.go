package recurrence

import (
	"errors"
	"testing"
	"time"
)

func TestEngine_Occurrences(t *testing.T) {
	t.Parallel()

	// 2024-03-04 is a Monday.
	monday := Date{Year: 2024, Month: time.March, Day: 4}

	t.Run("respects weekday selections", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(time.UTC)
		schedule := Schedule{Recurrence: WeeklyRecurrence{
			Weekdays: MustWeekdaySet(time.Monday, time.Wednesday, time.Friday),
			Start:    Clock(9, 0),
			End:      Clock(10, 0),
		}}

		occurrences, err := engine.Occurrences(schedule, monday, monday.AddDays(13))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(occurrences) != 6 {
			t.Fatalf("expected 6 occurrences over two weeks, got %d", len(occurrences))
		}
		for i, occ := range occurrences {
			switch occ.Date.Weekday() {
			case time.Monday, time.Wednesday, time.Friday:
			default:
				t.Fatalf("occurrence %d on unexpected weekday %s", i, occ.Date.Weekday())
			}
			if i > 0 && !occurrences[i-1].Start.Before(occ.Start) {
				t.Fatalf("occurrences not chronological at %d", i)
			}
		}
	})

	t.Run("clips occurrences to the validity window", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(time.UTC)
		window := ValidityWindow{From: monday.AddDays(3), To: monday.AddDays(9)}
		schedule := Schedule{
			Recurrence: WeeklyRecurrence{
				Weekdays: MustWeekdaySet(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
				Start:    Clock(8, 0),
				End:      Clock(9, 30),
			},
			Validity: &window,
		}

		occurrences, err := engine.Occurrences(schedule, monday, monday.AddDays(30))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(occurrences) == 0 {
			t.Fatal("expected occurrences inside the window")
		}
		first, last := occurrences[0].Date, occurrences[len(occurrences)-1].Date
		if first != window.From {
			t.Fatalf("expected first occurrence on %s, got %s", window.From, first)
		}
		if last.After(window.To) {
			t.Fatalf("occurrence %s escapes window ending %s", last, window.To)
		}
	})

	t.Run("builds wall-clock instants in the engine location", func(t *testing.T) {
		t.Parallel()

		loc := time.FixedZone("BRT", -3*60*60)
		engine := NewEngine(loc)
		schedule := Schedule{Recurrence: WeeklyRecurrence{
			Weekdays: MustWeekdaySet(time.Monday),
			Start:    Clock(8, 0),
			End:      Clock(9, 30),
		}}

		occurrences, err := engine.Occurrences(schedule, monday, monday)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(occurrences) != 1 {
			t.Fatalf("expected a single occurrence, got %d", len(occurrences))
		}
		want := time.Date(2024, time.March, 4, 8, 0, 0, 0, loc)
		if !occurrences[0].Start.Equal(want) {
			t.Fatalf("expected start %v, got %v", want, occurrences[0].Start)
		}
		if got := occurrences[0].End.Sub(occurrences[0].Start); got != 90*time.Minute {
			t.Fatalf("expected 90 minute occurrence, got %s", got)
		}
	})

	t.Run("rejects reversed or oversized ranges", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(nil)
		schedule := Schedule{Recurrence: WeeklyRecurrence{
			Weekdays: MustWeekdaySet(time.Monday),
			Start:    Clock(8, 0),
			End:      Clock(9, 0),
		}}

		if _, err := engine.Occurrences(schedule, monday, monday.AddDays(-1)); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("expected ErrInvalidRange for reversed range, got %v", err)
		}
		if _, err := engine.Occurrences(schedule, monday, monday.AddDays(MaxExpansionDays)); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("expected ErrInvalidRange for oversized range, got %v", err)
		}
	})
}
