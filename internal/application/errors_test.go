package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/example/room-timetable/internal/recurrence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"field": "invalid"}}
	if got := withFields.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for populated error, got %q", got)
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	if base.HasErrors() {
		t.Fatal("expected HasErrors to report false for empty error")
	}
	base.add("first", "value")
	base.add("first", "ignored")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected first message to be kept, got %q", got)
	}

	base.merge(&ValidationError{FieldErrors: map[string]string{"second": "another"}})
	base.merge(nil)
	if len(base.FieldErrors) != 2 || !base.HasErrors() {
		t.Fatalf("unexpected fields after merge: %v", base.FieldErrors)
	}
}

func TestConflictError(t *testing.T) {
	t.Parallel()

	conflict := &ConflictError{
		SessionID: "math",
		Label:     "Math",
		RoomID:    "room-1",
		Weekdays:  recurrence.MustWeekdaySet(time.Monday, time.Wednesday),
		Start:     recurrence.Clock(8, 0),
		End:       recurrence.Clock(10, 0),
	}
	wrapped := fmt.Errorf("save: %w", conflict)

	if !errors.Is(wrapped, ErrConflict) {
		t.Fatal("expected wrapped conflict to match ErrConflict")
	}
	var target *ConflictError
	if !errors.As(wrapped, &target) || target.SessionID != "math" {
		t.Fatalf("expected errors.As to recover the conflict, got %+v", target)
	}
	if !strings.Contains(conflict.Error(), "Monday,Wednesday 08:00-10:00") {
		t.Fatalf("unexpected message %q", conflict.Error())
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":              nil,
		"room_conflict": fmt.Errorf("save: %w", &ConflictError{SessionID: "x"}),
		"not_found":     fmt.Errorf("wrap: %w", ErrNotFound),
		"validation":    &ValidationError{FieldErrors: map[string]string{"label": "required"}},
		"canceled":      fmt.Errorf("list: %w", context.DeadlineExceeded),
		"unexpected":    errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Errorf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
