package application

import (
	"errors"
	"fmt"

	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/scheduler"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("application: room already booked")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message per field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// ConflictError reports the stored session a write would double-book against.
type ConflictError struct {
	SessionID string
	Label     string
	RoomID    string
	Weekdays  recurrence.WeekdaySet
	Start     recurrence.TimeOfDay
	End       recurrence.TimeOfDay
}

func newConflictError(with scheduler.Session) *ConflictError {
	return &ConflictError{
		SessionID: with.ID,
		Label:     with.Label,
		RoomID:    with.RoomID,
		Weekdays:  with.Recurrence.Weekdays,
		Start:     with.Recurrence.Start,
		End:       with.Recurrence.End,
	}
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("room %s already booked by session %s (%s, %s %s-%s)",
		e.RoomID, e.SessionID, e.Label, e.Weekdays, e.Start, e.End)
}

// Is makes errors.Is(err, ErrConflict) hold.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
