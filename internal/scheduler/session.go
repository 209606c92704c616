package scheduler

import (
	"time"

	"github.com/example/room-timetable/internal/recurrence"
)

// Room is a physical room sessions are bound to.
type Room struct {
	ID   string
	Name string
}

// Session is a recurring weekly class bound to one room.
type Session struct {
	ID         string
	Label      string
	RoomID     string
	Recurrence recurrence.WeeklyRecurrence
	Validity   *recurrence.ValidityWindow
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Schedule returns the session's recurrence paired with its validity window.
func (s Session) Schedule() recurrence.Schedule {
	return recurrence.Schedule{Recurrence: s.Recurrence, Validity: s.Validity}
}

// OccursOnDate reports whether the session is in effect on d.
func (s Session) OccursOnDate(d recurrence.Date) bool {
	return s.Schedule().OccursOnDate(d)
}

// CreatedBefore reports whether s precedes other in creation order.
// Sessions created at the same instant are ordered by id.
func (s Session) CreatedBefore(other Session) bool {
	if !s.CreatedAt.Equal(other.CreatedAt) {
		return s.CreatedAt.Before(other.CreatedAt)
	}
	return s.ID < other.ID
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	clone := s
	if s.Validity != nil {
		w := *s.Validity
		clone.Validity = &w
	}
	return clone
}
