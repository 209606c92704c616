package application

import (
	"time"

	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/scheduler"
)

// SaveSessionParams captures caller provided session fields. An empty SessionID creates a
// new session; otherwise the stored session is fully replaced.
type SaveSessionParams struct {
	SessionID string
	Label     string
	RoomID    string
	// Weekdays holds weekday labels; each entry may itself be a delimited list.
	Weekdays  []string
	StartTime string
	EndTime   string
	// ValidFrom and ValidTo are "YYYY-MM-DD" and must be supplied together.
	ValidFrom *string
	ValidTo   *string
}

// ActiveSnapshot is the set of sessions in progress at At.
type ActiveSnapshot struct {
	At           time.Time
	Sessions     []scheduler.ActiveSession
	DoubleBooked []string
}

// AgendaEntry is one concrete occurrence of a session in a room.
type AgendaEntry struct {
	SessionID string
	Label     string
	Date      recurrence.Date
	Start     time.Time
	End       time.Time
}

// SubscribeOptions tunes SubscribeActiveSessions.
type SubscribeOptions struct {
	// OnError receives recomputation failures. The last delivered list stays valid.
	OnError func(error)
}
