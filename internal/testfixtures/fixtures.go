package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/scheduler"
)

var (
	roomCounter    uint64
	sessionCounter uint64
)

// Wednesday 2024-03-06 09:30 UTC, inside the default 08:00-10:00 fixture window.
var referenceTime = time.Date(2024, time.March, 6, 9, 30, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Room fixtures -----------------------------

// RoomFixture represents a deterministic room record.
type RoomFixture struct {
	ID   string
	Name string
}

// RoomOption configures the generated room fixture.
type RoomOption func(*RoomFixture)

// NewRoomFixture returns a deterministic room fixture with optional overrides.
func NewRoomFixture(opts ...RoomOption) RoomFixture {
	idx := atomic.AddUint64(&roomCounter, 1)
	fixture := RoomFixture{
		ID:   fmt.Sprintf("room-%03d", idx),
		Name: fmt.Sprintf("Room %03d", idx),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomID overrides the generated room ID.
func WithRoomID(id string) RoomOption {
	return func(f *RoomFixture) {
		f.ID = id
	}
}

// WithRoomName overrides the generated room name.
func WithRoomName(name string) RoomOption {
	return func(f *RoomFixture) {
		f.Name = name
	}
}

// Domain returns the fixture as a scheduler.Room.
func (f RoomFixture) Domain() scheduler.Room {
	return scheduler.Room{ID: f.ID, Name: f.Name}
}

// ----------------------------- Session fixtures -----------------------------

// SessionFixture represents a deterministic weekly session. Times are "HH:MM" and the
// optional validity bounds are "YYYY-MM-DD".
type SessionFixture struct {
	ID        string
	Label     string
	RoomID    string
	Weekdays  []time.Weekday
	Start     string
	End       string
	ValidFrom string
	ValidTo   string
	CreatedAt time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a Monday/Wednesday 08:00-10:00 session with optional overrides.
// Successive fixtures get strictly increasing creation times.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		ID:        fmt.Sprintf("session-%03d", idx),
		Label:     fmt.Sprintf("Course %03d", idx),
		RoomID:    "room-001",
		Weekdays:  []time.Weekday{time.Monday, time.Wednesday},
		Start:     "08:00",
		End:       "10:00",
		CreatedAt: referenceTime.Add(-24 * time.Hour).Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithSessionLabel overrides the generated label.
func WithSessionLabel(label string) SessionOption {
	return func(f *SessionFixture) {
		f.Label = label
	}
}

// WithSessionRoom places the session in roomID.
func WithSessionRoom(roomID string) SessionOption {
	return func(f *SessionFixture) {
		f.RoomID = roomID
	}
}

// WithSessionWeekdays replaces the weekday set.
func WithSessionWeekdays(days ...time.Weekday) SessionOption {
	return func(f *SessionFixture) {
		f.Weekdays = append([]time.Weekday(nil), days...)
	}
}

// WithSessionWindow sets the daily time window.
func WithSessionWindow(start, end string) SessionOption {
	return func(f *SessionFixture) {
		f.Start = start
		f.End = end
	}
}

// WithSessionValidity bounds the session to an inclusive date range.
func WithSessionValidity(from, to string) SessionOption {
	return func(f *SessionFixture) {
		f.ValidFrom = from
		f.ValidTo = to
	}
}

// WithSessionCreatedAt sets the creation timestamp used for tie-breaking.
func WithSessionCreatedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.CreatedAt = t
	}
}

// Domain returns the fixture as a scheduler.Session. It panics on malformed fixture values.
func (f SessionFixture) Domain() scheduler.Session {
	start, err := recurrence.ParseTimeOfDay(f.Start)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: session %s start: %v", f.ID, err))
	}
	end, err := recurrence.ParseTimeOfDay(f.End)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: session %s end: %v", f.ID, err))
	}

	session := scheduler.Session{
		ID:     f.ID,
		Label:  f.Label,
		RoomID: f.RoomID,
		Recurrence: recurrence.WeeklyRecurrence{
			Weekdays: recurrence.MustWeekdaySet(f.Weekdays...),
			Start:    start,
			End:      end,
		},
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.CreatedAt,
	}
	if f.ValidFrom != "" || f.ValidTo != "" {
		from, err := recurrence.ParseDate(f.ValidFrom)
		if err != nil {
			panic(fmt.Sprintf("testfixtures: session %s valid_from: %v", f.ID, err))
		}
		to, err := recurrence.ParseDate(f.ValidTo)
		if err != nil {
			panic(fmt.Sprintf("testfixtures: session %s valid_to: %v", f.ID, err))
		}
		session.Validity = &recurrence.ValidityWindow{From: from, To: to}
	}
	return session
}

// Params returns the fixture as input for TimetableService.ValidateAndSave. The ID is
// omitted so the params create a new session.
func (f SessionFixture) Params() application.SaveSessionParams {
	weekdays := make([]string, len(f.Weekdays))
	for i, day := range f.Weekdays {
		weekdays[i] = day.String()
	}
	params := application.SaveSessionParams{
		Label:     f.Label,
		RoomID:    f.RoomID,
		Weekdays:  weekdays,
		StartTime: f.Start,
		EndTime:   f.End,
	}
	if f.ValidFrom != "" {
		from := f.ValidFrom
		params.ValidFrom = &from
	}
	if f.ValidTo != "" {
		to := f.ValidTo
		params.ValidTo = &to
	}
	return params
}
