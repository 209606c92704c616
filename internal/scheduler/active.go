package scheduler

import (
	"sort"
	"strings"
	"time"

	"github.com/example/room-timetable/internal/recurrence"
)

// ActiveSession is a session in progress at the evaluated instant.
type ActiveSession struct {
	RoomID    string
	RoomName  string
	SessionID string
	Label     string
	Start     recurrence.TimeOfDay
	End       recurrence.TimeOfDay
}

// ResolveActive lists the sessions in progress at the given instant.
//
// The date and wall-clock time are read from at in its own location; callers choose the
// display time zone by converting at beforehand. A session is active when it occurs on that
// date and the time falls inside its [start, end) window.
//
// Results are ordered by room name (case-insensitive, then exact), then session id. Rooms
// missing from rooms use their id as name. Several sessions in one room are all reported.
func ResolveActive(at time.Time, sessions []Session, rooms []Room) []ActiveSession {
	names := make(map[string]string, len(rooms))
	for _, room := range rooms {
		names[room.ID] = room.Name
	}

	date := recurrence.DateOf(at)
	clock := recurrence.TimeOfDayOf(at)

	active := make([]ActiveSession, 0)
	for _, session := range sessions {
		if !session.OccursOnDate(date) || !session.Recurrence.ContainsTime(clock) {
			continue
		}
		name, ok := names[session.RoomID]
		if !ok || name == "" {
			name = session.RoomID
		}
		active = append(active, ActiveSession{
			RoomID:    session.RoomID,
			RoomName:  name,
			SessionID: session.ID,
			Label:     session.Label,
			Start:     session.Recurrence.Start,
			End:       session.Recurrence.End,
		})
	}

	sort.SliceStable(active, func(i, j int) bool {
		return lessActive(active[i], active[j])
	})
	return active
}

// DoubleBookedRooms returns the ids of rooms with more than one active session, in the
// order they first appear in active.
func DoubleBookedRooms(active []ActiveSession) []string {
	counts := make(map[string]int, len(active))
	order := make([]string, 0)
	for _, a := range active {
		if counts[a.RoomID] == 0 {
			order = append(order, a.RoomID)
		}
		counts[a.RoomID]++
	}
	rooms := make([]string, 0)
	for _, id := range order {
		if counts[id] > 1 {
			rooms = append(rooms, id)
		}
	}
	return rooms
}

func lessActive(a, b ActiveSession) bool {
	la, lb := strings.ToLower(a.RoomName), strings.ToLower(b.RoomName)
	if la != lb {
		return la < lb
	}
	if a.RoomName != b.RoomName {
		return a.RoomName < b.RoomName
	}
	if a.RoomID != b.RoomID {
		return a.RoomID < b.RoomID
	}
	return a.SessionID < b.SessionID
}
