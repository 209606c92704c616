package scheduler

import (
	"sort"

	"github.com/example/room-timetable/internal/recurrence"
)

// ConflictResult is the outcome of checking a candidate session against a room's sessions.
// With is nil when no conflict exists.
type ConflictResult struct {
	With *Session
}

// HasConflict reports whether a colliding session was found.
func (r ConflictResult) HasConflict() bool {
	return r.With != nil
}

// ConflictPair identifies two stored sessions that double-book a room.
// First precedes Second in creation order.
type ConflictPair struct {
	RoomID string
	First  Session
	Second Session
}

// Conflicts reports whether two sessions would occupy the same room at the same time.
// The relation is symmetric. A session never conflicts with itself.
//
// Checks run cheapest first: room, weekdays, validity windows, then time windows.
func Conflicts(a, b Session) bool {
	if a.ID != "" && a.ID == b.ID {
		return false
	}
	if a.RoomID != b.RoomID {
		return false
	}
	if !a.Recurrence.Weekdays.Intersects(b.Recurrence.Weekdays) {
		return false
	}
	if !recurrence.WindowsOverlap(a.Validity, b.Validity) {
		return false
	}
	return a.Recurrence.TimeWindowOverlaps(b.Recurrence.Start, b.Recurrence.End)
}

// DetectConflict checks the candidate against existing sessions. Sessions sharing the
// candidate's id are ignored so an edit never collides with its own previous version.
// When several sessions collide, the earliest created one is reported.
func DetectConflict(candidate Session, existing []Session) ConflictResult {
	var first *Session
	for i := range existing {
		other := existing[i]
		if !Conflicts(candidate, other) {
			continue
		}
		if first == nil || other.CreatedBefore(*first) {
			clone := other.Clone()
			first = &clone
		}
	}
	return ConflictResult{With: first}
}

// DetectAllConflicts lists every pair of colliding sessions, ordered by room id and then by
// the creation order of the pair members.
func DetectAllConflicts(sessions []Session) []ConflictPair {
	ordered := make([]Session, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].RoomID != ordered[j].RoomID {
			return ordered[i].RoomID < ordered[j].RoomID
		}
		return ordered[i].CreatedBefore(ordered[j])
	})

	var pairs []ConflictPair
	for i := range ordered {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].RoomID != ordered[i].RoomID {
				break
			}
			if Conflicts(ordered[i], ordered[j]) {
				pairs = append(pairs, ConflictPair{
					RoomID: ordered[i].RoomID,
					First:  ordered[i].Clone(),
					Second: ordered[j].Clone(),
				})
			}
		}
	}
	return pairs
}
