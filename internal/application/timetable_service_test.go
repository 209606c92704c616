package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/room-timetable/internal/persistence/memory"
	"github.com/example/room-timetable/internal/persistence/sqlstore"
	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/scheduler"
)

// Wednesday 2024-03-06 09:30 UTC.
var serviceNow = time.Date(2024, time.March, 6, 9, 30, 0, 0, time.UTC)

func newServiceUnderTest(t *testing.T) (*TimetableService, *memory.Storage) {
	t.Helper()

	store := memory.Open()
	ctx := context.Background()
	for _, room := range []scheduler.Room{{ID: "lab-a", Name: "Lab A"}, {ID: "hall", Name: "auditorium"}} {
		if err := store.SaveRoom(ctx, room); err != nil {
			t.Fatalf("SaveRoom failed: %v", err)
		}
	}

	var seq atomic.Int64
	svc, err := NewTimetableService(store, TimetableServiceConfig{
		IDGenerator:     func() string { return fmt.Sprintf("session-%d", seq.Add(1)) },
		Now:             func() time.Time { return serviceNow },
		Location:        time.UTC,
		RefreshSchedule: "@every 1h",
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewTimetableService failed: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, store
}

func mathParams() SaveSessionParams {
	return SaveSessionParams{
		Label:     "Math",
		RoomID:    "lab-a",
		Weekdays:  []string{"Monday", "Wednesday"},
		StartTime: "08:00",
		EndTime:   "10:00",
	}
}

func stringPtr(v string) *string { return &v }

func TestTimetableService_ValidateAndSave(t *testing.T) {
	t.Parallel()

	t.Run("creates a session with generated id", func(t *testing.T) {
		t.Parallel()
		svc, _ := newServiceUnderTest(t)

		session, err := svc.ValidateAndSave(context.Background(), mathParams())
		if err != nil {
			t.Fatalf("ValidateAndSave failed: %v", err)
		}
		if session.ID != "session-1" {
			t.Fatalf("expected generated id, got %q", session.ID)
		}
		if !session.Recurrence.Weekdays.Has(time.Monday) || !session.Recurrence.Weekdays.Has(time.Wednesday) {
			t.Fatalf("unexpected weekdays %v", session.Recurrence.Weekdays)
		}
		if !session.CreatedAt.Equal(serviceNow) {
			t.Fatalf("expected CreatedAt %v, got %v", serviceNow, session.CreatedAt)
		}
	})

	t.Run("rejects overlapping booking in the same room", func(t *testing.T) {
		t.Parallel()
		svc, _ := newServiceUnderTest(t)
		ctx := context.Background()

		math, err := svc.ValidateAndSave(ctx, mathParams())
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}

		_, err = svc.ValidateAndSave(ctx, SaveSessionParams{
			Label:     "Physics",
			RoomID:    "lab-a",
			Weekdays:  []string{"Quarta"},
			StartTime: "09:00",
			EndTime:   "11:00",
		})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		var conflict *ConflictError
		if !errors.As(err, &conflict) || conflict.SessionID != math.ID || conflict.Label != "Math" {
			t.Fatalf("expected conflict with math session, got %#v", conflict)
		}
	})

	t.Run("allows back to back sessions and other rooms", func(t *testing.T) {
		t.Parallel()
		svc, _ := newServiceUnderTest(t)
		ctx := context.Background()

		if _, err := svc.ValidateAndSave(ctx, mathParams()); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		adjacent := mathParams()
		adjacent.Label = "Chemistry"
		adjacent.StartTime, adjacent.EndTime = "10:00", "11:00"
		if _, err := svc.ValidateAndSave(ctx, adjacent); err != nil {
			t.Fatalf("adjacent session rejected: %v", err)
		}
		elsewhere := mathParams()
		elsewhere.RoomID = "hall"
		if _, err := svc.ValidateAndSave(ctx, elsewhere); err != nil {
			t.Fatalf("session in another room rejected: %v", err)
		}
	})

	t.Run("allows disjoint validity windows", func(t *testing.T) {
		t.Parallel()
		svc, _ := newServiceUnderTest(t)
		ctx := context.Background()

		first := mathParams()
		first.ValidFrom, first.ValidTo = stringPtr("2024-02-01"), stringPtr("2024-06-30")
		if _, err := svc.ValidateAndSave(ctx, first); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		second := mathParams()
		second.Label = "Math II"
		second.ValidFrom, second.ValidTo = stringPtr("2024-08-01"), stringPtr("2024-12-15")
		if _, err := svc.ValidateAndSave(ctx, second); err != nil {
			t.Fatalf("disjoint semester rejected: %v", err)
		}
	})

	t.Run("collects field errors", func(t *testing.T) {
		t.Parallel()
		svc, _ := newServiceUnderTest(t)

		_, err := svc.ValidateAndSave(context.Background(), SaveSessionParams{
			Label:     "  ",
			Weekdays:  []string{"Funday"},
			StartTime: "10:00",
			EndTime:   "09:00",
			ValidFrom: stringPtr("2024-02-01"),
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"label", "room_id", "weekdays", "end_time", "valid_from"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s error, got %#v", field, vErr.FieldErrors)
			}
		}
	})

	t.Run("rejects unknown room", func(t *testing.T) {
		t.Parallel()
		svc, _ := newServiceUnderTest(t)

		params := mathParams()
		params.RoomID = "missing"
		_, err := svc.ValidateAndSave(context.Background(), params)
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["room_id"] != "room does not exist" {
			t.Fatalf("expected room_id validation error, got %v", err)
		}
	})

	t.Run("update of unknown session is not found", func(t *testing.T) {
		t.Parallel()
		svc, _ := newServiceUnderTest(t)

		_, err := svc.UpdateSession(context.Background(), "ghost", mathParams())
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update ignores its own stored row", func(t *testing.T) {
		t.Parallel()
		svc, _ := newServiceUnderTest(t)
		ctx := context.Background()

		math, err := svc.ValidateAndSave(ctx, mathParams())
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		params := mathParams()
		params.EndTime = "10:30"
		updated, err := svc.UpdateSession(ctx, math.ID, params)
		if err != nil {
			t.Fatalf("UpdateSession failed: %v", err)
		}
		if updated.Recurrence.End != recurrence.Clock(10, 30) {
			t.Fatalf("expected new end time, got %s", updated.Recurrence.End)
		}
		if !updated.CreatedAt.Equal(math.CreatedAt) {
			t.Fatalf("expected CreatedAt to be preserved")
		}
	})

	t.Run("moves a session between rooms", func(t *testing.T) {
		t.Parallel()
		svc, _ := newServiceUnderTest(t)
		ctx := context.Background()

		math, err := svc.ValidateAndSave(ctx, mathParams())
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		params := mathParams()
		params.RoomID = "hall"
		if _, err := svc.UpdateSession(ctx, math.ID, params); err != nil {
			t.Fatalf("move failed: %v", err)
		}
		inLab, err := svc.ListSessions(ctx, "lab-a")
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(inLab) != 0 {
			t.Fatalf("expected lab to be empty, got %+v", inLab)
		}
		// The vacated slot can be booked again.
		if _, err := svc.ValidateAndSave(ctx, mathParams()); err != nil {
			t.Fatalf("expected freed slot, got %v", err)
		}
	})
}

func TestTimetableService_ConcurrentCreatesInSameSlot(t *testing.T) {
	t.Parallel()
	svc, _ := newServiceUnderTest(t)

	const writers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			params := mathParams()
			params.Label = fmt.Sprintf("Course %d", i)
			_, err := svc.ValidateAndSave(context.Background(), params)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes.Load() != 1 || conflicts.Load() != writers-1 {
		t.Fatalf("expected exactly one success, got %d successes and %d conflicts", successes.Load(), conflicts.Load())
	}
	if svc.locks.size() != 0 {
		t.Fatalf("expected room locks to be released, got %d", svc.locks.size())
	}
}

func TestTimetableService_InstancesSharingADatabaseNeverDoubleBook(t *testing.T) {
	t.Parallel()

	dsn := "file:" + filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()

	services := make([]*TimetableService, 2)
	for i := range services {
		store, err := sqlstore.Open(ctx, sqlstore.DefaultSQLiteConfig(dsn))
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		t.Cleanup(func() { _ = store.Close() })
		if err := store.SaveRoom(ctx, scheduler.Room{ID: "lab-a", Name: "Lab A"}); err != nil {
			t.Fatalf("SaveRoom failed: %v", err)
		}

		prefix := fmt.Sprintf("node%d", i)
		var seq atomic.Int64
		svc, err := NewTimetableService(store, TimetableServiceConfig{
			IDGenerator:     func() string { return fmt.Sprintf("%s-%d", prefix, seq.Add(1)) },
			RefreshSchedule: "@every 1h",
			Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		if err != nil {
			t.Fatalf("NewTimetableService failed: %v", err)
		}
		t.Cleanup(svc.Close)
		services[i] = svc
	}

	errs := make(chan error, len(services))
	var start sync.WaitGroup
	start.Add(1)
	for i, svc := range services {
		go func(i int, svc *TimetableService) {
			start.Wait()
			params := mathParams()
			params.Label = fmt.Sprintf("Course %d", i)
			_, err := svc.ValidateAndSave(ctx, params)
			errs <- err
		}(i, svc)
	}
	start.Done()

	var succeeded, conflicts int
	for range services {
		switch err := <-errs; {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicts != 1 {
		t.Fatalf("expected one booking and one conflict, got %d and %d", succeeded, conflicts)
	}

	pairs, err := services[0].ConflictAudit(ctx)
	if err != nil {
		t.Fatalf("ConflictAudit failed: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("expected no stored double-booking, got %+v", pairs)
	}
}

func TestTimetableService_CreatedAtStrictlyIncreases(t *testing.T) {
	t.Parallel()
	svc, _ := newServiceUnderTest(t)
	ctx := context.Background()

	first, err := svc.ValidateAndSave(ctx, mathParams())
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	params := mathParams()
	params.RoomID = "hall"
	second, err := svc.ValidateAndSave(ctx, params)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if !second.CreatedAt.After(first.CreatedAt) {
		t.Fatalf("expected %v after %v", second.CreatedAt, first.CreatedAt)
	}
}

func TestTimetableService_DeleteSession(t *testing.T) {
	t.Parallel()
	svc, _ := newServiceUnderTest(t)
	ctx := context.Background()

	math, err := svc.ValidateAndSave(ctx, mathParams())
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := svc.DeleteSession(ctx, math.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if err := svc.DeleteSession(ctx, math.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := svc.GetSession(ctx, math.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTimetableService_ListingOrder(t *testing.T) {
	t.Parallel()
	svc, _ := newServiceUnderTest(t)
	ctx := context.Background()

	late := mathParams()
	late.Label, late.StartTime, late.EndTime = "Late", "14:00", "15:00"
	early := mathParams()
	early.Label, early.StartTime, early.EndTime = "Early", "07:00", "08:00"
	for _, p := range []SaveSessionParams{late, early} {
		if _, err := svc.ValidateAndSave(ctx, p); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	sessions, err := svc.ListSessions(ctx, "lab-a")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].Label != "Early" || sessions[1].Label != "Late" {
		t.Fatalf("expected sessions ordered by start, got %+v", sessions)
	}

	rooms, err := svc.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	if len(rooms) != 2 || rooms[0].ID != "hall" || rooms[1].ID != "lab-a" {
		t.Fatalf("expected case-insensitive name order, got %+v", rooms)
	}
}

func TestTimetableService_ActiveSessionsAt(t *testing.T) {
	t.Parallel()
	svc, store := newServiceUnderTest(t)
	ctx := context.Background()

	if _, err := svc.ValidateAndSave(ctx, mathParams()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	snapshot, err := svc.ActiveSessionsAt(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ActiveSessionsAt failed: %v", err)
	}
	if !snapshot.At.Equal(serviceNow) {
		t.Fatalf("expected zero instant to mean now, got %v", snapshot.At)
	}
	if len(snapshot.Sessions) != 1 || snapshot.Sessions[0].RoomName != "Lab A" {
		t.Fatalf("unexpected active list %+v", snapshot.Sessions)
	}

	// A row written around the service double-books the lab.
	rogue := scheduler.Session{
		ID:        "rogue",
		Label:     "Rogue",
		RoomID:    "lab-a",
		CreatedAt: serviceNow.Add(time.Hour),
		Recurrence: recurrence.WeeklyRecurrence{
			Weekdays: recurrence.MustWeekdaySet(time.Wednesday),
			Start:    recurrence.Clock(9, 0),
			End:      recurrence.Clock(9, 45),
		},
	}
	if err := store.CreateSession(ctx, rogue, nil); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	snapshot, err = svc.ActiveSessionsAt(ctx, serviceNow)
	if err != nil {
		t.Fatalf("ActiveSessionsAt failed: %v", err)
	}
	if len(snapshot.DoubleBooked) != 1 || snapshot.DoubleBooked[0] != "lab-a" {
		t.Fatalf("expected lab-a to be flagged, got %v", snapshot.DoubleBooked)
	}

	evening := time.Date(2024, time.March, 6, 20, 0, 0, 0, time.UTC)
	snapshot, err = svc.ActiveSessionsAt(ctx, evening)
	if err != nil {
		t.Fatalf("ActiveSessionsAt failed: %v", err)
	}
	if snapshot.Sessions == nil || len(snapshot.Sessions) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", snapshot.Sessions)
	}
}

func TestTimetableService_BookingAndDisplayScenario(t *testing.T) {
	t.Parallel()

	store := memory.Open()
	ctx := context.Background()
	for _, room := range []scheduler.Room{{ID: "R101", Name: "R101"}, {ID: "R102", Name: "R102"}} {
		if err := store.SaveRoom(ctx, room); err != nil {
			t.Fatalf("SaveRoom failed: %v", err)
		}
	}
	var seq atomic.Int64
	svc, err := NewTimetableService(store, TimetableServiceConfig{
		IDGenerator:     func() string { return fmt.Sprintf("session-%d", seq.Add(1)) },
		Now:             func() time.Time { return serviceNow },
		RefreshSchedule: "@every 1h",
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewTimetableService failed: %v", err)
	}
	t.Cleanup(svc.Close)

	math, err := svc.CreateSession(ctx, SaveSessionParams{
		Label: "Math", RoomID: "R101", Weekdays: []string{"Monday", "Wednesday"}, StartTime: "08:00", EndTime: "09:30",
	})
	if err != nil {
		t.Fatalf("create Math failed: %v", err)
	}

	physics := SaveSessionParams{Label: "Physics", RoomID: "R101", Weekdays: []string{"Wednesday"}, StartTime: "09:00", EndTime: "10:00"}
	_, err = svc.CreateSession(ctx, physics)
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.SessionID != math.ID || conflict.Label != "Math" {
		t.Fatalf("expected conflict with Math in R101, got %v", err)
	}

	physics.RoomID = "R102"
	stored, err := svc.CreateSession(ctx, physics)
	if err != nil {
		t.Fatalf("Physics in R102 rejected: %v", err)
	}

	physics.RoomID = "R101"
	physics.StartTime, physics.EndTime = "09:30", "10:30"
	if _, err := svc.UpdateSession(ctx, stored.ID, physics); err != nil {
		t.Fatalf("moving Physics to the free R101 slot failed: %v", err)
	}

	wednesday := func(hour, minute int) time.Time {
		return time.Date(2024, time.March, 6, hour, minute, 0, 0, time.UTC)
	}
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{name: "during Math", at: wednesday(8, 30), want: "Math"},
		{name: "Math end hands over to Physics", at: wednesday(9, 30), want: "Physics"},
		{name: "during Physics", at: wednesday(9, 45), want: "Physics"},
	}
	for _, tt := range tests {
		snapshot, err := svc.ActiveSessionsAt(ctx, tt.at)
		if err != nil {
			t.Fatalf("%s: ActiveSessionsAt failed: %v", tt.name, err)
		}
		if len(snapshot.Sessions) != 1 || snapshot.Sessions[0].RoomID != "R101" || snapshot.Sessions[0].Label != tt.want {
			t.Fatalf("%s: expected %s in R101, got %+v", tt.name, tt.want, snapshot.Sessions)
		}
		if len(snapshot.DoubleBooked) != 0 {
			t.Fatalf("%s: unexpected double booking %v", tt.name, snapshot.DoubleBooked)
		}
	}
}

func TestTimetableService_ConflictAudit(t *testing.T) {
	t.Parallel()
	svc, store := newServiceUnderTest(t)
	ctx := context.Background()

	math, err := svc.ValidateAndSave(ctx, mathParams())
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	pairs, err := svc.ConflictAudit(ctx)
	if err != nil {
		t.Fatalf("ConflictAudit failed: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("expected clean audit, got %+v", pairs)
	}

	rogue := math
	rogue.ID = "rogue"
	rogue.Label = "Rogue"
	rogue.CreatedAt = serviceNow.Add(time.Hour)
	if err := store.CreateSession(ctx, rogue, nil); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	pairs, err = svc.ConflictAudit(ctx)
	if err != nil {
		t.Fatalf("ConflictAudit failed: %v", err)
	}
	if len(pairs) != 1 || pairs[0].First.ID != math.ID || pairs[0].Second.ID != "rogue" {
		t.Fatalf("expected change feed to invalidate cached audit, got %+v", pairs)
	}
}

// writeDuringListStore commits one extra session right after the first full listing is read.
type writeDuringListStore struct {
	*memory.Storage
	once  sync.Once
	extra scheduler.Session
}

func (s *writeDuringListStore) ListSessions(ctx context.Context, roomID string) ([]scheduler.Session, error) {
	sessions, err := s.Storage.ListSessions(ctx, roomID)
	if err != nil || roomID != "" {
		return sessions, err
	}
	var writeErr error
	s.once.Do(func() { writeErr = s.Storage.CreateSession(ctx, s.extra, nil) })
	return sessions, writeErr
}

func TestTimetableService_ConflictAuditIgnoresResultsRacingAWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &writeDuringListStore{Storage: memory.Open()}
	if err := store.SaveRoom(ctx, scheduler.Room{ID: "lab-a", Name: "Lab A"}); err != nil {
		t.Fatalf("SaveRoom failed: %v", err)
	}
	svc, err := NewTimetableService(store, TimetableServiceConfig{
		Now:             func() time.Time { return serviceNow },
		RefreshSchedule: "@every 1h",
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewTimetableService failed: %v", err)
	}
	t.Cleanup(svc.Close)

	math, err := svc.ValidateAndSave(ctx, mathParams())
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	store.extra = math
	store.extra.ID = "rogue"
	store.extra.CreatedAt = serviceNow.Add(time.Hour)

	pairs, err := svc.ConflictAudit(ctx)
	if err != nil {
		t.Fatalf("ConflictAudit failed: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("expected the listing taken before the write, got %+v", pairs)
	}

	pairs, err = svc.ConflictAudit(ctx)
	if err != nil {
		t.Fatalf("ConflictAudit failed: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Second.ID != "rogue" {
		t.Fatalf("expected the stale audit not to be cached, got %+v", pairs)
	}
}

func TestTimetableService_RoomAgenda(t *testing.T) {
	t.Parallel()
	svc, _ := newServiceUnderTest(t)
	ctx := context.Background()

	if _, err := svc.ValidateAndSave(ctx, mathParams()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	from, _ := recurrence.NewDate(2024, time.March, 4)
	to, _ := recurrence.NewDate(2024, time.March, 10)
	entries, err := svc.RoomAgenda(ctx, "lab-a", from, to)
	if err != nil {
		t.Fatalf("RoomAgenda failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected Monday and Wednesday occurrences, got %+v", entries)
	}
	if entries[0].Date != from || entries[1].Date.Weekday() != time.Wednesday {
		t.Fatalf("unexpected agenda order %+v", entries)
	}

	if _, err := svc.RoomAgenda(ctx, "lab-a", to, from); err == nil {
		t.Fatal("expected reversed range to fail")
	} else {
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	}
	if _, err := svc.RoomAgenda(ctx, "missing", from, to); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown room, got %v", err)
	}
}

func TestTimetableService_SubscribeActiveSessions(t *testing.T) {
	t.Parallel()
	svc, _ := newServiceUnderTest(t)

	updates := make(chan ActiveSnapshot, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unsubscribe := svc.SubscribeActiveSessions(ctx, func(snapshot ActiveSnapshot) {
		updates <- snapshot
	}, SubscribeOptions{})
	defer unsubscribe()

	next := func() ActiveSnapshot {
		t.Helper()
		select {
		case snapshot := <-updates:
			return snapshot
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for update")
			return ActiveSnapshot{}
		}
	}

	initial := next()
	if len(initial.Sessions) != 0 {
		t.Fatalf("expected empty initial list, got %+v", initial.Sessions)
	}
	if !initial.At.Equal(serviceNow) {
		t.Fatalf("expected snapshot stamped with the evaluation instant, got %v", initial.At)
	}
	if _, err := svc.ValidateAndSave(context.Background(), mathParams()); err != nil {
		t.Fatalf("ValidateAndSave failed: %v", err)
	}

	// Room saves from setup may still be queued; wait for the list containing the write.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot := <-updates:
			if len(snapshot.Sessions) == 1 && snapshot.Sessions[0].Label == "Math" {
				cancel()
				if svc.refresh.Len() > 1 {
					t.Fatalf("unexpected subscriptions %d", svc.refresh.Len())
				}
				return
			}
		case <-deadline:
			t.Fatal("expected write to trigger a refresh")
		}
	}
}
