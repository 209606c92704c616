package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/room-timetable/internal/persistence"
	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/refresh"
	"github.com/example/room-timetable/internal/scheduler"
)

// Store is the data access port required by the service.
type Store interface {
	persistence.SessionRepository
	persistence.RoomRepository
	persistence.ChangeSource
}

// TimetableServiceConfig carries optional collaborators. Zero values select defaults.
type TimetableServiceConfig struct {
	IDGenerator func() string
	Now         func() time.Time
	// Location is the display time zone used for "now" and agenda expansion.
	Location        *time.Location
	RefreshSchedule string
	RefreshTimeout  time.Duration
	AuditTTL        time.Duration
	Logger          *slog.Logger
}

// TimetableService validates session writes against room bookings and serves the
// active-session display.
type TimetableService struct {
	store       Store
	idGenerator func() string
	now         func() time.Time
	location    *time.Location
	engine      *recurrence.Engine
	refresh     *refresh.Controller
	locks       *roomLocks
	audit       *auditCache
	logger      *slog.Logger

	createdMu   sync.Mutex
	lastCreated time.Time

	cancelChanges func()
}

// NewTimetableService constructs the service. Close releases its background resources.
func NewTimetableService(store Store, cfg TimetableServiceConfig) (*TimetableService, error) {
	if store == nil {
		return nil, errors.New("application: store is required")
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	logger := defaultLogger(cfg.Logger)

	controller, err := refresh.NewController(store, refresh.Config{
		Schedule: cfg.RefreshSchedule,
		Timeout:  cfg.RefreshTimeout,
		Location: cfg.Location,
		Now:      cfg.Now,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	s := &TimetableService{
		store:       store,
		idGenerator: cfg.IDGenerator,
		now:         cfg.Now,
		location:    cfg.Location,
		engine:      recurrence.NewEngine(cfg.Location),
		refresh:     controller,
		locks:       newRoomLocks(),
		audit:       newAuditCache(cfg.AuditTTL, cfg.Now),
		logger:      logger,
	}
	s.cancelChanges = store.SubscribeChanges(func(persistence.Change) {
		s.audit.Invalidate()
	})
	return s, nil
}

// Close stops every display subscription and detaches from the store.
func (s *TimetableService) Close() {
	if s == nil {
		return
	}
	s.cancelChanges()
	s.refresh.Close()
}

// Location returns the display time zone.
func (s *TimetableService) Location() *time.Location {
	return s.location
}

func (s *TimetableService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TimetableService", operation, attrs...)
}

// ValidateAndSave creates a session when params.SessionID is empty and otherwise replaces the
// stored session. The write is rejected with a *ConflictError when it would double-book its room.
func (s *TimetableService) ValidateAndSave(ctx context.Context, params SaveSessionParams) (session scheduler.Session, err error) {
	logger := s.loggerWith(ctx, "ValidateAndSave",
		"session_id", params.SessionID,
		"room_id", params.RoomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to save session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("session_id", session.ID).InfoContext(ctx, "session saved")
	}()

	candidate, vErr := buildCandidate(params)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if _, rErr := s.store.GetRoom(ctx, candidate.RoomID); rErr != nil {
		if errors.Is(rErr, persistence.ErrNotFound) {
			vErr.add("room_id", "room does not exist")
			err = vErr
			return
		}
		err = rErr
		return
	}

	if candidate.ID == "" {
		session, err = s.create(ctx, candidate)
		return
	}
	session, err = s.update(ctx, candidate)
	return
}

// CreateSession stores a new session.
func (s *TimetableService) CreateSession(ctx context.Context, params SaveSessionParams) (scheduler.Session, error) {
	params.SessionID = ""
	return s.ValidateAndSave(ctx, params)
}

// UpdateSession replaces the session identified by id.
func (s *TimetableService) UpdateSession(ctx context.Context, id string, params SaveSessionParams) (scheduler.Session, error) {
	if strings.TrimSpace(id) == "" {
		return scheduler.Session{}, ErrNotFound
	}
	params.SessionID = id
	return s.ValidateAndSave(ctx, params)
}

func (s *TimetableService) create(ctx context.Context, candidate scheduler.Session) (scheduler.Session, error) {
	unlock := s.locks.lock(candidate.RoomID)
	defer unlock()

	now := s.now()
	candidate.ID = s.idGenerator()
	candidate.CreatedAt = s.nextCreatedAt(now)
	candidate.UpdatedAt = now

	if err := s.store.CreateSession(ctx, candidate, conflictGuard(candidate)); err != nil {
		return scheduler.Session{}, mapSessionRepoError(err)
	}
	return candidate, nil
}

func (s *TimetableService) update(ctx context.Context, candidate scheduler.Session) (scheduler.Session, error) {
	current, unlock, err := s.lockSession(ctx, candidate.ID, candidate.RoomID)
	if err != nil {
		return scheduler.Session{}, err
	}
	defer unlock()

	candidate.CreatedAt = current.CreatedAt
	candidate.UpdatedAt = s.now()

	if err := s.store.UpdateSession(ctx, candidate, conflictGuard(candidate)); err != nil {
		return scheduler.Session{}, mapSessionRepoError(err)
	}
	return candidate, nil
}

// conflictGuard rejects candidate when it collides with a session the store holds for its room.
// The store runs it under the room's write lock, so writers in other processes are covered too.
func conflictGuard(candidate scheduler.Session) persistence.WriteGuard {
	return func(existing []scheduler.Session) error {
		if result := scheduler.DetectConflict(candidate, existing); result.HasConflict() {
			return newConflictError(*result.With)
		}
		return nil
	}
}

// lockSession locks the stored session's room together with targetRoom. The session is
// re-read under the lock; if it moved rooms meanwhile the lock is retaken.
func (s *TimetableService) lockSession(ctx context.Context, id, targetRoom string) (scheduler.Session, func(), error) {
	const attempts = 3
	for i := 0; i < attempts; i++ {
		current, err := s.store.GetSession(ctx, id)
		if err != nil {
			return scheduler.Session{}, nil, mapSessionRepoError(err)
		}

		unlock := s.locks.lock(current.RoomID, targetRoom)
		locked, err := s.store.GetSession(ctx, id)
		if err != nil {
			unlock()
			return scheduler.Session{}, nil, mapSessionRepoError(err)
		}
		if locked.RoomID == current.RoomID {
			return locked, unlock, nil
		}
		unlock()
	}
	return scheduler.Session{}, nil, fmt.Errorf("session %s kept moving between rooms", id)
}

// nextCreatedAt keeps creation timestamps strictly increasing within this process.
func (s *TimetableService) nextCreatedAt(now time.Time) time.Time {
	s.createdMu.Lock()
	defer s.createdMu.Unlock()
	if !now.After(s.lastCreated) {
		now = s.lastCreated.Add(time.Microsecond)
	}
	s.lastCreated = now
	return now
}

// DeleteSession removes a session.
func (s *TimetableService) DeleteSession(ctx context.Context, id string) (err error) {
	logger := s.loggerWith(ctx, "DeleteSession", "session_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session deleted")
	}()

	_, unlock, err := s.lockSession(ctx, id, "")
	if err != nil {
		return err
	}
	defer unlock()

	if err = s.store.DeleteSession(ctx, id); err != nil {
		err = mapSessionRepoError(err)
	}
	return err
}

// GetSession returns a stored session.
func (s *TimetableService) GetSession(ctx context.Context, id string) (scheduler.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return scheduler.Session{}, mapSessionRepoError(err)
	}
	return session, nil
}

// ListSessions returns the sessions of roomID, or every session when roomID is empty,
// ordered by start time, then label, then id.
func (s *TimetableService) ListSessions(ctx context.Context, roomID string) ([]scheduler.Session, error) {
	sessions, err := s.store.ListSessions(ctx, strings.TrimSpace(roomID))
	if err != nil {
		return nil, mapSessionRepoError(err)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.Recurrence.Start != b.Recurrence.Start {
			return a.Recurrence.Start < b.Recurrence.Start
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.ID < b.ID
	})
	return sessions, nil
}

// ListRooms returns all rooms ordered by name, ignoring case.
func (s *TimetableService) ListRooms(ctx context.Context) ([]scheduler.Room, error) {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		li, lj := strings.ToLower(rooms[i].Name), strings.ToLower(rooms[j].Name)
		if li != lj {
			return li < lj
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

// ActiveSessionsAt resolves the sessions in progress at the given instant, evaluated in the
// service's display time zone. A zero instant means now.
func (s *TimetableService) ActiveSessionsAt(ctx context.Context, at time.Time) (ActiveSnapshot, error) {
	if at.IsZero() {
		at = s.now()
	}
	at = at.In(s.location)

	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return ActiveSnapshot{}, err
	}
	sessions, err := s.store.ListSessions(ctx, "")
	if err != nil {
		return ActiveSnapshot{}, mapSessionRepoError(err)
	}

	active := scheduler.ResolveActive(at, sessions, rooms)
	doubleBooked := scheduler.DoubleBookedRooms(active)
	if len(doubleBooked) > 0 {
		s.loggerWith(ctx, "ActiveSessionsAt").WarnContext(ctx, "room double-booked", "room_ids", doubleBooked)
	}
	return ActiveSnapshot{At: at, Sessions: active, DoubleBooked: doubleBooked}, nil
}

// SubscribeActiveSessions delivers a snapshot now and after every refresh trigger until
// unsubscribe is called or ctx ends. Each snapshot is stamped with the instant it was
// evaluated at. onUpdate must not call unsubscribe synchronously.
func (s *TimetableService) SubscribeActiveSessions(ctx context.Context, onUpdate func(ActiveSnapshot), opts SubscribeOptions) (unsubscribe func()) {
	sub := s.refresh.Subscribe(func(at time.Time, active []scheduler.ActiveSession) {
		onUpdate(ActiveSnapshot{At: at, Sessions: active, DoubleBooked: scheduler.DoubleBookedRooms(active)})
	}, refresh.SubscribeOptions{OnError: opts.OnError})
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				sub.Unsubscribe()
			case <-sub.Done():
			}
		}()
	}
	return sub.Unsubscribe
}

// RoomAgenda lists the concrete occurrences of a room's sessions between from and to inclusive.
func (s *TimetableService) RoomAgenda(ctx context.Context, roomID string, from, to recurrence.Date) ([]AgendaEntry, error) {
	if err := recurrence.ValidateRange(from, to); err != nil {
		vErr := &ValidationError{}
		vErr.add("range", fmt.Sprintf("from must not be after to and the range must be shorter than %d days", recurrence.MaxExpansionDays))
		return nil, vErr
	}
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, mapSessionRepoError(err)
	}
	sessions, err := s.store.ListSessions(ctx, roomID)
	if err != nil {
		return nil, mapSessionRepoError(err)
	}

	entries := make([]AgendaEntry, 0)
	for _, session := range sessions {
		occurrences, err := s.engine.Occurrences(session.Schedule(), from, to)
		if err != nil {
			return nil, fmt.Errorf("expand session %s: %w", session.ID, err)
		}
		for _, occ := range occurrences {
			entries = append(entries, AgendaEntry{
				SessionID: session.ID,
				Label:     session.Label,
				Date:      occ.Date,
				Start:     occ.Start,
				End:       occ.End,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Start.Equal(entries[j].Start) {
			return entries[i].Start.Before(entries[j].Start)
		}
		if entries[i].Label != entries[j].Label {
			return entries[i].Label < entries[j].Label
		}
		return entries[i].SessionID < entries[j].SessionID
	})
	return entries, nil
}

// ConflictAudit lists stored sessions that double-book a room, such as rows written
// outside this service.
func (s *TimetableService) ConflictAudit(ctx context.Context) ([]scheduler.ConflictPair, error) {
	if pairs, ok := s.audit.Get(); ok {
		return pairs, nil
	}
	generation := s.audit.Generation()
	sessions, err := s.store.ListSessions(ctx, "")
	if err != nil {
		return nil, mapSessionRepoError(err)
	}
	pairs := scheduler.DetectAllConflicts(sessions)
	s.audit.Store(pairs, generation)
	if len(pairs) > 0 {
		s.loggerWith(ctx, "ConflictAudit").WarnContext(ctx, "stored sessions double-book rooms", "pairs", len(pairs))
	}
	return pairs, nil
}

func buildCandidate(params SaveSessionParams) (scheduler.Session, *ValidationError) {
	vErr := &ValidationError{}
	candidate := scheduler.Session{
		ID:     strings.TrimSpace(params.SessionID),
		Label:  strings.TrimSpace(params.Label),
		RoomID: strings.TrimSpace(params.RoomID),
	}

	if candidate.Label == "" {
		vErr.add("label", "label is required")
	}
	if candidate.RoomID == "" {
		vErr.add("room_id", "room_id is required")
	}

	weekdays, err := recurrence.ParseWeekdays(strings.Join(params.Weekdays, ","))
	if err != nil {
		vErr.add("weekdays", recurrenceMessage(err))
	}

	start, startErr := recurrence.ParseTimeOfDay(params.StartTime)
	if startErr != nil {
		vErr.add("start_time", "start_time must be HH:MM")
	}
	end, endErr := recurrence.ParseTimeOfDay(params.EndTime)
	if endErr != nil {
		vErr.add("end_time", "end_time must be HH:MM")
	}
	if startErr == nil && endErr == nil && start >= end {
		vErr.add("end_time", "end_time must be after start_time")
	}
	candidate.Recurrence = recurrence.WeeklyRecurrence{Weekdays: weekdays, Start: start, End: end}

	vErr.merge(buildValidity(params, &candidate))
	return candidate, vErr
}

func buildValidity(params SaveSessionParams, candidate *scheduler.Session) *ValidationError {
	vErr := &ValidationError{}
	from, to := trimmedOptional(params.ValidFrom), trimmedOptional(params.ValidTo)
	switch {
	case from == "" && to == "":
		return vErr
	case from == "" || to == "":
		vErr.add("valid_from", "valid_from and valid_to must be provided together")
		return vErr
	}

	fromDate, fromErr := recurrence.ParseDate(from)
	if fromErr != nil {
		vErr.add("valid_from", "valid_from must be YYYY-MM-DD")
	}
	toDate, toErr := recurrence.ParseDate(to)
	if toErr != nil {
		vErr.add("valid_to", "valid_to must be YYYY-MM-DD")
	}
	if fromErr != nil || toErr != nil {
		return vErr
	}

	window, err := recurrence.NewValidityWindow(fromDate, toDate)
	if err != nil {
		vErr.add("valid_to", "valid_to must not be before valid_from")
		return vErr
	}
	candidate.Validity = &window
	return vErr
}

func trimmedOptional(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func recurrenceMessage(err error) string {
	switch {
	case errors.Is(err, recurrence.ErrNoWeekdays):
		return "at least one weekday is required"
	case errors.Is(err, recurrence.ErrDuplicateWeekday), errors.Is(err, recurrence.ErrUnknownWeekday):
		return strings.TrimPrefix(err.Error(), "recurrence: ")
	default:
		return "invalid weekdays"
	}
}

func mapSessionRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("session", "rejected by storage constraint")
		return vErr
	}
	return err
}
