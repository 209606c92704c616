// Package memory provides an in-process implementation of the timetable store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/room-timetable/internal/changefeed"
	"github.com/example/room-timetable/internal/persistence"
	"github.com/example/room-timetable/internal/scheduler"
)

// Storage keeps rooms and sessions in maps guarded by a single RWMutex.
type Storage struct {
	mu       sync.RWMutex
	rooms    map[string]scheduler.Room
	sessions map[string]scheduler.Session
	hub      *changefeed.Hub
}

// Open returns an empty Storage.
func Open() *Storage {
	return &Storage{
		rooms:    make(map[string]scheduler.Room),
		sessions: make(map[string]scheduler.Session),
		hub:      changefeed.NewHub(),
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// SubscribeChanges registers fn for every committed write.
func (s *Storage) SubscribeChanges(fn func(persistence.Change)) (cancel func()) {
	return s.hub.Subscribe(fn)
}

// --- RoomRepository implementation ---

// SaveRoom inserts the room or renames an existing one.
func (s *Storage) SaveRoom(ctx context.Context, room scheduler.Room) error {
	if room.ID == "" {
		return fmt.Errorf("memory: room id is required: %w", persistence.ErrConstraintViolation)
	}

	s.mu.Lock()
	s.rooms[room.ID] = room
	s.mu.Unlock()

	s.hub.Publish(persistence.Change{Kind: persistence.ChangeRoomSaved, RoomID: room.ID})
	return nil
}

// GetRoom retrieves a room by ID.
func (s *Storage) GetRoom(ctx context.Context, id string) (scheduler.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return scheduler.Room{}, persistence.ErrNotFound
	}
	return room, nil
}

// ListRooms returns all rooms ordered by name then ID.
func (s *Storage) ListRooms(ctx context.Context) ([]scheduler.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]scheduler.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Name == rooms[j].Name {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].Name < rooms[j].Name
	})

	return rooms, nil
}

// --- SessionRepository implementation ---

// CreateSession stores a new session.
func (s *Storage) CreateSession(ctx context.Context, session scheduler.Session, guard persistence.WriteGuard) error {
	if session.ID == "" {
		return fmt.Errorf("memory: session id is required: %w", persistence.ErrConstraintViolation)
	}

	s.mu.Lock()
	if _, ok := s.sessions[session.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("memory: session %s: %w", session.ID, persistence.ErrDuplicate)
	}
	if err := s.runGuard(guard, session.RoomID); err != nil {
		s.mu.Unlock()
		return err
	}
	s.sessions[session.ID] = session.Clone()
	s.mu.Unlock()

	s.hub.Publish(persistence.Change{Kind: persistence.ChangeSessionCreated, SessionID: session.ID, RoomID: session.RoomID})
	return nil
}

// UpdateSession replaces an existing session. CreatedAt is preserved.
func (s *Storage) UpdateSession(ctx context.Context, session scheduler.Session, guard persistence.WriteGuard) error {
	s.mu.Lock()
	existing, ok := s.sessions[session.ID]
	if !ok {
		s.mu.Unlock()
		return persistence.ErrNotFound
	}
	if err := s.runGuard(guard, session.RoomID); err != nil {
		s.mu.Unlock()
		return err
	}
	stored := session.Clone()
	stored.CreatedAt = existing.CreatedAt
	s.sessions[session.ID] = stored
	s.mu.Unlock()

	s.hub.Publish(persistence.Change{Kind: persistence.ChangeSessionUpdated, SessionID: session.ID, RoomID: session.RoomID})
	return nil
}

// runGuard must be called with s.mu held.
func (s *Storage) runGuard(guard persistence.WriteGuard, roomID string) error {
	if guard == nil {
		return nil
	}
	return guard(s.roomSessionsLocked(roomID))
}

// GetSession retrieves a session by ID.
func (s *Storage) GetSession(ctx context.Context, id string) (scheduler.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return scheduler.Session{}, persistence.ErrNotFound
	}
	return session.Clone(), nil
}

// ListSessions returns the sessions of roomID, or of every room when roomID is empty,
// ordered by CreatedAt then ID.
func (s *Storage) ListSessions(ctx context.Context, roomID string) ([]scheduler.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomSessionsLocked(roomID), nil
}

func (s *Storage) roomSessionsLocked(roomID string) []scheduler.Session {
	sessions := make([]scheduler.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if roomID != "" && session.RoomID != roomID {
			continue
		}
		sessions = append(sessions, session.Clone())
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedBefore(sessions[j])
	})
	return sessions
}

// DeleteSession removes a session by ID.
func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return persistence.ErrNotFound
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	s.hub.Publish(persistence.Change{Kind: persistence.ChangeSessionDeleted, SessionID: id, RoomID: session.RoomID})
	return nil
}

var _ persistence.Store = (*Storage)(nil)
