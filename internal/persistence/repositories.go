package persistence

import (
	"context"

	"github.com/example/room-timetable/internal/scheduler"
)

// SessionRepository stores recurring sessions.
type SessionRepository interface {
	// ListSessions returns the sessions of roomID in creation order. An empty roomID lists every room.
	ListSessions(ctx context.Context, roomID string) ([]scheduler.Session, error)
	GetSession(ctx context.Context, id string) (scheduler.Session, error)
	// CreateSession and UpdateSession run guard, when non-nil, on the sessions already stored in
	// the written session's room while holding that room's write lock. A guard error aborts the write.
	CreateSession(ctx context.Context, session scheduler.Session, guard WriteGuard) error
	UpdateSession(ctx context.Context, session scheduler.Session, guard WriteGuard) error
	DeleteSession(ctx context.Context, id string) error
}

// WriteGuard inspects a room's stored sessions, in creation order, before a session write.
// It runs while the store holds the room's write lock and must not call back into the store.
type WriteGuard func(roomSessions []scheduler.Session) error

// RoomRepository reads the room registry. SaveRoom inserts or renames a room and is used for seeding.
type RoomRepository interface {
	ListRooms(ctx context.Context) ([]scheduler.Room, error)
	GetRoom(ctx context.Context, id string) (scheduler.Room, error)
	SaveRoom(ctx context.Context, room scheduler.Room) error
}

// ChangeSource publishes committed writes. The returned cancel func is idempotent.
// Callbacks run on the writer's goroutine and must not block.
type ChangeSource interface {
	SubscribeChanges(fn func(Change)) (cancel func())
}

// Store is the complete data access port.
type Store interface {
	SessionRepository
	RoomRepository
	ChangeSource
	Close() error
}
