package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/room-timetable/internal/persistence"
	"github.com/example/room-timetable/internal/persistence/memory"
	"github.com/example/room-timetable/internal/persistence/sqlstore"
)

// NamedStore pairs a store implementation with a label for table-driven tests.
type NamedStore struct {
	Name  string
	Store persistence.Store
}

// NewSQLiteStore opens a store on a temporary SQLite file. The store is closed when the
// test finishes.
func NewSQLiteStore(tb testing.TB) *sqlstore.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "timetable.db")
	store, err := sqlstore.Open(context.Background(), sqlstore.DefaultSQLiteConfig("file:"+path))
	if err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}
	tb.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewStores returns one fresh instance of every store implementation.
func NewStores(tb testing.TB) []NamedStore {
	tb.Helper()
	return []NamedStore{
		{Name: "memory", Store: memory.Open()},
		{Name: "sqlite", Store: NewSQLiteStore(tb)},
	}
}

// Seed writes rooms then sessions directly to store, bypassing conflict validation.
func Seed(tb testing.TB, store persistence.Store, rooms []RoomFixture, sessions ...SessionFixture) {
	tb.Helper()

	ctx := context.Background()
	for _, room := range rooms {
		if err := store.SaveRoom(ctx, room.Domain()); err != nil {
			tb.Fatalf("failed to seed room %s: %v", room.ID, err)
		}
	}
	for _, session := range sessions {
		if err := store.CreateSession(ctx, session.Domain(), nil); err != nil {
			tb.Fatalf("failed to seed session %s: %v", session.ID, err)
		}
	}
}
