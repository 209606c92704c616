package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/room-timetable/internal/config"
	"github.com/example/room-timetable/internal/persistence/memory"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rooms.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}
	return path
}

func TestLoadSeedRooms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantIDs []string
		wantErr string
	}{
		{
			name:    "valid rooms are trimmed",
			content: `{"rooms":[{"id":" lab-1 ","name":"Laboratório 1"},{"id":"aud","name":"Auditório"}]}`,
			wantIDs: []string{"lab-1", "aud"},
		},
		{
			name:    "empty list",
			content: `{"rooms":[]}`,
			wantIDs: []string{},
		},
		{
			name:    "missing name",
			content: `{"rooms":[{"id":"lab-1","name":" "}]}`,
			wantErr: "needs id and name",
		},
		{
			name:    "duplicate id",
			content: `{"rooms":[{"id":"lab-1","name":"A"},{"id":"lab-1","name":"B"}]}`,
			wantErr: "duplicate room id",
		},
		{
			name:    "malformed json",
			content: `{"rooms":`,
			wantErr: "decode seed file",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rooms, err := loadSeedRooms(writeSeed(t, tt.content))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadSeedRooms returned error: %v", err)
			}
			if len(rooms) != len(tt.wantIDs) {
				t.Fatalf("expected %d rooms, got %+v", len(tt.wantIDs), rooms)
			}
			for i, id := range tt.wantIDs {
				if rooms[i].ID != id {
					t.Fatalf("room %d: expected id %q, got %q", i, id, rooms[i].ID)
				}
			}
		})
	}
}

func TestLoadSeedRoomsMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := loadSeedRooms(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing seed file")
	}
}

func TestSeedRoomsUpserts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.Open()
	t.Cleanup(func() { _ = store.Close() })

	rooms, err := loadSeedRooms(writeSeed(t, `{"rooms":[{"id":"lab","name":"Lab"}]}`))
	if err != nil {
		t.Fatalf("loadSeedRooms returned error: %v", err)
	}
	if err := seedRooms(ctx, store, rooms); err != nil {
		t.Fatalf("seedRooms returned error: %v", err)
	}
	rooms[0].Name = "Lab renamed"
	if err := seedRooms(ctx, store, rooms); err != nil {
		t.Fatalf("second seedRooms returned error: %v", err)
	}

	stored, err := store.GetRoom(ctx, "lab")
	if err != nil {
		t.Fatalf("GetRoom returned error: %v", err)
	}
	if stored.Name != "Lab renamed" {
		t.Fatalf("expected upserted name, got %q", stored.Name)
	}
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("memory has no health check", func(t *testing.T) {
		t.Parallel()

		store, health, err := openStore(context.Background(), config.Config{DBDriver: config.DriverMemory}, logger)
		if err != nil {
			t.Fatalf("openStore returned error: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		if health != nil {
			t.Fatal("expected no health check for the memory store")
		}
	})

	t.Run("sqlite opens a file and pings", func(t *testing.T) {
		t.Parallel()

		dsn := "file:" + filepath.Join(t.TempDir(), "timetable.db")
		store, health, err := openStore(context.Background(), config.Config{DBDriver: config.DriverSQLite, DBDSN: dsn}, logger)
		if err != nil {
			t.Fatalf("openStore returned error: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		if health == nil {
			t.Fatal("expected a health check")
		}
		if err := health(context.Background()); err != nil {
			t.Fatalf("health check failed: %v", err)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Parallel()

		if _, _, err := openStore(context.Background(), config.Config{DBDriver: "oracle"}, logger); err == nil {
			t.Fatal("expected error for unknown driver")
		}
	})
}
