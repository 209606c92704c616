// Package sqlstore implements the timetable store on SQLite (modernc.org/sqlite) or
// Postgres (lib/pq). Queries are written once with "?" placeholders.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/room-timetable/internal/changefeed"
	"github.com/example/room-timetable/internal/persistence"
	"github.com/example/room-timetable/internal/scheduler"
)

// Store implements persistence.Store over database/sql.
type Store struct {
	pool          *ConnectionPool
	helper        *QueryHelper
	mapper        *ErrorMapper
	retry         *RetryHelper
	hub           *changefeed.Hub
	origin        string
	notifyChannel string
}

// Open connects, bootstraps the schema and returns a ready Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := NewConnectionPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := bootstrap(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	retryConfig := cfg.Retry
	if retryConfig == (RetryConfig{}) {
		retryConfig = DefaultRetryConfig()
	}

	store := &Store{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(retryConfig),
		hub:    changefeed.NewHub(),
		origin: uuid.NewString(),
	}
	if cfg.Driver == DriverPostgres {
		store.notifyChannel = cfg.NotifyChannel
		if store.notifyChannel == "" {
			store.notifyChannel = changefeed.DefaultChannel
		}
	}
	return store, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Hub exposes the store's change hub so a cross-process listener can feed it.
func (s *Store) Hub() *changefeed.Hub {
	return s.hub
}

// Origin identifies this process in NOTIFY payloads.
func (s *Store) Origin() string {
	return s.origin
}

// NotifyChannel returns the Postgres NOTIFY channel, or "" for SQLite.
func (s *Store) NotifyChannel() string {
	return s.notifyChannel
}

// SubscribeChanges registers fn for every committed write.
func (s *Store) SubscribeChanges(fn func(persistence.Change)) (cancel func()) {
	return s.hub.Subscribe(fn)
}

// --- RoomRepository implementation ---

// SaveRoom inserts the room or renames an existing one.
func (s *Store) SaveRoom(ctx context.Context, room scheduler.Room) error {
	if room.ID == "" {
		return persistence.ErrConstraintViolation
	}

	change := persistence.Change{Kind: persistence.ChangeRoomSaved, RoomID: room.ID}
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO rooms (id, name) VALUES (?, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name
		`
		if _, err := s.helper.ExecTx(ctx, tx, query, room.ID, room.Name); err != nil {
			return s.mapper.MapError(err)
		}
		return s.notifyTx(ctx, tx, change)
	})
	if err != nil {
		return err
	}

	s.hub.Publish(change)
	return nil
}

// GetRoom retrieves a room by ID.
func (s *Store) GetRoom(ctx context.Context, id string) (scheduler.Room, error) {
	if id == "" {
		return scheduler.Room{}, persistence.ErrNotFound
	}

	var room scheduler.Room
	err := s.retry.WithRetry(ctx, func() error {
		return s.helper.QueryRow(ctx, `SELECT id, name FROM rooms WHERE id = ?`, id).Scan(&room.ID, &room.Name)
	})
	if err != nil {
		return scheduler.Room{}, err
	}
	return room, nil
}

// ListRooms returns all rooms ordered by name then ID.
func (s *Store) ListRooms(ctx context.Context) ([]scheduler.Room, error) {
	rooms := make([]scheduler.Room, 0)
	err := s.retry.WithRetry(ctx, func() error {
		rows, err := s.helper.Query(ctx, `SELECT id, name FROM rooms ORDER BY name ASC, id ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		rooms = rooms[:0]
		for rows.Next() {
			var room scheduler.Room
			if err := rows.Scan(&room.ID, &room.Name); err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// --- SessionRepository implementation ---

// CreateSession inserts a new session after guard accepts the room's current sessions.
func (s *Store) CreateSession(ctx context.Context, session scheduler.Session, guard persistence.WriteGuard) error {
	if session.ID == "" {
		return persistence.ErrConstraintViolation
	}

	change := persistence.Change{Kind: persistence.ChangeSessionCreated, SessionID: session.ID, RoomID: session.RoomID}
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.guardTx(ctx, tx, session.RoomID, guard); err != nil {
			return err
		}
		query := `
			INSERT INTO sessions (` + sessionColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		args := append([]any{session.ID}, sessionArgs(session)...)
		args = append(args, formatTimestamp(session.CreatedAt), formatTimestamp(session.UpdatedAt))
		if _, err := s.helper.ExecTx(ctx, tx, query, args...); err != nil {
			return s.mapper.MapError(err)
		}
		return s.notifyTx(ctx, tx, change)
	})
	if err != nil {
		return err
	}

	s.hub.Publish(change)
	return nil
}

// UpdateSession replaces an existing session after guard accepts the target room's current
// sessions. CreatedAt is preserved.
func (s *Store) UpdateSession(ctx context.Context, session scheduler.Session, guard persistence.WriteGuard) error {
	change := persistence.Change{Kind: persistence.ChangeSessionUpdated, SessionID: session.ID, RoomID: session.RoomID}
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.guardTx(ctx, tx, session.RoomID, guard); err != nil {
			return err
		}
		query := `
			UPDATE sessions
			SET label = ?, room_id = ?, weekdays = ?, start_time = ?, end_time = ?,
			    valid_from = ?, valid_to = ?, updated_at = ?
			WHERE id = ?
		`
		args := append(sessionArgs(session), formatTimestamp(session.UpdatedAt), session.ID)
		result, err := s.helper.ExecTx(ctx, tx, query, args...)
		if err != nil {
			return s.mapper.MapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return s.notifyTx(ctx, tx, change)
	})
	if err != nil {
		return err
	}

	s.hub.Publish(change)
	return nil
}

// guardTx takes the room's write lock, then hands guard the room's sessions as seen inside tx.
func (s *Store) guardTx(ctx context.Context, tx *sql.Tx, roomID string, guard persistence.WriteGuard) error {
	if guard == nil {
		return nil
	}
	if err := s.lockRoomTx(ctx, tx, roomID); err != nil {
		return err
	}
	existing, err := s.listSessionsTx(ctx, tx, roomID)
	if err != nil {
		return err
	}
	return guard(existing)
}

// lockRoomTx serialises writers of one room until tx ends. Postgres takes a transaction-scoped
// advisory lock keyed by the room id. SQLite has one writer per database, so any write
// statement promotes tx to hold it; the no-op update is enough even when the room row is absent.
func (s *Store) lockRoomTx(ctx context.Context, tx *sql.Tx, roomID string) error {
	query := `UPDATE rooms SET name = name WHERE id = ?`
	if s.pool.Driver() == DriverPostgres {
		query = `SELECT pg_advisory_xact_lock(hashtext(?))`
	}
	if _, err := s.helper.ExecTx(ctx, tx, query, roomID); err != nil {
		return fmt.Errorf("sqlstore: lock room %s: %w", roomID, s.mapper.MapError(err))
	}
	return nil
}

func (s *Store) listSessionsTx(ctx context.Context, tx *sql.Tx, roomID string) ([]scheduler.Session, error) {
	rows, err := s.helper.QueryTx(ctx, tx,
		`SELECT `+sessionColumns+` FROM sessions WHERE room_id = ? ORDER BY created_at ASC, id ASC`, roomID)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	defer rows.Close()

	sessions := make([]scheduler.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session by ID.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	change := persistence.Change{Kind: persistence.ChangeSessionDeleted, SessionID: id}
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.helper.QueryRowTx(ctx, tx, `SELECT room_id FROM sessions WHERE id = ?`, id).Scan(&change.RoomID); err != nil {
			return s.mapper.MapError(err)
		}
		if _, err := s.helper.ExecTx(ctx, tx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return s.mapper.MapError(err)
		}
		return s.notifyTx(ctx, tx, change)
	})
	if err != nil {
		return err
	}

	s.hub.Publish(change)
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (scheduler.Session, error) {
	if id == "" {
		return scheduler.Session{}, persistence.ErrNotFound
	}

	var session scheduler.Session
	err := s.retry.WithRetry(ctx, func() error {
		row := s.helper.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
		var err error
		session, err = scanSession(row)
		return err
	})
	if err != nil {
		return scheduler.Session{}, err
	}
	return session, nil
}

// ListSessions returns the sessions of roomID, or of every room when roomID is empty,
// ordered by creation.
func (s *Store) ListSessions(ctx context.Context, roomID string) ([]scheduler.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if roomID != "" {
		query += ` WHERE room_id = ?`
		args = append(args, roomID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	sessions := make([]scheduler.Session, 0)
	err := s.retry.WithRetry(ctx, func() error {
		rows, err := s.helper.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		sessions = sessions[:0]
		for rows.Next() {
			session, err := scanSession(rows)
			if err != nil {
				return err
			}
			sessions = append(sessions, session)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// notifyTx emits a Postgres NOTIFY that is delivered to listeners only if tx commits.
func (s *Store) notifyTx(ctx context.Context, tx *sql.Tx, change persistence.Change) error {
	if s.notifyChannel == "" {
		return nil
	}
	payload, err := changefeed.EncodeNotification(s.origin, change)
	if err != nil {
		return err
	}
	if _, err := s.helper.ExecTx(ctx, tx, `SELECT pg_notify(?, ?)`, s.notifyChannel, payload); err != nil {
		return fmt.Errorf("sqlstore: notify: %w", s.mapper.MapError(err))
	}
	return nil
}

var _ persistence.Store = (*Store)(nil)
