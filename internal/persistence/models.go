package persistence

// ChangeKind classifies a change notification.
type ChangeKind string

const (
	// ChangeSessionCreated is emitted after a session is stored.
	ChangeSessionCreated ChangeKind = "session_created"
	// ChangeSessionUpdated is emitted after a session is replaced.
	ChangeSessionUpdated ChangeKind = "session_updated"
	// ChangeSessionDeleted is emitted after a session is removed.
	ChangeSessionDeleted ChangeKind = "session_deleted"
	// ChangeRoomSaved is emitted after a room is inserted or renamed.
	ChangeRoomSaved ChangeKind = "room_saved"
	// ChangeResync is emitted when notifications may have been lost and readers should reload.
	ChangeResync ChangeKind = "resync"
)

// Change describes a committed write. RoomID is the session's room after the write,
// or the room itself for room changes.
type Change struct {
	Kind      ChangeKind
	SessionID string
	RoomID    string
}
