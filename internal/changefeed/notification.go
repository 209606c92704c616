package changefeed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/room-timetable/internal/persistence"
)

// DefaultChannel is the Postgres NOTIFY channel used for session changes.
const DefaultChannel = "timetable_changes"

// ErrInvalidPayload indicates a notification payload could not be decoded.
var ErrInvalidPayload = errors.New("changefeed: invalid notification payload")

type notificationPayload struct {
	Origin    string `json:"origin"`
	Kind      string `json:"kind"`
	SessionID string `json:"session_id,omitempty"`
	RoomID    string `json:"room_id,omitempty"`
}

// EncodeNotification renders change as a NOTIFY payload tagged with the writer's origin.
func EncodeNotification(origin string, change persistence.Change) (string, error) {
	raw, err := json.Marshal(notificationPayload{
		Origin:    origin,
		Kind:      string(change.Kind),
		SessionID: change.SessionID,
		RoomID:    change.RoomID,
	})
	if err != nil {
		return "", fmt.Errorf("changefeed: encode notification: %w", err)
	}
	return string(raw), nil
}

// DecodeNotification parses a payload produced by EncodeNotification.
func DecodeNotification(payload string) (origin string, change persistence.Change, err error) {
	var decoded notificationPayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return "", persistence.Change{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if decoded.Kind == "" {
		return "", persistence.Change{}, fmt.Errorf("%w: missing kind", ErrInvalidPayload)
	}
	return decoded.Origin, persistence.Change{
		Kind:      persistence.ChangeKind(decoded.Kind),
		SessionID: decoded.SessionID,
		RoomID:    decoded.RoomID,
	}, nil
}
