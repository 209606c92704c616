package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/scheduler"
)

// DefaultKeepAlive is the interval between SSE comment frames on an idle stream.
const DefaultKeepAlive = 25 * time.Second

type displayService interface {
	ActiveSessionsAt(ctx context.Context, at time.Time) (application.ActiveSnapshot, error)
	SubscribeActiveSessions(ctx context.Context, onUpdate func(application.ActiveSnapshot), opts application.SubscribeOptions) (unsubscribe func())
}

type DisplayHandler struct {
	service   displayService
	responder responder
	logger    *slog.Logger
	keepAlive time.Duration
}

// DisplayOption tunes a DisplayHandler.
type DisplayOption func(*DisplayHandler)

// WithKeepAlive sets the idle interval between SSE comment frames.
func WithKeepAlive(d time.Duration) DisplayOption {
	return func(h *DisplayHandler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

func NewDisplayHandler(service displayService, logger *slog.Logger, opts ...DisplayOption) *DisplayHandler {
	base := defaultLogger(logger)
	h := &DisplayHandler{
		service:   service,
		responder: newResponder(base),
		logger:    base,
		keepAlive: DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *DisplayHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "DisplayHandler", operation, attrs...)
}

// Active answers the list of sessions in progress at ?at=, or now.
func (h *DisplayHandler) Active(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var at time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("at")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.log(r.Context(), "Active", "at", raw, "error_kind", "bad_request").InfoContext(r.Context(), "invalid instant")
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidInstant)
			return
		}
		at = parsed
	}

	logger := h.log(r.Context(), "Active")
	snapshot, err := h.service.ActiveSessionsAt(r.Context(), at)
	if err != nil {
		logger.ErrorContext(r.Context(), "active session lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toDisplayDTO(snapshot.At, snapshot.Sessions))
}

// Stream pushes an "active_sessions" event for every refreshed list until the client leaves.
func (h *DisplayHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	logger := h.log(ctx, "Stream")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.responder.writeError(ctx, w, http.StatusInternalServerError, errStreamingAbsent)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Only the newest list matters to a display, so a slow client skips stale ones.
	updates := make(chan application.ActiveSnapshot, 1)
	failures := make(chan error, 1)
	unsubscribe := h.service.SubscribeActiveSessions(ctx, func(snapshot application.ActiveSnapshot) {
		for {
			select {
			case updates <- snapshot:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}, application.SubscribeOptions{OnError: func(err error) {
		select {
		case failures <- err:
		default:
		}
	}})
	defer unsubscribe()

	logger.InfoContext(ctx, "display stream opened")
	defer logger.InfoContext(ctx, "display stream closed")

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	var seq uint64
	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case snapshot := <-updates:
			seq++
			err = writeEvent(w, "active_sessions", seq, toDisplayDTO(snapshot.At, snapshot.Sessions))
		case failure := <-failures:
			logger.WarnContext(ctx, "display refresh failed", "error", failure)
			err = writeEvent(w, "refresh_error", 0, errorResponse{Message: "refresh failed; the last list is still current"})
		case <-keepAlive.C:
			_, err = fmt.Fprint(w, ": keep-alive\n\n")
		}
		if err != nil {
			logger.InfoContext(ctx, "display stream write failed", "error", err)
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, id uint64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

type displayDTO struct {
	At           string             `json:"at"`
	Count        int                `json:"count"`
	Sessions     []activeSessionDTO `json:"sessions"`
	DoubleBooked []string           `json:"double_booked_rooms,omitempty"`
}

type activeSessionDTO struct {
	RoomID    string `json:"room_id"`
	RoomName  string `json:"room_name"`
	SessionID string `json:"session_id"`
	Label     string `json:"label"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func toDisplayDTO(at time.Time, active []scheduler.ActiveSession) displayDTO {
	dto := displayDTO{
		At:           at.Format(time.RFC3339),
		Count:        len(active),
		Sessions:     make([]activeSessionDTO, 0, len(active)),
		DoubleBooked: scheduler.DoubleBookedRooms(active),
	}
	for _, session := range active {
		dto.Sessions = append(dto.Sessions, activeSessionDTO{
			RoomID:    session.RoomID,
			RoomName:  session.RoomName,
			SessionID: session.SessionID,
			Label:     session.Label,
			StartTime: session.Start.String(),
			EndTime:   session.End.String(),
		})
	}
	return dto
}
