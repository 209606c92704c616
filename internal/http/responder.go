package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/logging"
)

var (
	errBadRequestBody  = errors.New("request body is not valid JSON")
	errInvalidSession  = errors.New("invalid session id")
	errInvalidInstant  = errors.New("at must be an RFC 3339 timestamp")
	errStreamingAbsent = errors.New("streaming is not supported by this connection")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError writes the response for an error returned by the timetable service.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status, body := serviceErrorResponse(err)
	if status == http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
	}
	r.writeJSON(ctx, w, status, body)
}

func serviceErrorResponse(err error) (int, errorResponse) {
	var (
		conflict *application.ConflictError
		invalid  *application.ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict, errorResponse{
			ErrorCode: "ROOM_CONFLICT",
			Message:   "the room is already booked for an overlapping time",
			Conflict:  toConflictDTO(conflict),
		}
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, errorResponse{
			Message: statusMessage(http.StatusUnprocessableEntity),
			Errors:  invalid.FieldErrors,
		}
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound, errorResponse{Message: statusMessage(http.StatusNotFound)}
	default:
		return http.StatusInternalServerError, errorResponse{Message: statusMessage(http.StatusInternalServerError)}
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	return logging.Scoped(ctx, r.logger)
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "the request is malformed"
	case http.StatusNotFound:
		return "the requested resource was not found"
	case http.StatusConflict:
		return "the request conflicts with the current state"
	case http.StatusUnprocessableEntity:
		return "the submitted fields are invalid"
	case http.StatusServiceUnavailable:
		return "the service is unavailable"
	default:
		return "an internal error occurred"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflict  *conflictDTO      `json:"conflict,omitempty"`
}

type conflictDTO struct {
	SessionID string   `json:"session_id"`
	Label     string   `json:"label"`
	RoomID    string   `json:"room_id"`
	Weekdays  []string `json:"weekdays"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
}

func toConflictDTO(err *application.ConflictError) *conflictDTO {
	return &conflictDTO{
		SessionID: err.SessionID,
		Label:     err.Label,
		RoomID:    err.RoomID,
		Weekdays:  weekdayNames(err.Weekdays),
		StartTime: err.Start.String(),
		EndTime:   err.End.String(),
	}
}
