package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/scheduler"
)

type sessionService interface {
	ValidateAndSave(ctx context.Context, params application.SaveSessionParams) (scheduler.Session, error)
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, roomID string) ([]scheduler.Session, error)
	ConflictAudit(ctx context.Context) ([]scheduler.ConflictPair, error)
}

type SessionHandler struct {
	service   sessionService
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.save(w, r, "Create", "", http.StatusCreated)
}

func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := strings.TrimSpace(mux.Vars(r)["id"])
	if sessionID == "" {
		h.log(r.Context(), "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "missing session id for update")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSession)
		return
	}
	h.save(w, r, "Update", sessionID, http.StatusOK)
}

func (h *SessionHandler) save(w http.ResponseWriter, r *http.Request, operation, sessionID string, status int) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), operation, "session_id", sessionID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode session request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), operation, "session_id", sessionID, "room_id", req.RoomID)

	if err := validateRequest(req); err != nil {
		logger.InfoContext(r.Context(), "session request rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	params := req.toParams()
	params.SessionID = sessionID
	session, err := h.service.ValidateAndSave(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "session save failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("session_id", session.ID).InfoContext(r.Context(), "session saved")
	h.responder.writeJSON(r.Context(), w, status, sessionResponse{Session: toSessionDTO(session)})
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := strings.TrimSpace(mux.Vars(r)["id"])
	if sessionID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSession)
		return
	}

	logger := h.log(r.Context(), "Delete", "session_id", sessionID)
	if err := h.service.DeleteSession(r.Context(), sessionID); err != nil {
		logger.ErrorContext(r.Context(), "session delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "session deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID := strings.TrimSpace(r.URL.Query().Get("room_id"))
	logger := h.log(r.Context(), "List", "room_id", roomID)
	sessions, err := h.service.ListSessions(r.Context(), roomID)
	if err != nil {
		logger.ErrorContext(r.Context(), "session list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(sessions)).DebugContext(r.Context(), "sessions listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSessionsResponse{Sessions: toSessionDTOs(sessions)})
}

func (h *SessionHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Conflicts")
	pairs, err := h.service.ConflictAudit(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "conflict audit failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := conflictAuditResponse{Count: len(pairs), Pairs: make([]conflictPairDTO, 0, len(pairs))}
	for _, pair := range pairs {
		resp.Pairs = append(resp.Pairs, conflictPairDTO{
			RoomID: pair.RoomID,
			First:  toSessionDTO(pair.First),
			Second: toSessionDTO(pair.Second),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

type sessionRequest struct {
	Label     string   `json:"label" validate:"required,max=200"`
	RoomID    string   `json:"room_id" validate:"required"`
	Weekdays  []string `json:"weekdays" validate:"required,min=1,dive,required"`
	StartTime string   `json:"start_time" validate:"required,clock"`
	EndTime   string   `json:"end_time" validate:"required,clock"`
	ValidFrom *string  `json:"valid_from" validate:"omitempty,isodate"`
	ValidTo   *string  `json:"valid_to" validate:"omitempty,isodate"`
}

func (r sessionRequest) toParams() application.SaveSessionParams {
	return application.SaveSessionParams{
		Label:     strings.TrimSpace(r.Label),
		RoomID:    strings.TrimSpace(r.RoomID),
		Weekdays:  r.Weekdays,
		StartTime: strings.TrimSpace(r.StartTime),
		EndTime:   strings.TrimSpace(r.EndTime),
		ValidFrom: r.ValidFrom,
		ValidTo:   r.ValidTo,
	}
}

type sessionResponse struct {
	Session sessionDTO `json:"session"`
}

type listSessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

type conflictAuditResponse struct {
	Count int               `json:"count"`
	Pairs []conflictPairDTO `json:"pairs"`
}

type conflictPairDTO struct {
	RoomID string     `json:"room_id"`
	First  sessionDTO `json:"first"`
	Second sessionDTO `json:"second"`
}

type sessionDTO struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	RoomID    string   `json:"room_id"`
	Weekdays  []string `json:"weekdays"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	ValidFrom *string  `json:"valid_from,omitempty"`
	ValidTo   *string  `json:"valid_to,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func toSessionDTO(session scheduler.Session) sessionDTO {
	dto := sessionDTO{
		ID:        session.ID,
		Label:     session.Label,
		RoomID:    session.RoomID,
		Weekdays:  weekdayNames(session.Recurrence.Weekdays),
		StartTime: session.Recurrence.Start.String(),
		EndTime:   session.Recurrence.End.String(),
		CreatedAt: session.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: session.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if session.Validity != nil {
		from, to := session.Validity.From.String(), session.Validity.To.String()
		dto.ValidFrom, dto.ValidTo = &from, &to
	}
	return dto
}

func toSessionDTOs(sessions []scheduler.Session) []sessionDTO {
	out := make([]sessionDTO, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionDTO(session))
	}
	return out
}

func weekdayNames(set recurrence.WeekdaySet) []string {
	days := set.Days()
	names := make([]string, len(days))
	for i, day := range days {
		names[i] = day.String()
	}
	return names
}
