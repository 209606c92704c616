package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/scheduler"
)

type roomService interface {
	ListRooms(ctx context.Context) ([]scheduler.Room, error)
	RoomAgenda(ctx context.Context, roomID string, from, to recurrence.Date) ([]application.AgendaEntry, error)
}

type RoomHandler struct {
	service   roomService
	responder responder
	logger    *slog.Logger
}

func NewRoomHandler(service roomService, logger *slog.Logger) *RoomHandler {
	base := defaultLogger(logger)
	return &RoomHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RoomHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RoomHandler", operation, attrs...)
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "List")
	rooms, err := h.service.ListRooms(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "room list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(rooms)).DebugContext(r.Context(), "rooms listed")
	out := make([]roomDTO, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomDTO{ID: room.ID, Name: room.Name})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRoomsResponse{Rooms: out})
}

func (h *RoomHandler) Agenda(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID := strings.TrimSpace(mux.Vars(r)["id"])
	query := agendaQuery{
		From: strings.TrimSpace(r.URL.Query().Get("from")),
		To:   strings.TrimSpace(r.URL.Query().Get("to")),
	}
	logger := h.log(r.Context(), "Agenda", "room_id", roomID, "from", query.From, "to", query.To)

	if err := validateRequest(query); err != nil {
		logger.InfoContext(r.Context(), "agenda request rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	from, _ := recurrence.ParseDate(query.From)
	to, _ := recurrence.ParseDate(query.To)

	entries, err := h.service.RoomAgenda(r.Context(), roomID, from, to)
	if err != nil {
		logger.ErrorContext(r.Context(), "agenda failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := agendaResponse{RoomID: roomID, From: from.String(), To: to.String(), Entries: make([]agendaEntryDTO, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, agendaEntryDTO{
			SessionID: entry.SessionID,
			Label:     entry.Label,
			Date:      entry.Date.String(),
			Start:     entry.Start.Format(time.RFC3339),
			End:       entry.End.Format(time.RFC3339),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

type agendaQuery struct {
	From string `json:"from" validate:"required,isodate"`
	To   string `json:"to" validate:"required,isodate"`
}

type listRoomsResponse struct {
	Rooms []roomDTO `json:"rooms"`
}

type roomDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type agendaResponse struct {
	RoomID  string           `json:"room_id"`
	From    string           `json:"from"`
	To      string           `json:"to"`
	Entries []agendaEntryDTO `json:"entries"`
}

type agendaEntryDTO struct {
	SessionID string `json:"session_id"`
	Label     string `json:"label"`
	Date      string `json:"date"`
	Start     string `json:"start"`
	End       string `json:"end"`
}
