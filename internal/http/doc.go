// Package http exposes the timetable over JSON and Server-Sent Events.
//
// The router exposes the following endpoints:
//   - GET /rooms: rooms ordered by name. Response {"rooms":[{"id","name"}]}.
//   - GET /rooms/{id}/agenda?from=YYYY-MM-DD&to=YYYY-MM-DD: concrete occurrences of the
//     room's sessions in the inclusive range, as `agendaEntryDTO` values.
//   - GET /sessions?room_id=, POST /sessions, PUT /sessions/{id}, DELETE /sessions/{id}:
//     session management exchanging the `sessionRequest` and `sessionDTO` payloads defined in
//     session_handler.go. A write that would double-book its room answers 409 with the
//     colliding session under "conflict".
//   - GET /sessions/conflicts: audit of stored sessions that double-book a room.
//   - GET /display/active?at=RFC3339: one-shot list of sessions in progress.
//   - GET /display/stream: text/event-stream emitting one "active_sessions" event per
//     refreshed list and "refresh_error" when a refresh fails; the last list stays valid.
//   - GET /healthz: store connectivity.
//
// Request DTOs are checked with go-playground/validator tags before reaching the service.
// Validation failures answer 422 with a field to message map under "errors".
package http
