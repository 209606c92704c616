package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/room-timetable/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// serviceLogger prefers the request logger carried by ctx so request ids follow the call.
func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	scoped := append([]any{"service", serviceName, "operation", operation}, attrs...)
	return logging.Scoped(ctx, base, scoped...)
}

// ErrorKind labels err for the error_kind log attribute.
func ErrorKind(err error) string {
	var (
		conflict *ConflictError
		invalid  *ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &conflict):
		return "room_conflict"
	case errors.As(err, &invalid):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unexpected"
	}
}
