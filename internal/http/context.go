package http

import (
	"context"
	"log/slog"

	"github.com/example/room-timetable/internal/logging"
)

// ContextWithLogger returns a derived context carrying the request scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request scoped logger, or nil.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
