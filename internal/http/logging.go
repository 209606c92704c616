package http

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/room-timetable/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// handlerLogger scopes the request logger, or fallback, to one handler operation.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	scoped := append([]any{"handler", handlerName, "operation", operation}, attrs...)
	return logging.Scoped(ctx, fallback, scoped...)
}

// recoveryLogger adapts slog to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(values ...interface{}) {
	l.logger.Error("panic recovered", "panic", fmt.Sprint(values...))
}
