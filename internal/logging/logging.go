package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type contextKey struct{}

// ContextWithLogger returns a derived context that carries the provided logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a logger previously attached to the context.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(contextKey{}).(*slog.Logger)
	return logger
}

// Scoped returns the context logger, else fallback, else slog.Default, with attrs attached.
func Scoped(ctx context.Context, fallback *slog.Logger, attrs ...any) *slog.Logger {
	logger := FromContext(ctx)
	switch {
	case logger != nil:
	case fallback != nil:
		logger = fallback
	default:
		logger = slog.Default()
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging: invalid level %q", value)
	}
	return level, nil
}

// New builds a logger writing "json" or "text" records at the given level.
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("logging: invalid format %q", format)
	}
}
