package refresh

import "log/slog"

// cronLogger routes robfig/cron diagnostics through slog. Scheduler chatter is debug level.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{slog.Any("error", err)}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
