package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/example/room-timetable/internal/persistence"
)

const listenerPingInterval = 90 * time.Second

// PostgresListener relays NOTIFY payloads written by other processes into a Hub.
// Payloads carrying the local origin are skipped since the local store already published them.
type PostgresListener struct {
	listener *pq.Listener
	hub      *Hub
	origin   string
	channel  string
	logger   *slog.Logger
}

// NewPostgresListener connects to dsn and listens on channel.
func NewPostgresListener(dsn, channel, origin string, hub *Hub, logger *slog.Logger) (*PostgresListener, error) {
	if hub == nil {
		return nil, errors.New("changefeed: hub is required")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "changefeed"), slog.String("channel", channel))

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("listener event", slog.Int("event", int(event)), slog.Any("error", err))
		}
	})
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("changefeed: listen %s: %w", channel, err)
	}

	return &PostgresListener{
		listener: listener,
		hub:      hub,
		origin:   origin,
		channel:  channel,
		logger:   logger,
	}, nil
}

// Run relays notifications until ctx is cancelled.
func (l *PostgresListener) Run(ctx context.Context) error {
	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-l.listener.Notify:
			l.handle(n)
		case <-ticker.C:
			if err := l.listener.Ping(); err != nil {
				l.logger.Warn("listener ping failed", slog.Any("error", err))
			}
		}
	}
}

// Close stops listening and releases the connection.
func (l *PostgresListener) Close() error {
	return l.listener.Close()
}

func (l *PostgresListener) handle(n *pq.Notification) {
	// A nil notification follows a reconnect; anything sent meanwhile was lost.
	if n == nil {
		l.logger.Info("listener reconnected, requesting resync")
		l.hub.Publish(persistence.Change{Kind: persistence.ChangeResync})
		return
	}

	origin, change, err := DecodeNotification(n.Extra)
	if err != nil {
		l.logger.Warn("dropping notification", slog.Any("error", err))
		return
	}
	if origin != "" && origin == l.origin {
		return
	}
	l.hub.Publish(change)
}
