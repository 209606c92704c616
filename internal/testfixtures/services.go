package testfixtures

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/room-timetable/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Location    *time.Location
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults. Logs are discarded.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("session"),
		Location:    time.UTC,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("session")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation sets the display time zone handed to services.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewTimetableService builds a timetable service over store. The cron schedule is set far
// apart so only store changes and explicit requests trigger refreshes. The service is
// closed when the test finishes.
func (f *ServiceFactory) NewTimetableService(tb testing.TB, store application.Store) *application.TimetableService {
	tb.Helper()

	svc, err := application.NewTimetableService(store, application.TimetableServiceConfig{
		IDGenerator:     f.IDGenerator.NextFunc(),
		Now:             f.Clock.NowFunc(),
		Location:        f.Location,
		RefreshSchedule: "@every 1h",
		Logger:          f.Logger,
	})
	if err != nil {
		tb.Fatalf("failed to build timetable service: %v", err)
	}
	tb.Cleanup(svc.Close)
	return svc
}
