package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/room-timetable/internal/scheduler"
)

// Subscription is a live feed of active sessions.
type Subscription struct {
	id         uint64
	controller *Controller
	entryID    cron.EntryID
	logger     *slog.Logger

	onUpdate func(time.Time, []scheduler.ActiveSession)
	onError  func(error)

	triggers chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once

	// deliverMu serialises delivery with cancellation.
	deliverMu sync.Mutex
	cancelled bool

	stateMu       sync.RWMutex
	lastKnownGood []scheduler.ActiveSession
	hasDelivered  bool
}

// Refresh requests a recomputation. Requests made while one is pending are coalesced.
func (s *Subscription) Refresh() {
	select {
	case s.triggers <- struct{}{}:
	default:
	}
}

// Unsubscribe stops the subscription. When it returns no further onUpdate call starts.
// It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.deliverMu.Lock()
		s.cancelled = true
		s.deliverMu.Unlock()

		s.cancel()
		if s.id != 0 {
			s.controller.remove(s)
			s.logger.Debug("subscription cancelled")
		}
	})
}

// Done is closed once the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.ctx.Done()
}

// LastKnownGood returns the most recently delivered list and whether any list was delivered.
func (s *Subscription) LastKnownGood() ([]scheduler.ActiveSession, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return cloneActive(s.lastKnownGood), s.hasDelivered
}

func (s *Subscription) loop() {
	defer s.controller.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.triggers:
			s.run()
		}
	}
}

func (s *Subscription) run() {
	ctx, cancel := context.WithTimeout(s.ctx, s.controller.timeout)
	at, active, err := s.controller.compute(ctx)
	cancel()

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.cancelled {
		return
	}
	if err != nil {
		s.logger.Warn("failed to refresh active sessions", slog.Any("error", err))
		if s.onError != nil {
			s.onError(err)
		}
		return
	}

	s.stateMu.Lock()
	s.lastKnownGood = cloneActive(active)
	s.hasDelivered = true
	s.stateMu.Unlock()

	s.onUpdate(at, active)
}

func cloneActive(active []scheduler.ActiveSession) []scheduler.ActiveSession {
	if active == nil {
		return nil
	}
	out := make([]scheduler.ActiveSession, len(active))
	copy(out, active)
	return out
}
