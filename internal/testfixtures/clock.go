package testfixtures

import (
	"sync"
	"time"

	"github.com/example/room-timetable/internal/recurrence"
)

// Clock is a manually driven time source. Safe for concurrent use.
type Clock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewClock starts a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// NowFunc adapts the clock to a func() time.Time dependency. A nil clock yields time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) Set(t time.Time) {
	c.move(func(time.Time) time.Time { return t })
}

// SetWallClock moves to wall-clock time t on date d, keeping the clock's zone.
func (c *Clock) SetWallClock(d recurrence.Date, t recurrence.TimeOfDay) time.Time {
	return c.move(func(cur time.Time) time.Time {
		return d.In(cur.Location()).Add(t.Duration())
	})
}

func (c *Clock) Advance(d time.Duration) time.Time {
	return c.move(func(cur time.Time) time.Time { return cur.Add(d) })
}

func (c *Clock) move(step func(time.Time) time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = step(c.now)
	return c.now
}
