// Package refresh keeps subscribers supplied with the list of sessions currently in progress.
//
// Each subscription owns one loop goroutine fed by a single-slot trigger. The slot is filled
// by a cron entry, by store change notifications and once at subscribe time; triggers that
// arrive while a computation runs collapse into one follow-up run.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/room-timetable/internal/persistence"
	"github.com/example/room-timetable/internal/scheduler"
)

const (
	// DefaultSchedule fires at the top of every minute, the granularity of session boundaries.
	DefaultSchedule = "* * * * *"
	// DefaultTimeout bounds a single recomputation.
	DefaultTimeout = 10 * time.Second
)

// ErrInvalidSchedule indicates the cron expression could not be parsed.
var ErrInvalidSchedule = errors.New("refresh: invalid schedule")

// Source is the read side of the store used for recomputation.
type Source interface {
	ListRooms(ctx context.Context) ([]scheduler.Room, error)
	ListSessions(ctx context.Context, roomID string) ([]scheduler.Session, error)
	persistence.ChangeSource
}

// Config configures a Controller.
type Config struct {
	// Schedule is a standard five-field cron expression or descriptor such as "@every 30s".
	Schedule string
	Timeout  time.Duration
	// Location is the display time zone used to evaluate "now".
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

// Controller manages refresh subscriptions.
type Controller struct {
	source   Source
	schedule cron.Schedule
	timeout  time.Duration
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger

	mu         sync.Mutex
	cron       *cron.Cron
	cancelFeed func()
	subs       map[uint64]*Subscription
	nextID     uint64
	closed     bool

	wg sync.WaitGroup
}

// ParseSchedule validates a cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, expr, err)
	}
	return schedule, nil
}

// NewController constructs a Controller. Nothing runs until the first Subscribe.
func NewController(source Source, cfg Config) (*Controller, error) {
	if source == nil {
		return nil, errors.New("refresh: source is required")
	}
	schedule, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Controller{
		source:   source,
		schedule: schedule,
		timeout:  cfg.Timeout,
		location: cfg.Location,
		now:      cfg.Now,
		logger:   cfg.Logger.With(slog.String("component", "refresh")),
		subs:     make(map[uint64]*Subscription),
	}, nil
}

// SubscribeOptions tunes a single subscription.
type SubscribeOptions struct {
	// OnError is called, on the subscription's goroutine, when a recomputation fails.
	// The previous list stays current and the next trigger retries.
	OnError func(error)
}

// Subscribe starts delivering active-session lists to onUpdate, together with the instant
// they were evaluated at. The first computation is triggered immediately. onUpdate runs on
// the subscription's goroutine, never concurrently with itself, and must not call
// Unsubscribe synchronously.
func (c *Controller) Subscribe(onUpdate func(at time.Time, active []scheduler.ActiveSession), opts SubscribeOptions) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		controller: c,
		onUpdate:   onUpdate,
		onError:    opts.OnError,
		triggers:   make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || onUpdate == nil {
		sub.cancelled = true
		cancel()
		return sub
	}

	c.nextID++
	sub.id = c.nextID
	sub.logger = c.logger.With(slog.String("subscription_id", strconv.FormatUint(sub.id, 10)))

	if len(c.subs) == 0 {
		c.startLocked()
	}
	sub.entryID = c.cron.Schedule(c.schedule, cron.FuncJob(sub.Refresh))
	c.subs[sub.id] = sub

	c.wg.Add(1)
	go sub.loop()
	sub.Refresh()

	sub.logger.Debug("subscription started")
	return sub
}

// Len reports the number of live subscriptions.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close cancels every subscription and waits for their loops to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	c.wg.Wait()
}

func (c *Controller) startLocked() {
	c.cron = cron.New(
		cron.WithLocation(c.location),
		cron.WithLogger(cronLogger{logger: c.logger}),
	)
	c.cron.Start()
	c.cancelFeed = c.source.SubscribeChanges(c.onChange)
}

func (c *Controller) stopLocked() {
	if c.cancelFeed != nil {
		c.cancelFeed()
		c.cancelFeed = nil
	}
	if c.cron != nil {
		c.cron.Stop()
		c.cron = nil
	}
}

func (c *Controller) remove(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[sub.id]; !ok {
		return
	}
	delete(c.subs, sub.id)
	if c.cron != nil {
		c.cron.Remove(sub.entryID)
	}
	if len(c.subs) == 0 {
		c.stopLocked()
	}
}

func (c *Controller) onChange(change persistence.Change) {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Refresh()
	}
}

func (c *Controller) compute(ctx context.Context) (time.Time, []scheduler.ActiveSession, error) {
	rooms, err := c.source.ListRooms(ctx)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("list rooms: %w", err)
	}
	sessions, err := c.source.ListSessions(ctx, "")
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("list sessions: %w", err)
	}
	at := c.now().In(c.location)
	return at, scheduler.ResolveActive(at, sessions, rooms), nil
}
