// Package changefeed fans committed store writes out to in-process subscribers and,
// for Postgres deployments, relays writes made by other processes.
package changefeed

import (
	"sync"

	"github.com/example/room-timetable/internal/persistence"
)

// Hub delivers changes to every registered subscriber.
type Hub struct {
	mu          sync.RWMutex
	next        uint64
	subscribers map[uint64]func(persistence.Change)
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[uint64]func(persistence.Change))}
}

// Subscribe registers fn and returns an idempotent cancel func.
func (h *Hub) Subscribe(fn func(persistence.Change)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subscribers[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
		})
	}
}

// Publish invokes every subscriber with change on the caller's goroutine.
func (h *Hub) Publish(change persistence.Change) {
	h.mu.RLock()
	targets := make([]func(persistence.Change), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		targets = append(targets, fn)
	}
	h.mu.RUnlock()

	for _, fn := range targets {
		fn(change)
	}
}

// Len reports the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
