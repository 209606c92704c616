package application

import (
	"sync"
	"time"

	"github.com/example/room-timetable/internal/scheduler"
)

// auditCache stores the last conflict audit so repeated audit queries skip the
// pairwise scan while sessions remain unchanged. Every Invalidate bumps generation;
// a result computed under an older generation is discarded.
type auditCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	pairs      []scheduler.ConflictPair
	valid      bool
	expiresAt  time.Time
	generation uint64
}

func newAuditCache(ttl time.Duration, now func() time.Time) *auditCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &auditCache{now: now, ttl: ttl}
}

func (c *auditCache) Get() ([]scheduler.ConflictPair, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid || c.now().After(c.expiresAt) {
		return nil, false
	}
	return clonePairs(c.pairs), true
}

// Generation must be read before loading the sessions the audit is computed from.
func (c *auditCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Store caches pairs unless an invalidation happened since generation was read.
func (c *auditCache) Store(pairs []scheduler.ConflictPair, generation uint64) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	c.pairs = clonePairs(pairs)
	c.valid = true
	c.expiresAt = c.now().Add(c.ttl)
	return true
}

func (c *auditCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pairs = nil
	c.valid = false
	c.generation++
	c.mu.Unlock()
}

func clonePairs(pairs []scheduler.ConflictPair) []scheduler.ConflictPair {
	if len(pairs) == 0 {
		return nil
	}
	out := make([]scheduler.ConflictPair, len(pairs))
	for i, pair := range pairs {
		out[i] = scheduler.ConflictPair{
			RoomID: pair.RoomID,
			First:  pair.First.Clone(),
			Second: pair.Second.Clone(),
		}
	}
	return out
}
