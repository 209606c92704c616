package application

import (
	"sort"
	"sync"
)

// roomLocks hands out one mutex per room id. Entries are dropped once unused.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

// lock acquires the mutexes of every distinct non-empty room id in lexical order and
// returns the matching unlock func.
func (l *roomLocks) lock(roomIDs ...string) (unlock func()) {
	ids := make([]string, 0, len(roomIDs))
	seen := make(map[string]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	held := make([]*roomLock, 0, len(ids))
	for _, id := range ids {
		entry := l.acquire(id)
		entry.mu.Lock()
		held = append(held, entry)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(ids[i])
		}
	}
}

func (l *roomLocks) acquire(id string) *roomLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &roomLock{}
		l.locks[id] = entry
	}
	entry.refs++
	return entry
}

func (l *roomLocks) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[id]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
