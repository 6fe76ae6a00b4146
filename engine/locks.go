package engine

import "sync"

// userLocks serializes recompute work per user. Two recomputes for the same
// user must not interleave; recomputes for different users may run freely in
// parallel. Locks are never removed; the map grows with the user population,
// which is bounded.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *userLocks) forUser(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	return m
}
