// ABOUTME: Per-conversation lock arena serializing chat turns
// ABOUTME: Locks are refcounted and removed when the last holder releases

package chat

import "sync"

// convLock is one conversation's mutex plus its holder count.
type convLock struct {
	mu   sync.Mutex
	refs int
}

// lockArena hands out per-conversation mutexes. A turn holds its
// conversation's lock from user-message persistence through final commit,
// so two turns on the same conversation never interleave. Locks for idle
// conversations are dropped once the last holder releases.
type lockArena struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

func newLockArena() *lockArena {
	return &lockArena{locks: make(map[string]*convLock)}
}

// acquire blocks until the conversation's lock is held.
func (a *lockArena) acquire(conversationID string) {
	a.mu.Lock()
	l, ok := a.locks[conversationID]
	if !ok {
		l = &convLock{}
		a.locks[conversationID] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
}

// release unlocks the conversation and drops the entry when unused.
func (a *lockArena) release(conversationID string) {
	a.mu.Lock()
	l, ok := a.locks[conversationID]
	if ok {
		l.refs--
		if l.refs == 0 {
			delete(a.locks, conversationID)
		}
	}
	a.mu.Unlock()

	if ok {
		l.mu.Unlock()
	}
}
