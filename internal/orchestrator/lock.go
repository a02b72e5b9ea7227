package orchestrator

import "sync"

// LockManager hands out one non-blocking lock per key, so different projects
// deploy concurrently while a single project never runs twice at once.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockManager creates a lock manager
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// TryLock reports whether the lock for project was acquired. It never blocks.
func (lm *LockManager) TryLock(project string) bool {
	lm.mu.Lock()
	lock, exists := lm.locks[project]
	if !exists {
		lock = &sync.Mutex{}
		lm.locks[project] = lock
	}
	lm.mu.Unlock()

	return lock.TryLock()
}

// Unlock releases the lock for project. Unknown projects are ignored.
func (lm *LockManager) Unlock(project string) {
	lm.mu.Lock()
	lock := lm.locks[project]
	lm.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}
}

// TryLockAll takes every key or none of them. Keys already taken by this call
// are released when a later key is busy.
func (lm *LockManager) TryLockAll(keys ...string) bool {
	for i, key := range keys {
		if !lm.TryLock(key) {
			lm.UnlockAll(keys[:i]...)
			return false
		}
	}
	return true
}

// UnlockAll releases keys taken with TryLockAll.
func (lm *LockManager) UnlockAll(keys ...string) {
	for _, key := range keys {
		lm.Unlock(key)
	}
}
