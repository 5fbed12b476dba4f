package scheduler

import (
	"sync"
)

// RoleLockManager provides per-role mutual exclusion for concurrent builds.
// Each agent role gets its own mutex, so tasks for different specialists run
// side by side while two tasks never reach the same specialist at once.
type RoleLockManager struct {
	mu    sync.Mutex                // Guards the locks map itself
	locks map[AgentRole]*sync.Mutex // Per-role mutexes
}

// NewRoleLockManager creates a new RoleLockManager.
func NewRoleLockManager() *RoleLockManager {
	return &RoleLockManager{
		locks: make(map[AgentRole]*sync.Mutex),
	}
}

func (r *RoleLockManager) get(role AgentRole) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, exists := r.locks[role]
	if !exists {
		l = &sync.Mutex{}
		r.locks[role] = l
	}
	return l
}

// Lock acquires the mutex for role, creating it on first access.
func (r *RoleLockManager) Lock(role AgentRole) {
	// Acquired outside the manager lock to avoid contention
	r.get(role).Lock()
}

// TryLock acquires the mutex for role if it is free.
func (r *RoleLockManager) TryLock(role AgentRole) bool {
	return r.get(role).TryLock()
}

// Unlock releases the mutex for role.
func (r *RoleLockManager) Unlock(role AgentRole) {
	r.mu.Lock()
	l, exists := r.locks[role]
	r.mu.Unlock()

	if exists {
		l.Unlock()
	}
}
