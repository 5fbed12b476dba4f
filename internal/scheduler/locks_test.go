package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestRoleLockManager_SameRoleBlocks verifies that two tasks for one role run one after the other.
func TestRoleLockManager_SameRoleBlocks(t *testing.T) {
	mgr := NewRoleLockManager()
	orderChan := make(chan int, 2)

	go func() {
		mgr.Lock(RoleBackend)
		orderChan <- 1
		time.Sleep(50 * time.Millisecond)
		mgr.Unlock(RoleBackend)
	}()

	// Give the first goroutine time to acquire the lock
	time.Sleep(10 * time.Millisecond)

	go func() {
		mgr.Lock(RoleBackend)
		orderChan <- 2
		mgr.Unlock(RoleBackend)
	}()

	first := <-orderChan
	second := <-orderChan
	if first != 1 || second != 2 {
		t.Errorf("Expected order [1, 2], got [%d, %d]", first, second)
	}
}

// TestRoleLockManager_DifferentRolesConcurrent verifies that different roles don't block each other.
func TestRoleLockManager_DifferentRolesConcurrent(t *testing.T) {
	mgr := NewRoleLockManager()
	var wg sync.WaitGroup
	var frontend, qa atomic.Bool

	wg.Add(2)
	go func() {
		defer wg.Done()
		mgr.Lock(RoleFrontend)
		frontend.Store(true)
		time.Sleep(20 * time.Millisecond)
		mgr.Unlock(RoleFrontend)
	}()
	go func() {
		defer wg.Done()
		mgr.Lock(RoleQATester)
		qa.Store(true)
		time.Sleep(20 * time.Millisecond)
		mgr.Unlock(RoleQATester)
	}()

	time.Sleep(10 * time.Millisecond)
	if !frontend.Load() || !qa.Load() {
		t.Error("Both goroutines should have acquired their locks concurrently")
	}

	wg.Wait()
}

func TestRoleLockManager_TryLock(t *testing.T) {
	mgr := NewRoleLockManager()

	if !mgr.TryLock(RoleDevOps) {
		t.Fatal("TryLock() on free role = false")
	}
	if mgr.TryLock(RoleDevOps) {
		t.Error("TryLock() on held role = true")
	}
	mgr.Unlock(RoleDevOps)
	if !mgr.TryLock(RoleDevOps) {
		t.Error("TryLock() after Unlock = false")
	}
	mgr.Unlock(RoleDevOps)

	// Unlocking a role that was never locked is a no-op
	mgr.Unlock(RoleSecurity)
}
