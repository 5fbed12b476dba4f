package orchestrator

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is returned by waits once the workflow has been cancelled.
var ErrCancelled = errors.New("workflow cancelled")

// Approval targets accepted by Control.Approve.
const (
	ApproveValidation = "validation"
	ApproveProduction = "production"
)

// Control holds the flags set by signals. Signal handlers only flip flags
// here; the control loop reads them at its wait points. Every change closes
// the current changed channel and installs a fresh one, so waiters wake
// without polling.
type Control struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
	approvals map[string]bool
	changed   chan struct{}
}

func NewControl() *Control {
	return &Control{
		approvals: make(map[string]bool),
		changed:   make(chan struct{}),
	}
}

func (c *Control) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Pause stops the loop before its next task.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	c.broadcastLocked()
}

// Resume clears a pause, including the implicit pause of a validation review.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.broadcastLocked()
}

// Approve releases the gate named by target.
func (c *Control) Approve(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approvals[target] = true
	c.broadcastLocked()
}

// Cancel makes every current and future wait return ErrCancelled.
func (c *Control) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	c.broadcastLocked()
}

func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Control) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *Control) Approved(target string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.approvals[target]
}

// wait blocks until done reports true under the lock, the workflow is
// cancelled, or ctx ends.
func (c *Control) wait(ctx context.Context, done func() bool) error {
	for {
		c.mu.Lock()
		if c.cancelled {
			c.mu.Unlock()
			return ErrCancelled
		}
		if done() {
			c.mu.Unlock()
			return nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// WaitWhilePaused returns once the workflow is not paused.
func (c *Control) WaitWhilePaused(ctx context.Context) error {
	return c.wait(ctx, func() bool { return !c.paused })
}

// WaitForApproval returns once target has been approved. An approval sent
// before the wait began counts.
func (c *Control) WaitForApproval(ctx context.Context, target string) error {
	return c.wait(ctx, func() bool { return c.approvals[target] })
}

// WaitForReview pauses the workflow and returns when it is resumed or the
// validation target is approved.
func (c *Control) WaitForReview(ctx context.Context) error {
	c.Pause()
	err := c.wait(ctx, func() bool { return !c.paused || c.approvals[ApproveValidation] })
	if err == nil {
		c.Resume()
	}
	return err
}
