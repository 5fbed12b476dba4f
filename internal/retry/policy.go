package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy decides whether a failed operation is attempted again and how long
// to wait before doing so. Attempts are 1-indexed.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Retryable    map[Category]bool
}

// DefaultPolicy returns 3 attempts, 1s initial delay, 10s cap, doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Retryable:    DefaultRetryable(),
	}
}

// DefaultRetryable returns the categories retried by DefaultPolicy.
func DefaultRetryable() map[Category]bool {
	return map[Category]bool{
		CategoryRateLimit:   true,
		CategoryTimeout:     true,
		CategoryNetwork:     true,
		CategoryUnavailable: true,
		CategoryValidation:  true,
	}
}

// DelayFor returns min(MaxDelay, InitialDelay * Multiplier^(attempt-1)).
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	// Guard against float overflow for absurd attempt counts
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt should follow a failed attempt.
func (p Policy) ShouldRetry(attempt int, err error) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	return p.IsRetryable(err)
}

// IsRetryable reports whether err belongs to a retryable category, ignoring
// the attempt budget.
func (p Policy) IsRetryable(err error) bool {
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable()
	}
	return retryable[Classify(err)]
}

// BackOff adapts a Policy to backoff.BackOff. The n-th call to NextBackOff
// returns the delay that follows attempt n, and backoff.Stop once the
// attempt budget is spent.
type BackOff struct {
	policy  Policy
	attempt int
}

// NewBackOff creates a BackOff for the policy.
func NewBackOff(p Policy) *BackOff {
	return &BackOff{policy: p}
}

// NextBackOff implements backoff.BackOff.
func (b *BackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt >= b.policy.MaxAttempts {
		return backoff.Stop
	}
	return b.policy.DelayFor(b.attempt)
}

// Reset implements backoff.BackOff.
func (b *BackOff) Reset() {
	b.attempt = 0
}
