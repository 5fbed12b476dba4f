package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/events"
	"github.com/aristath/pbvs/internal/retry"
	"github.com/aristath/pbvs/internal/scheduler"
)

// errInterrupted marks an attempt cut short because the workflow's own
// context ended. A per-attempt timeout is not an interruption.
var errInterrupted = errors.New("attempt interrupted")

// CircuitBreakerRegistry manages per-role circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

func NewCircuitBreakerRegistry(logger *slog.Logger) *CircuitBreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for a role, creating it on first use.
func (r *CircuitBreakerRegistry) Get(role string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[role]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        role,
		MaxRequests: 3,                // Allow 3 test requests in half-open state
		Timeout:     30 * time.Second, // Stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "agent_role", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Interruption and malformed output say nothing about the worker's health
			if errors.Is(err, errInterrupted) {
				return true
			}
			var vf *activity.ValidationFailure
			return errors.As(err, &vf)
		},
	})

	r.breakers[role] = cb
	return cb
}

// executeWithRetry runs one task until it yields a valid output or the retry
// policy gives up. After a validation failure the next attempt's instruction
// carries a correction directive. It returns the number of attempts made.
func (o *Orchestrator) executeWithRetry(ctx context.Context, task *scheduler.Task, epoch int) (*activity.TaskOutput, int, error) {
	role := string(task.AgentRole)
	cb := o.breakers.Get(role)
	original := activity.BuildInstruction(task)
	instruction := original

	var (
		out     *activity.TaskOutput
		attempt int
	)

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++

		o.bus.Publish(events.TaskStartedEvent{
			Project:   o.projectID,
			ID:        task.ID,
			Name:      task.Name,
			AgentRole: role,
			Attempt:   attempt,
			Timestamp: o.now(),
		})
		o.metrics.attempts.WithLabelValues(role).Inc()

		req := activity.WorkerRequest{
			ProjectID:      o.projectID,
			TaskID:         task.ID,
			AgentRole:      role,
			Instruction:    instruction,
			OutputSchema:   activity.TaskOutputSchema,
			IdempotencyKey: activity.IdempotencyKey(task.ID, epoch),
			Attempt:        attempt,
		}

		result, err := cb.Execute(func() (interface{}, error) {
			actx := ctx
			if o.cfg.TaskTimeout > 0 {
				var cancel context.CancelFunc
				actx, cancel = context.WithTimeout(ctx, o.cfg.TaskTimeout)
				defer cancel()
			}
			res, err := o.acts.Worker.Execute(actx, req)
			if err != nil && ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errInterrupted, err)
			}
			return res, err
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			if !o.cfg.Retry.ShouldRetry(attempt, err) {
				return backoff.Permanent(err)
			}
			var vf *activity.ValidationFailure
			if errors.As(err, &vf) {
				instruction = retry.CorrectionPrompt(original, vf.Violations)
			}
			return err
		}

		out = result.(*activity.TaskOutput)
		return nil
	}

	notify := func(err error, delay time.Duration) {
		o.logger.Warn("task attempt failed, retrying",
			"project_id", o.projectID,
			"task_id", task.ID,
			"attempt", attempt,
			"delay", delay,
			"error", err)
		o.bus.Publish(events.TaskRetryingEvent{
			Project:   o.projectID,
			ID:        task.ID,
			Attempt:   attempt,
			Delay:     delay,
			Reason:    err.Error(),
			Timestamp: o.now(),
		})
	}

	policy := backoff.WithContext(retry.NewBackOff(o.cfg.Retry), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}
		return nil, attempt, activity.NewAgentInvocationError(task.ID, attempt, err)
	}
	return out, attempt, nil
}
