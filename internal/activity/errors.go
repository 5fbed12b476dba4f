package activity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/pbvs/internal/retry"
)

// PlanningError means the planning activity could not produce a valid plan.
type PlanningError struct {
	Reason string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning failed: %s: %v", e.Reason, e.Err)
	}
	return "planning failed: " + e.Reason
}

func (e *PlanningError) Unwrap() error { return e.Err }

// ValidationFailure means a worker's output did not match the output schema.
type ValidationFailure struct {
	Violations []retry.Violation
}

func (e *ValidationFailure) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "output failed validation: " + strings.Join(parts, "; ")
}

func (e *ValidationFailure) Category() retry.Category { return retry.CategoryValidation }

// TransientFailure is a worker failure worth retrying.
type TransientFailure struct {
	Reason string
	Kind   retry.Category
	Err    error
}

func (e *TransientFailure) Error() string {
	return "transient worker failure: " + e.Reason
}

func (e *TransientFailure) Unwrap() error { return e.Err }

func (e *TransientFailure) Category() retry.Category {
	if e.Kind != "" {
		return e.Kind
	}
	return retry.CategoryUnavailable
}

// FatalFailure is a worker failure that retrying cannot fix.
type FatalFailure struct {
	Reason string
	Kind   retry.Category
	Err    error
}

func (e *FatalFailure) Error() string {
	return "fatal worker failure: " + e.Reason
}

func (e *FatalFailure) Unwrap() error { return e.Err }

func (e *FatalFailure) Category() retry.Category {
	if e.Kind != "" {
		return e.Kind
	}
	return retry.CategoryFatal
}

// InvocationKind classifies an AgentInvocationError.
type InvocationKind string

const (
	KindValidation InvocationKind = "validation"
	KindAPI        InvocationKind = "api"
	KindTimeout    InvocationKind = "timeout"
	KindUnknown    InvocationKind = "unknown"
)

// AgentInvocationError is the final error of a task whose attempts are spent.
type AgentInvocationError struct {
	TaskID   string
	Kind     InvocationKind
	Attempts int
	Err      error
}

// NewAgentInvocationError wraps the last attempt's error, deriving its kind.
func NewAgentInvocationError(taskID string, attempts int, err error) *AgentInvocationError {
	return &AgentInvocationError{
		TaskID:   taskID,
		Kind:     invocationKind(err),
		Attempts: attempts,
		Err:      err,
	}
}

func invocationKind(err error) InvocationKind {
	switch retry.Classify(err) {
	case retry.CategoryValidation:
		return KindValidation
	case retry.CategoryTimeout:
		return KindTimeout
	case retry.CategoryRateLimit, retry.CategoryNetwork, retry.CategoryUnavailable,
		retry.CategoryUnauthorized, retry.CategoryInvalidRequest:
		return KindAPI
	}
	return KindUnknown
}

func (e *AgentInvocationError) Error() string {
	return fmt.Sprintf("task %s: %s error after %d attempt(s): %v", e.TaskID, e.Kind, e.Attempts, e.Err)
}

func (e *AgentInvocationError) Unwrap() error { return e.Err }

// Violations returns the schema violations of the last attempt, if any.
func (e *AgentInvocationError) Violations() []retry.Violation {
	var vf *ValidationFailure
	if errors.As(e.Err, &vf) {
		return vf.Violations
	}
	return nil
}

// DeploymentError fails the scaling phase.
type DeploymentError struct {
	Environment Environment
	Result      *DeploymentResult
	Err         error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deploy to %s failed: %v", e.Environment, e.Err)
}

func (e *DeploymentError) Unwrap() error { return e.Err }

// CheckpointError is logged, never propagated.
type CheckpointError struct {
	ProjectID string
	Err       error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s: %v", e.ProjectID, e.Err)
}

func (e *CheckpointError) Unwrap() error { return e.Err }

// NotificationError is logged, never propagated.
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification: %v", e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
