package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aristath/pbvs/internal/backend"
	"github.com/aristath/pbvs/internal/retry"
	"github.com/aristath/pbvs/internal/scheduler"
)

// BackendWorker runs each attempt on a fresh backend for the task's role.
type BackendWorker struct {
	factory BackendFactory
	logger  *slog.Logger
	now     func() time.Time
}

func NewBackendWorker(factory BackendFactory, logger *slog.Logger) *BackendWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackendWorker{factory: factory, logger: logger, now: time.Now}
}

func (w *BackendWorker) Execute(ctx context.Context, req WorkerRequest) (*TaskOutput, error) {
	role := scheduler.AgentRole(req.AgentRole)
	if !role.Valid() || role == scheduler.RoleSupervisor {
		return nil, &FatalFailure{
			Reason: fmt.Sprintf("unknown agent role %q", req.AgentRole),
			Kind:   retry.CategoryUnknownRole,
		}
	}

	b, err := w.factory(role)
	if err != nil {
		return nil, &FatalFailure{
			Reason: fmt.Sprintf("no backend for role %q", role),
			Kind:   retry.CategoryUnknownRole,
			Err:    err,
		}
	}
	defer b.Close()

	w.logger.Debug("sending task",
		"task_id", req.TaskID,
		"agent_role", role,
		"attempt", req.Attempt,
		"idempotency_key", req.IdempotencyKey)

	resp, err := b.Send(ctx, backend.Message{Content: req.Instruction, Role: "user"})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transportFailure(err)
	}
	if resp.Error != "" {
		return nil, transportFailure(errors.New(resp.Error))
	}

	out, err := DecodeTaskOutput(resp.Content, req.TaskID)
	if err != nil {
		return nil, err
	}
	if out.CompletedAt.IsZero() {
		out.CompletedAt = w.now()
	}
	return out, nil
}

// transportFailure sorts a backend error into a retryable or fatal failure.
func transportFailure(err error) error {
	cat := retry.Classify(err)
	if retry.DefaultRetryable()[cat] {
		return &TransientFailure{Reason: err.Error(), Kind: cat, Err: err}
	}
	return &FatalFailure{Reason: err.Error(), Kind: cat, Err: err}
}
