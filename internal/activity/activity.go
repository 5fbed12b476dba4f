// Package activity is the boundary between the orchestrator and the outside
// world. Everything with a side effect (planning, agent work, validation,
// deployment, checkpoints, notifications) goes through one of its interfaces.
package activity

import (
	"context"
	"fmt"

	"github.com/aristath/pbvs/internal/plan"
	"github.com/aristath/pbvs/internal/scheduler"
)

// Planner turns a project goal into a validated plan.
type Planner interface {
	CreatePlan(ctx context.Context, in ProjectInput) (*plan.ProjectPlan, error)
}

// Worker performs one attempt of one task. It returns a *ValidationFailure,
// *TransientFailure or *FatalFailure when the attempt does not yield a valid
// output.
type Worker interface {
	Execute(ctx context.Context, req WorkerRequest) (*TaskOutput, error)
}

// Validator evaluates every gate level of a finished build.
type Validator interface {
	ValidateBuild(ctx context.Context, projectID string) (*ValidationResult, error)
}

// Deployer ships one version to one environment.
type Deployer interface {
	Deploy(ctx context.Context, req DeployRequest) (*DeploymentResult, error)
}

// CheckpointStore persists workflow snapshots. Saving the same project, phase,
// task index and epoch twice overwrites the first write.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	LoadLatest(ctx context.Context, projectID string) (*Checkpoint, error)
}

// Notifier delivers a human-readable message about a project.
type Notifier interface {
	Notify(ctx context.Context, projectID, message string) error
}

// Set groups the activities one workflow runs against.
type Set struct {
	Planner     Planner
	Worker      Worker
	Validator   Validator
	Deployer    Deployer
	Checkpoints CheckpointStore
	Notifier    Notifier
}

// Validate reports which required activities are missing. Checkpoints and
// Notifier are optional.
func (s Set) Validate() error {
	switch {
	case s.Planner == nil:
		return fmt.Errorf("activity set: planner is required")
	case s.Worker == nil:
		return fmt.Errorf("activity set: worker is required")
	case s.Validator == nil:
		return fmt.Errorf("activity set: validator is required")
	case s.Deployer == nil:
		return fmt.Errorf("activity set: deployer is required")
	}
	return nil
}

// ParsePlan builds the task graph for a plan.
func ParsePlan(p *plan.ProjectPlan) (*scheduler.DAG, error) {
	return scheduler.BuildGraph(p)
}

// IdempotencyKey identifies one attempt epoch of a task. A resumed workflow
// bumps the epoch, so a worker that already saw a key may return its
// recorded result instead of redoing the work.
func IdempotencyKey(taskID string, epoch int) string {
	return fmt.Sprintf("%s:%d", taskID, epoch)
}
