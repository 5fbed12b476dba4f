package activity

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aristath/pbvs/internal/backend"
	"github.com/aristath/pbvs/internal/plan"
	"github.com/aristath/pbvs/internal/scheduler"
)

// BackendFactory returns the backend that serves a role.
type BackendFactory func(role scheduler.AgentRole) (backend.Backend, error)

// FilePlanner loads a plan from disk. ProjectInput.PlanFile takes precedence
// over Path.
type FilePlanner struct {
	Path string
}

func (p FilePlanner) CreatePlan(ctx context.Context, in ProjectInput) (*plan.ProjectPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := in.PlanFile
	if path == "" {
		path = p.Path
	}
	if path == "" {
		return nil, &PlanningError{Reason: "no plan file given"}
	}

	pl, err := plan.Load(path)
	if err != nil {
		return nil, &PlanningError{Reason: "load " + path, Err: err}
	}
	if pl.Stakeholder == "" {
		pl.Stakeholder = in.Stakeholder
	}
	return pl, nil
}

// BackendPlanner asks the supervisor backend to write the plan.
type BackendPlanner struct {
	factory BackendFactory
	logger  *slog.Logger
	now     func() time.Time
}

func NewBackendPlanner(factory BackendFactory, logger *slog.Logger) *BackendPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackendPlanner{factory: factory, logger: logger, now: time.Now}
}

func (p *BackendPlanner) CreatePlan(ctx context.Context, in ProjectInput) (*plan.ProjectPlan, error) {
	b, err := p.factory(scheduler.RoleSupervisor)
	if err != nil {
		return nil, &PlanningError{Reason: "create supervisor backend", Err: err}
	}
	defer b.Close()

	p.logger.Info("requesting plan", "goal", in.Goal, "session_id", b.SessionID())
	resp, err := b.Send(ctx, backend.Message{Content: BuildPlanInstruction(in), Role: "user"})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &PlanningError{Reason: "supervisor call", Err: err}
	}

	doc, ok := extractJSON(resp.Content)
	if !ok {
		return nil, &PlanningError{Reason: "supervisor reply contains no JSON plan"}
	}
	var pl plan.ProjectPlan
	if err := json.Unmarshal([]byte(doc), &pl); err != nil {
		return nil, &PlanningError{Reason: "decode plan", Err: err}
	}

	if pl.CreatedAt.IsZero() {
		pl.CreatedAt = p.now()
	}
	if pl.Version == "" {
		pl.Version = "1.0.0"
	}
	if pl.Stakeholder == "" {
		pl.Stakeholder = in.Stakeholder
	}
	if err := pl.Validate(); err != nil {
		return nil, &PlanningError{Reason: "plan failed validation", Err: err}
	}
	return &pl, nil
}
