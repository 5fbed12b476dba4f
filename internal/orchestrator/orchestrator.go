// Package orchestrator drives one project through plan, build, validate and
// scale. The control loop is the only writer of ProjectState; signal
// handlers set flags on Control and queries read deep copies.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/events"
	"github.com/aristath/pbvs/internal/retry"
	"github.com/aristath/pbvs/internal/scheduler"
)

// Config tunes the control loop.
type Config struct {
	Retry           retry.Policy
	Concurrency     int           // Tasks run at once during build (default 1)
	CheckpointEvery int           // Checkpoint after this many finished tasks (default 5)
	TaskTimeout     time.Duration // Per-attempt worker timeout, 0 for none
}

func DefaultConfig() Config {
	return Config{
		Retry:           retry.DefaultPolicy(),
		Concurrency:     1,
		CheckpointEvery: 5,
	}
}

// Options configures a new Orchestrator. Zero values get defaults.
type Options struct {
	ProjectID string
	Config    Config
	Logger    *slog.Logger
	Bus       *events.EventBus
	Metrics   *Metrics
	Now       func() time.Time
}

// ResultStore is implemented by checkpoint stores that also keep final
// results.
type ResultStore interface {
	SaveResult(ctx context.Context, projectID, status string, result []byte) error
}

// Orchestrator runs a single workflow.
type Orchestrator struct {
	acts      activity.Set
	cfg       Config
	logger    *slog.Logger
	bus       *events.EventBus
	metrics   *Metrics
	breakers  *CircuitBreakerRegistry
	control   *Control
	roleLocks *scheduler.RoleLockManager
	now       func() time.Time
	projectID string

	mu              sync.RWMutex
	state           *ProjectState
	dag             *scheduler.DAG
	result          *Result
	sinceCheckpoint int

	ckMu     sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

// NewProjectID returns a fresh, time-ordered project id.
func NewProjectID() string {
	return "proj-" + ulid.Make().String()
}

func New(acts activity.Set, opts Options) (*Orchestrator, error) {
	if err := acts.Validate(); err != nil {
		return nil, err
	}

	cfg := opts.Config
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = retry.DefaultRetryable()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 5
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	projectID := opts.ProjectID
	if projectID == "" {
		projectID = NewProjectID()
	}

	return &Orchestrator{
		acts:      acts,
		cfg:       cfg,
		logger:    logger,
		bus:       opts.Bus,
		metrics:   metrics,
		breakers:  NewCircuitBreakerRegistry(logger),
		control:   NewControl(),
		roleLocks: scheduler.NewRoleLockManager(),
		now:       now,
		projectID: projectID,
		done:      make(chan struct{}),
	}, nil
}

// ProjectID returns the id of the workflow this orchestrator drives.
func (o *Orchestrator) ProjectID() string { return o.projectID }

// Metrics returns the orchestrator's metrics.
func (o *Orchestrator) Metrics() *Metrics { return o.metrics }

// Done is closed once the workflow reaches completed or failed.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Run starts a new workflow and blocks until it finishes or ctx ends. A
// context ending mid-run leaves the last checkpoint in place for Resume.
func (o *Orchestrator) Run(ctx context.Context, in activity.ProjectInput) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := o.now()
	o.mu.Lock()
	if o.state != nil {
		o.mu.Unlock()
		return nil, errors.New("orchestrator already started")
	}
	o.state = &ProjectState{
		ProjectID:      o.projectID,
		Status:         StatusPlanning,
		Phase:          PhasePlan,
		Input:          in,
		StartedAt:      now,
		UpdatedAt:      now,
		CompletedTasks: []string{},
		FailedTasks:    []string{},
		BlockedTasks:   []string{},
	}
	o.mu.Unlock()

	o.logger.Info("starting workflow", "project_id", o.projectID, "goal", in.Goal)
	o.metrics.setPhase(PhasePlan)
	o.publishPhase()
	o.notify(ctx, "Starting project: "+in.Goal)

	return o.drive(ctx)
}

// Resume continues a workflow from a checkpoint. The attempt epoch is bumped
// and tasks that were in flight go back to pending.
func (o *Orchestrator) Resume(ctx context.Context, cp *activity.Checkpoint) (*Result, error) {
	var st ProjectState
	if err := json.Unmarshal(cp.State, &st); err != nil {
		return nil, fmt.Errorf("decode checkpoint for %s: %w", cp.ProjectID, err)
	}
	if st.ProjectID == "" {
		st.ProjectID = cp.ProjectID
	}

	o.mu.Lock()
	if o.state != nil {
		o.mu.Unlock()
		return nil, errors.New("orchestrator already started")
	}
	o.projectID = st.ProjectID

	if st.Status.Terminal() {
		o.state = &st
		o.mu.Unlock()
		return o.finalResult(), nil
	}

	if len(st.Tasks) > 0 {
		dag, err := scheduler.Restore(st.Tasks)
		if err != nil {
			o.mu.Unlock()
			return nil, fmt.Errorf("restore task graph for %s: %w", st.ProjectID, err)
		}
		o.dag = dag
	} else if st.Status == StatusBuilding {
		st.Status = StatusParsing
	}
	st.Epoch++
	o.state = &st
	o.mu.Unlock()

	if st.Paused {
		o.control.Pause()
	}
	o.mutate(func(*ProjectState) {})

	o.logger.Info("resuming workflow",
		"project_id", st.ProjectID,
		"status", st.Status,
		"phase", st.Phase,
		"epoch", st.Epoch,
		"next_task_index", st.NextTaskIndex)
	o.metrics.setPhase(st.Phase)
	o.publishPhase()

	return o.drive(ctx)
}

func (o *Orchestrator) drive(ctx context.Context) (*Result, error) {
	err := o.runPhases(ctx)
	switch {
	case err == nil:
		res := o.finalResult()
		o.saveResult(ctx, res)
		return res, nil
	case errors.Is(err, ErrCancelled) || o.control.Cancelled():
		return o.cancelled(ctx), nil
	case ctx.Err() != nil:
		o.logger.Warn("workflow interrupted, resume from the last checkpoint",
			"project_id", o.projectID, "error", err)
		o.checkpoint(ctx)
		return nil, ctx.Err()
	default:
		return o.fail(ctx, err), err
	}
}

func (o *Orchestrator) runPhases(ctx context.Context) error {
	for {
		if err := o.control.WaitWhilePaused(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		o.mu.RLock()
		status := o.state.Status
		o.mu.RUnlock()

		var err error
		switch status {
		case StatusPlanning:
			err = o.planPhase(ctx)
		case StatusParsing:
			err = o.parsePhase(ctx)
		case StatusBuilding:
			err = o.buildPhase(ctx)
		case StatusValidating:
			err = o.validatePhase(ctx)
		case StatusScaling:
			err = o.scalePhase(ctx)
		case StatusCompleted, StatusFailed:
			return nil
		default:
			err = fmt.Errorf("unknown workflow status %q", status)
		}
		if err != nil {
			return err
		}
	}
}

func (o *Orchestrator) planPhase(ctx context.Context) error {
	o.mu.RLock()
	in := o.state.Input
	o.mu.RUnlock()

	pl, err := o.acts.Planner.CreatePlan(ctx, in)
	if err != nil {
		var pe *activity.PlanningError
		if ctx.Err() == nil && !errors.As(err, &pe) {
			err = &activity.PlanningError{Reason: "create plan", Err: err}
		}
		return err
	}

	o.mutate(func(s *ProjectState) { s.Plan = pl })
	o.transition(StatusParsing, PhasePlan)
	o.checkpoint(ctx)
	return nil
}

func (o *Orchestrator) parsePhase(ctx context.Context) error {
	o.mu.RLock()
	pl := o.state.Plan
	o.mu.RUnlock()
	if pl == nil {
		return &activity.PlanningError{Reason: "no plan to parse"}
	}

	dag, err := activity.ParsePlan(pl)
	if err != nil {
		return err
	}
	order, err := dag.Order()
	if err != nil {
		return err
	}

	var hours float64
	for _, t := range dag.Tasks() {
		hours += t.EstimatedHours
	}

	o.mu.Lock()
	o.dag = dag
	o.mu.Unlock()
	o.mutate(func(s *ProjectState) {
		s.TaskOrder = order
		s.TotalTasks = dag.Len()
		s.EstimatedHours = hours
		s.NextTaskIndex = 0
	})
	o.transition(StatusBuilding, PhaseBuild)
	o.notify(ctx, fmt.Sprintf("Project parsed: %d tasks, %g estimated hours", dag.Len(), hours))
	o.checkpoint(ctx)
	return nil
}

func (o *Orchestrator) buildPhase(ctx context.Context) error {
	if err := o.runBuild(ctx); err != nil {
		return err
	}
	o.mutate(func(s *ProjectState) { s.ActualHours = actualHours(s) })
	o.transition(StatusValidating, PhaseValidate)
	o.checkpoint(ctx)
	return nil
}

func (o *Orchestrator) validatePhase(ctx context.Context) error {
	o.mu.RLock()
	validation := o.state.Validation
	o.mu.RUnlock()

	// A stored result is never re-evaluated, even after a restart.
	if validation == nil {
		res, err := o.acts.Validator.ValidateBuild(ctx, o.projectID)
		if err != nil {
			return fmt.Errorf("validate build: %w", err)
		}
		o.mutate(func(s *ProjectState) { s.Validation = res })
		o.checkpoint(ctx)
		validation = res
	}

	if !validation.OverallPassed {
		o.notify(ctx, "Validation incomplete - requires manual review")
		if err := o.waitAtGate(ctx, GateValidationReview, o.control.WaitForReview); err != nil {
			return err
		}
	}

	o.transition(StatusScaling, PhaseScale)
	o.checkpoint(ctx)
	return nil
}

func (o *Orchestrator) scalePhase(ctx context.Context) error {
	o.mu.RLock()
	staging := o.state.StagingDeployment
	epoch := o.state.Epoch
	var version string
	if o.state.Plan != nil {
		version = o.state.Plan.Version
	}
	o.mu.RUnlock()
	if version == "" {
		version = "1.0.0"
	}

	if staging == nil {
		res, err := o.deploy(ctx, activity.EnvStaging, version, epoch)
		if err != nil {
			return err
		}
		o.mutate(func(s *ProjectState) { s.StagingDeployment = res })
		o.notify(ctx, "Staging deployment successful: "+res.URL)
		o.checkpoint(ctx)
	}

	err := o.waitAtGate(ctx, GateProductionApproval, func(ctx context.Context) error {
		return o.control.WaitForApproval(ctx, ApproveProduction)
	})
	if err != nil {
		return err
	}

	res, err := o.deploy(ctx, activity.EnvProduction, version, epoch)
	if err != nil {
		return err
	}
	o.mutate(func(s *ProjectState) { s.Deployment = res })
	o.notify(ctx, "Production deployment successful: "+res.URL)

	o.complete(ctx)
	return nil
}

func (o *Orchestrator) deploy(ctx context.Context, env activity.Environment, version string, epoch int) (*activity.DeploymentResult, error) {
	res, err := o.acts.Deployer.Deploy(ctx, activity.DeployRequest{
		ProjectID:      o.projectID,
		Environment:    env,
		Version:        version,
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", o.projectID, env, epoch),
	})
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if res == nil {
		res = &activity.DeploymentResult{Environment: env, Version: version, DeployedAt: o.now()}
	}
	if res.Status == "" || res.Status == activity.DeploySuccess {
		res.Status = activity.DeployFailed
	}
	o.mutate(func(s *ProjectState) { s.Deployment = res })

	var de *activity.DeploymentError
	if !errors.As(err, &de) {
		err = &activity.DeploymentError{Environment: env, Result: res, Err: err}
	}
	return nil, err
}

// waitAtGate records the gate, checkpoints, and blocks in wait.
func (o *Orchestrator) waitAtGate(ctx context.Context, gate Gate, wait func(context.Context) error) error {
	o.mutate(func(s *ProjectState) { s.Gate = gate })
	o.bus.Publish(events.GateWaitingEvent{
		Project:   o.projectID,
		Gate:      string(gate),
		Timestamp: o.now(),
	})
	o.logger.Info("waiting at gate", "project_id", o.projectID, "gate", gate)
	o.checkpoint(ctx)

	if err := wait(ctx); err != nil {
		return err
	}

	o.mutate(func(s *ProjectState) { s.Gate = GateNone })
	o.bus.Publish(events.GateReleasedEvent{
		Project:   o.projectID,
		Gate:      string(gate),
		Timestamp: o.now(),
	})
	o.logger.Info("gate released", "project_id", o.projectID, "gate", gate)
	return nil
}

func (o *Orchestrator) complete(ctx context.Context) {
	finished := o.now()
	o.mutate(func(s *ProjectState) {
		s.ActualHours = actualHours(s)
		s.FinishedAt = &finished
	})
	o.transition(StatusCompleted, PhaseScale)

	o.mu.RLock()
	msg := fmt.Sprintf("Project completed!\nTasks: %d/%d\nDuration: %.0f minutes\nProduction URL: %s",
		o.state.CompletedTasksCount,
		o.state.TotalTasks,
		math.Round(finished.Sub(o.state.StartedAt).Minutes()),
		o.state.Deployment.URL)
	o.mu.RUnlock()

	o.notify(ctx, msg)
	o.checkpoint(ctx)
}

func (o *Orchestrator) fail(ctx context.Context, cause error) *Result {
	o.logger.Error("workflow failed", "project_id", o.projectID, "error", cause)
	o.finishFailed(func(s *ProjectState) { s.Error = cause.Error() })
	o.notify(ctx, "Project failed: "+cause.Error())
	o.checkpoint(ctx)
	res := o.finalResult()
	o.saveResult(ctx, res)
	return res
}

func (o *Orchestrator) cancelled(ctx context.Context) *Result {
	o.logger.Warn("workflow cancelled", "project_id", o.projectID)
	o.finishFailed(func(s *ProjectState) {
		s.Cancelled = true
		s.Error = ErrCancelled.Error()
	})
	o.notify(ctx, "Project failed: "+ErrCancelled.Error())
	o.checkpoint(ctx)
	res := o.finalResult()
	o.saveResult(ctx, res)
	return res
}

func (o *Orchestrator) finishFailed(fn func(*ProjectState)) {
	finished := o.now()
	o.mutate(func(s *ProjectState) {
		fn(s)
		s.Gate = GateNone
		s.ActualHours = actualHours(s)
		s.FinishedAt = &finished
		s.Status = StatusFailed
	})
	o.publishPhase()
}

// finalResult derives the result once and closes Done.
func (o *Orchestrator) finalResult() *Result {
	o.mu.Lock()
	if o.result == nil {
		o.result = o.state.Result(o.now())
	}
	res := o.result
	o.mu.Unlock()

	o.doneOnce.Do(func() { close(o.done) })
	return res
}

func (o *Orchestrator) saveResult(ctx context.Context, res *Result) {
	rs, ok := o.acts.Checkpoints.(ResultStore)
	if !ok {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		o.logger.Warn("encode result", "project_id", o.projectID, "error", err)
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := rs.SaveResult(sctx, o.projectID, string(res.Status), data); err != nil {
		o.logger.Warn("save result failed", "project_id", o.projectID, "error", err)
	}
}

// mutate applies fn to the state under the write lock and refreshes the
// fields derived from the task graph and control flags.
func (o *Orchestrator) mutate(fn func(s *ProjectState)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o.state)
	if o.dag != nil {
		o.state.Tasks = o.dag.Tasks()
	}
	o.state.Paused = o.control.Paused()
	o.state.UpdatedAt = o.now()
}

func (o *Orchestrator) transition(status Status, phase Phase) {
	o.mutate(func(s *ProjectState) {
		s.Status = status
		s.Phase = phase
	})
	o.logger.Info("workflow transition", "project_id", o.projectID, "status", status, "phase", phase)
	o.metrics.setPhase(phase)
	o.publishPhase()
}

func (o *Orchestrator) publishPhase() {
	o.mu.RLock()
	ev := events.PhaseChangedEvent{
		Project:   o.projectID,
		Phase:     string(o.state.Phase),
		Status:    string(o.state.Status),
		Timestamp: o.now(),
	}
	o.mu.RUnlock()
	o.bus.Publish(ev)
}

// checkpoint saves the current state. Failures are logged and counted only.
// Snapshots are taken and written under ckMu so saves land in mutation order.
func (o *Orchestrator) checkpoint(ctx context.Context) {
	if o.acts.Checkpoints == nil {
		return
	}
	o.ckMu.Lock()
	defer o.ckMu.Unlock()

	o.mu.RLock()
	data, err := json.Marshal(o.state)
	cp := activity.Checkpoint{
		ProjectID: o.projectID,
		Goal:      o.state.Input.Goal,
		Status:    string(o.state.Status),
		Phase:     string(o.state.Phase),
		TaskIndex: o.state.NextTaskIndex,
		Epoch:     o.state.Epoch,
		State:     data,
		CreatedAt: o.now(),
	}
	o.mu.RUnlock()

	if err == nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err = o.acts.Checkpoints.Save(sctx, cp)
		cancel()
	}
	if err != nil {
		o.metrics.checkpointFailures.Inc()
		o.logger.Warn("checkpoint failed",
			"project_id", o.projectID,
			"phase", cp.Phase,
			"task_index", cp.TaskIndex,
			"error", &activity.CheckpointError{ProjectID: o.projectID, Err: err})
	}
}

// notify delivers a notification. Failures are logged and counted only.
func (o *Orchestrator) notify(ctx context.Context, msg string) {
	if o.acts.Notifier == nil {
		return
	}
	if err := o.acts.Notifier.Notify(context.WithoutCancel(ctx), o.projectID, msg); err != nil {
		o.metrics.notificationFailures.Inc()
		o.logger.Warn("notification failed", "project_id", o.projectID, "error", err)
	}
}

func actualHours(s *ProjectState) float64 {
	var d time.Duration
	for _, br := range s.BuildResults {
		d += br.Duration
	}
	return d.Hours()
}
