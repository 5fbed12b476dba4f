package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/plan"
	"github.com/aristath/pbvs/internal/retry"
)

type fakePlanner struct {
	plan  *plan.ProjectPlan
	err   error
	calls int
}

func (p *fakePlanner) CreatePlan(ctx context.Context, in activity.ProjectInput) (*plan.ProjectPlan, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.plan, nil
}

// fakeWorker records requests and answers with fn, or with a completed
// output when fn is nil.
type fakeWorker struct {
	mu   sync.Mutex
	reqs []activity.WorkerRequest
	fn   func(ctx context.Context, req activity.WorkerRequest) (*activity.TaskOutput, error)
}

func (w *fakeWorker) Execute(ctx context.Context, req activity.WorkerRequest) (*activity.TaskOutput, error) {
	w.mu.Lock()
	w.reqs = append(w.reqs, req)
	w.mu.Unlock()
	if w.fn != nil {
		return w.fn(ctx, req)
	}
	return completeOutput(req), nil
}

func (w *fakeWorker) requests() []activity.WorkerRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]activity.WorkerRequest(nil), w.reqs...)
}

func (w *fakeWorker) callsFor(taskID string) int {
	n := 0
	for _, r := range w.requests() {
		if r.TaskID == taskID {
			n++
		}
	}
	return n
}

func completeOutput(req activity.WorkerRequest) *activity.TaskOutput {
	return &activity.TaskOutput{
		TaskID:       req.TaskID,
		Agent:        req.AgentRole,
		Status:       activity.OutputComplete,
		FilesChanged: []string{"main.go"},
		Summary:      "done",
	}
}

type fakeValidator struct {
	result *activity.ValidationResult
	err    error
	calls  int
}

func (v *fakeValidator) ValidateBuild(ctx context.Context, projectID string) (*activity.ValidationResult, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	if v.result != nil {
		return v.result, nil
	}
	return &activity.ValidationResult{
		Automated:     activity.GateResult{Level: activity.GateAutomated, Passed: true},
		Integration:   activity.GateResult{Level: activity.GateIntegration, Passed: true},
		Business:      activity.GateResult{Level: activity.GateBusiness, Passed: true},
		OverallPassed: true,
	}, nil
}

type fakeDeployer struct {
	mu   sync.Mutex
	reqs []activity.DeployRequest
	fail map[activity.Environment]error
}

func (d *fakeDeployer) Deploy(ctx context.Context, req activity.DeployRequest) (*activity.DeploymentResult, error) {
	d.mu.Lock()
	d.reqs = append(d.reqs, req)
	d.mu.Unlock()
	if err := d.fail[req.Environment]; err != nil {
		return nil, err
	}
	return &activity.DeploymentResult{
		Environment: req.Environment,
		Version:     req.Version,
		Status:      activity.DeploySuccess,
		URL:         "https://" + string(req.Environment) + ".example.com",
		DeployedAt:  time.Now(),
	}, nil
}

func (d *fakeDeployer) environments() []activity.Environment {
	d.mu.Lock()
	defer d.mu.Unlock()
	var envs []activity.Environment
	for _, r := range d.reqs {
		envs = append(envs, r.Environment)
	}
	return envs
}

type memCheckpoints struct {
	mu      sync.Mutex
	saved   []activity.Checkpoint
	results map[string]string
	err     error
}

func (m *memCheckpoints) Save(ctx context.Context, cp activity.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, cp)
	return nil
}

func (m *memCheckpoints) LoadLatest(ctx context.Context, projectID string) (*activity.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].ProjectID == projectID {
			cp := m.saved[i]
			return &cp, nil
		}
	}
	return nil, errors.New("no checkpoint")
}

func (m *memCheckpoints) SaveResult(ctx context.Context, projectID, status string, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = make(map[string]string)
	}
	m.results[projectID] = status
	return nil
}

func (m *memCheckpoints) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, projectID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) has(prefix string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.messages {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

// testPlan is a three task chain: schema (architect) -> api (backend) -> ui
// (frontend).
func testPlan() *plan.ProjectPlan {
	return &plan.ProjectPlan{
		ProjectName: "shop",
		Version:     "2.1.0",
		Capabilities: []plan.Capability{{
			Name:  "Catalog",
			Phase: 1,
			Features: []plan.Feature{
				{Name: "Design schema", Description: "tables", EstimatedHours: 1},
				{Name: "Build API", Description: "endpoints", DependsOn: []string{"Design schema"}, EstimatedHours: 2},
				{Name: "Dashboard UI", Description: "pages", DependsOn: []string{"Build API"}, EstimatedHours: 3},
			},
		}},
	}
}

type harness struct {
	planner     *fakePlanner
	worker      *fakeWorker
	validator   *fakeValidator
	deployer    *fakeDeployer
	checkpoints *memCheckpoints
	notifier    *recordingNotifier
}

func newHarness() *harness {
	return &harness{
		planner:     &fakePlanner{plan: testPlan()},
		worker:      &fakeWorker{},
		validator:   &fakeValidator{},
		deployer:    &fakeDeployer{},
		checkpoints: &memCheckpoints{},
		notifier:    &recordingNotifier{},
	}
}

func (h *harness) set() activity.Set {
	return activity.Set{
		Planner:     h.planner,
		Worker:      h.worker,
		Validator:   h.validator,
		Deployer:    h.deployer,
		Checkpoints: h.checkpoints,
		Notifier:    h.notifier,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	return cfg
}

func (h *harness) orchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(h.set(), Options{
		ProjectID: "proj-test",
		Config:    cfg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func testInput() activity.ProjectInput {
	return activity.ProjectInput{Goal: "Build a shop", Stakeholder: "ops"}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func gateIs(o *Orchestrator, g Gate) func() bool {
	return func() bool {
		s := o.State()
		return s != nil && s.Gate == g
	}
}

type runOutcome struct {
	res *Result
	err error
}

func runAsync(ctx context.Context, o *Orchestrator, in activity.ProjectInput) <-chan runOutcome {
	ch := make(chan runOutcome, 1)
	go func() {
		res, err := o.Run(ctx, in)
		ch <- runOutcome{res, err}
	}()
	return ch
}

func awaitRun(t *testing.T, ch <-chan runOutcome) runOutcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(10 * time.Second):
		t.Fatal("workflow did not finish")
		return runOutcome{}
	}
}

func violationFailure() error {
	return &activity.ValidationFailure{Violations: []retry.Violation{{Field: "summary", Message: "is required"}}}
}
