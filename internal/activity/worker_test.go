package activity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pbvs/internal/backend"
	"github.com/aristath/pbvs/internal/retry"
	"github.com/aristath/pbvs/internal/scheduler"
)

type fakeBackend struct {
	reply  string
	err    error
	sent   []string
	closed bool
}

func (f *fakeBackend) Send(_ context.Context, msg backend.Message) (backend.Response, error) {
	f.sent = append(f.sent, msg.Content)
	if f.err != nil {
		return backend.Response{Error: f.err.Error()}, f.err
	}
	return backend.Response{Content: f.reply, SessionID: "s-1"}, nil
}

func (f *fakeBackend) Close() error      { f.closed = true; return nil }
func (f *fakeBackend) SessionID() string { return "s-1" }

func factoryFor(b *fakeBackend, roles ...scheduler.AgentRole) BackendFactory {
	return func(role scheduler.AgentRole) (backend.Backend, error) {
		for _, r := range roles {
			if r == role {
				return b, nil
			}
		}
		return nil, errors.New("role not configured")
	}
}

func TestBackendWorker_Execute(t *testing.T) {
	fb := &fakeBackend{reply: validOutput}
	w := NewBackendWorker(factoryFor(fb, scheduler.RoleBackend), nil)

	out, err := w.Execute(context.Background(), WorkerRequest{
		TaskID:      "t-1",
		AgentRole:   "backend",
		Instruction: "build the users endpoint",
	})
	require.NoError(t, err)
	assert.Equal(t, OutputComplete, out.Status)
	assert.Equal(t, []string{"build the users endpoint"}, fb.sent)
	assert.True(t, fb.closed)
}

func TestBackendWorker_UnknownRole(t *testing.T) {
	w := NewBackendWorker(factoryFor(&fakeBackend{}), nil)

	_, err := w.Execute(context.Background(), WorkerRequest{TaskID: "t", AgentRole: "wizard"})

	var fatal *FatalFailure
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, retry.CategoryUnknownRole, retry.Classify(err))
	assert.False(t, retry.DefaultPolicy().ShouldRetry(1, err))
}

func TestBackendWorker_RoleWithoutBackend(t *testing.T) {
	w := NewBackendWorker(factoryFor(&fakeBackend{}, scheduler.RoleBackend), nil)

	_, err := w.Execute(context.Background(), WorkerRequest{TaskID: "t", AgentRole: "frontend"})
	assert.Equal(t, retry.CategoryUnknownRole, retry.Classify(err))
}

func TestBackendWorker_TransportErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limited", errors.New("429 too many requests"), true},
		{"overloaded", errors.New("service unavailable"), true},
		{"auth", errors.New("401 unauthorized"), false},
		{"crash", errors.New("exit status 2"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewBackendWorker(factoryFor(&fakeBackend{err: tt.err}, scheduler.RoleBackend), nil)
			_, err := w.Execute(context.Background(), WorkerRequest{TaskID: "t", AgentRole: "backend"})

			var transient *TransientFailure
			assert.Equal(t, tt.transient, errors.As(err, &transient))
			assert.Equal(t, tt.transient, retry.DefaultPolicy().ShouldRetry(1, err))
		})
	}
}

func TestBackendWorker_InvalidOutputIsValidationFailure(t *testing.T) {
	fb := &fakeBackend{reply: `{"task_id": "t-1"}`}
	w := NewBackendWorker(factoryFor(fb, scheduler.RoleBackend), nil)

	_, err := w.Execute(context.Background(), WorkerRequest{TaskID: "t-1", AgentRole: "backend"})

	var vf *ValidationFailure
	require.ErrorAs(t, err, &vf)
	assert.NotEmpty(t, vf.Violations)
	assert.True(t, retry.DefaultPolicy().ShouldRetry(1, err))
}

func TestBackendPlanner_CreatePlan(t *testing.T) {
	fb := &fakeBackend{reply: "Here you go:\n" + `{
	  "project_name": "shop",
	  "capabilities": [{"name": "catalog", "phase": 1, "features": [
	    {"name": "Product API", "description": "REST api", "estimated_hours": 4},
	    {"name": "Product UI", "depends_on": ["Product API"], "estimated_hours": 6}
	  ]}]
	}`}
	p := NewBackendPlanner(factoryFor(fb, scheduler.RoleSupervisor), nil)

	pl, err := p.CreatePlan(context.Background(), ProjectInput{
		Goal:        "an online shop",
		Stakeholder: "ops",
		Timeline:    Timeline{TargetLaunchDate: "2026-12-01"},
		Quality:     Quality{TestCoverage: 80},
	})
	require.NoError(t, err)

	assert.Equal(t, "shop", pl.ProjectName)
	assert.Equal(t, "ops", pl.Stakeholder)
	assert.Equal(t, "1.0.0", pl.Version)
	assert.False(t, pl.CreatedAt.IsZero())
	assert.InDelta(t, 10.0, pl.TotalHours(), 0.001)

	require.Len(t, fb.sent, 1)
	assert.Contains(t, fb.sent[0], "Target launch date: 2026-12-01")
	assert.Contains(t, fb.sent[0], "Required test coverage: 80%")
}

func TestBackendPlanner_InvalidPlan(t *testing.T) {
	fb := &fakeBackend{reply: `{"project_name": "", "capabilities": []}`}
	p := NewBackendPlanner(factoryFor(fb, scheduler.RoleSupervisor), nil)

	_, err := p.CreatePlan(context.Background(), ProjectInput{Goal: "x"})

	var pe *PlanningError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "plan failed validation")
}

func TestFilePlanner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(`
project_name: shop
version: "2.0.0"
capabilities:
  - name: catalog
    phase: 1
    features:
      - name: Product API
        estimated_hours: 3
`)), 0o644))

	pl, err := FilePlanner{}.CreatePlan(context.Background(), ProjectInput{Goal: "shop", PlanFile: path, Stakeholder: "ops"})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", pl.Version)
	assert.Equal(t, "ops", pl.Stakeholder)

	_, err = FilePlanner{Path: filepath.Join(dir, "missing.yaml")}.CreatePlan(context.Background(), ProjectInput{Goal: "shop"})
	var pe *PlanningError
	assert.ErrorAs(t, err, &pe)

	_, err = FilePlanner{}.CreatePlan(context.Background(), ProjectInput{Goal: "shop"})
	assert.ErrorAs(t, err, &pe)
}

func TestBuildInstruction(t *testing.T) {
	task := &scheduler.Task{
		ID:                 "t-9",
		Name:               "Checkout API",
		Description:        "Accept card payments",
		Capability:         "payments",
		AgentRole:          scheduler.RoleBackend,
		Phase:              2,
		AcceptanceCriteria: []string{"returns 201 on success"},
	}

	got := BuildInstruction(task)

	assert.Contains(t, got, "You are the backend agent.")
	assert.Contains(t, got, "Capability: payments (phase 2)")
	assert.Contains(t, got, "- returns 201 on success")
	assert.Contains(t, got, TaskOutputSchema)
	assert.Contains(t, got, `Use "task_id": "t-9"`)
}

func TestProjectInputValidate(t *testing.T) {
	assert.Error(t, ProjectInput{}.Validate())
	assert.Error(t, ProjectInput{Goal: "x", Quality: Quality{TestCoverage: 120}}.Validate())
	assert.NoError(t, ProjectInput{Goal: "x"}.Validate())
}

func TestIdempotencyKey(t *testing.T) {
	assert.Equal(t, "t-1:0", IdempotencyKey("t-1", 0))
	assert.NotEqual(t, IdempotencyKey("t-1", 0), IdempotencyKey("t-1", 1))
}
