package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/orchestrator"
	"github.com/aristath/pbvs/internal/plan"
)

type fakeWorkflow struct {
	mu      sync.Mutex
	signals []string
	result  *orchestrator.Result
}

func (f *fakeWorkflow) ProjectID() string { return "proj-1" }

func (f *fakeWorkflow) Signal(name, payload string) error {
	if name == "explode" {
		return errors.New(`unknown signal "explode"`)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, name+":"+payload)
	return nil
}

func (f *fakeWorkflow) Query(name string) (any, error) {
	switch name {
	case orchestrator.QueryProgress:
		return orchestrator.Progress{Completed: 2, Total: 5, Status: orchestrator.StatusBuilding}, nil
	case orchestrator.QueryState:
		return &orchestrator.ProjectState{ProjectID: "proj-1", Status: orchestrator.StatusBuilding, Epoch: 2}, nil
	}
	return nil, errors.New("unknown query")
}

func (f *fakeWorkflow) Result() (*orchestrator.Result, bool) {
	return f.result, f.result != nil
}

func newTestServer(t *testing.T, wf *fakeWorkflow) (*httptest.Server, *Client) {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "pbvs_test_total", Help: "test"}))

	srv := NewServer(wf, reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, NewClient(ts.URL)
}

func TestSignal(t *testing.T) {
	wf := &fakeWorkflow{}
	_, client := newTestServer(t, wf)
	ctx := context.Background()

	require.NoError(t, client.Signal(ctx, "pause", ""))
	require.NoError(t, client.Signal(ctx, "approve", "production"))
	assert.Equal(t, []string{"pause:", "approve:production"}, wf.signals)

	err := client.Signal(ctx, "explode", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "unknown signal")
}

func TestSignalWithoutBody(t *testing.T) {
	wf := &fakeWorkflow{}
	ts, _ := newTestServer(t, wf)

	resp, err := http.Post(ts.URL+"/api/signals/resume", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"resume:"}, wf.signals)
}

func TestSignalBadBody(t *testing.T) {
	ts, _ := newTestServer(t, &fakeWorkflow{})

	resp, err := http.Post(ts.URL+"/api/signals/pause", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueries(t *testing.T) {
	_, client := newTestServer(t, &fakeWorkflow{})
	ctx := context.Background()

	p, err := client.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Completed)
	assert.Equal(t, 5, p.Total)

	s, err := client.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "proj-1", s.ProjectID)
	assert.Equal(t, 2, s.Epoch)

	var out any
	err = client.Query(ctx, "getEverything", &out)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestResult(t *testing.T) {
	wf := &fakeWorkflow{}
	_, client := newTestServer(t, wf)
	ctx := context.Background()

	_, err := client.Result(ctx)
	require.ErrorIs(t, err, ErrNotFinished)

	wf.result = &orchestrator.Result{ProjectID: "proj-1", Status: orchestrator.ResultCompleted, CompletedTasks: 5}
	res, err := client.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ResultCompleted, res.Status)
	assert.Equal(t, 5, res.CompletedTasks)
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, &fakeWorkflow{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pbvs_test_total")
}

func TestUnknownRoute(t *testing.T) {
	ts, _ := newTestServer(t, &fakeWorkflow{})

	resp, err := http.Get(ts.URL + "/api/nothing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewClientAddsScheme(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8089", NewClient("127.0.0.1:8089").baseURL)
	assert.Equal(t, "https://ctl.example.com", NewClient("https://ctl.example.com/").baseURL)
}

func TestWithOrchestrator(t *testing.T) {
	// The real orchestrator satisfies Workflow and rejects bad signals
	o, err := orchestrator.New(orchestratorActivities(), orchestrator.Options{ProjectID: "proj-live"})
	require.NoError(t, err)

	srv := NewServer(o, o.Metrics().Registry, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	client := NewClient(ts.URL)
	ctx := context.Background()

	require.NoError(t, client.Signal(ctx, orchestrator.SignalPause, ""))
	require.Error(t, client.Signal(ctx, orchestrator.SignalApprove, "task-1"))

	s, err := client.State(ctx)
	require.NoError(t, err)
	assert.Nil(t, s, "no state before the workflow starts")

	_, err = client.Result(ctx)
	assert.ErrorIs(t, err, ErrNotFinished)
}

type nopActivities struct{}

func (nopActivities) CreatePlan(context.Context, activity.ProjectInput) (*plan.ProjectPlan, error) {
	return nil, errors.New("not used")
}

func (nopActivities) Execute(context.Context, activity.WorkerRequest) (*activity.TaskOutput, error) {
	return nil, errors.New("not used")
}

func (nopActivities) ValidateBuild(context.Context, string) (*activity.ValidationResult, error) {
	return nil, errors.New("not used")
}

func (nopActivities) Deploy(context.Context, activity.DeployRequest) (*activity.DeploymentResult, error) {
	return nil, errors.New("not used")
}

func orchestratorActivities() activity.Set {
	var a nopActivities
	return activity.Set{Planner: a, Worker: a, Validator: a, Deployer: a}
}
