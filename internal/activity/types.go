package activity

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ProjectInput starts a workflow.
type ProjectInput struct {
	Goal        string   `json:"goal"`
	Stakeholder string   `json:"stakeholder,omitempty"`
	Timeline    Timeline `json:"timeline,omitempty"`
	Quality     Quality  `json:"quality,omitempty"`
	PlanFile    string   `json:"plan_file,omitempty"`
}

// Timeline carries optional scheduling constraints for the plan.
type Timeline struct {
	TargetLaunchDate  string `json:"target_launch_date,omitempty"`
	EstimatedDuration string `json:"estimated_duration,omitempty"`
}

// Quality carries optional quality requirements for the plan.
type Quality struct {
	TestCoverage       float64  `json:"test_coverage,omitempty"`
	PerformanceTargets []string `json:"performance_targets,omitempty"`
	SecurityStandards  []string `json:"security_standards,omitempty"`
}

// Validate checks the input before a workflow starts.
func (in ProjectInput) Validate() error {
	if strings.TrimSpace(in.Goal) == "" {
		return errors.New("project goal is required")
	}
	if in.Quality.TestCoverage < 0 || in.Quality.TestCoverage > 100 {
		return errors.New("quality.test_coverage must be between 0 and 100")
	}
	return nil
}

// OutputStatus is the worker-reported outcome of a task.
type OutputStatus string

const (
	OutputComplete      OutputStatus = "complete"
	OutputBlocked       OutputStatus = "blocked"
	OutputFailed        OutputStatus = "failed"
	OutputNeedsApproval OutputStatus = "needs_approval"
)

// TaskOutput is the structured result a worker returns for one task.
type TaskOutput struct {
	TaskID           string        `json:"task_id"`
	Agent            string        `json:"agent"`
	Status           OutputStatus  `json:"status"`
	FilesChanged     []string      `json:"files_changed"`
	FilesCreated     []string      `json:"files_created,omitempty"`
	FilesDeleted     []string      `json:"files_deleted,omitempty"`
	Tests            *TestEvidence `json:"tests,omitempty"`
	Error            *ErrorDetail  `json:"error,omitempty"`
	RollbackRequired bool          `json:"rollback_required"`
	ApprovalNeeded   bool          `json:"approval_needed"`
	ApprovalReason   string        `json:"approval_reason,omitempty"`
	Blockers         []string      `json:"blockers,omitempty"`
	Summary          string        `json:"summary"`
	Notes            []string      `json:"notes,omitempty"`
	Learnings        []string      `json:"learnings,omitempty"`
	CompletedAt      time.Time     `json:"completed_at,omitempty"`
}

// TestEvidence reports the tests a worker added or ran.
type TestEvidence struct {
	Added    []string `json:"added,omitempty"`
	Passed   bool     `json:"passed"`
	Coverage float64  `json:"coverage,omitempty"`
}

// Severity grades an ErrorDetail.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorDetail describes why a task did not complete.
type ErrorDetail struct {
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity,omitempty"`
}

// WorkerRequest is what the orchestrator hands a worker for one attempt.
type WorkerRequest struct {
	ProjectID      string `json:"project_id"`
	TaskID         string `json:"task_id"`
	AgentRole      string `json:"agent_role"`
	Instruction    string `json:"instruction"`
	OutputSchema   string `json:"output_schema"`
	IdempotencyKey string `json:"idempotency_key"`
	Attempt        int    `json:"attempt"`
}

// GateLevel names one of the three validation levels.
type GateLevel string

const (
	GateAutomated   GateLevel = "automated"
	GateIntegration GateLevel = "integration"
	GateBusiness    GateLevel = "business"
)

// GateLevels returns the levels in report order.
func GateLevels() []GateLevel {
	return []GateLevel{GateAutomated, GateIntegration, GateBusiness}
}

// Check is one command run inside a gate.
type Check struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// GateResult is the outcome of one validation level.
type GateResult struct {
	Level  GateLevel `json:"level"`
	Passed bool      `json:"passed"`
	Checks []Check   `json:"checks,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// FailingChecks returns the names of the checks that did not pass.
func (g GateResult) FailingChecks() []string {
	var names []string
	for _, c := range g.Checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// ValidationResult holds every gate level, evaluated independently.
type ValidationResult struct {
	Automated     GateResult `json:"automated"`
	Integration   GateResult `json:"integration"`
	Business      GateResult `json:"business"`
	OverallPassed bool       `json:"overall_passed"`
	ValidatedAt   time.Time  `json:"validated_at"`
}

// Environment is a deployment target.
type Environment string

const (
	EnvStaging    Environment = "staging"
	EnvProduction Environment = "production"
)

// DeploymentStatus is the outcome of a deployment.
type DeploymentStatus string

const (
	DeploySuccess    DeploymentStatus = "success"
	DeployFailed     DeploymentStatus = "failed"
	DeployRolledBack DeploymentStatus = "rolled_back"
)

// DeployRequest asks for one environment to be deployed.
type DeployRequest struct {
	ProjectID      string      `json:"project_id"`
	Environment    Environment `json:"environment"`
	Version        string      `json:"version"`
	IdempotencyKey string      `json:"idempotency_key"`
}

// DeploymentResult records a deployment.
type DeploymentResult struct {
	Environment Environment      `json:"environment"`
	DeployedAt  time.Time        `json:"deployed_at"`
	Version     string           `json:"version"`
	Status      DeploymentStatus `json:"status"`
	URL         string           `json:"url,omitempty"`
	HealthCheck *HealthCheck     `json:"health_check,omitempty"`
	Output      string           `json:"output,omitempty"`
}

// HealthCheck records the endpoints probed after a deployment.
type HealthCheck struct {
	Passed    bool             `json:"passed"`
	Endpoints []EndpointStatus `json:"endpoints"`
}

// EndpointStatus is the HTTP status of one probed endpoint. Status is 0 when
// the request itself failed.
type EndpointStatus struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

// Checkpoint is a durable snapshot of a workflow.
type Checkpoint struct {
	ProjectID string          `json:"project_id"`
	Goal      string          `json:"goal"`
	Status    string          `json:"status"`
	Phase     string          `json:"phase"`
	TaskIndex int             `json:"task_index"`
	Epoch     int             `json:"epoch"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}
