package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/plan"
	"github.com/aristath/pbvs/internal/scheduler"
)

// Status is the overall state of a workflow.
type Status string

const (
	StatusPlanning   Status = "planning"
	StatusParsing    Status = "parsing"
	StatusBuilding   Status = "building"
	StatusValidating Status = "validating"
	StatusScaling    Status = "scaling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Phase is the coarse stage a workflow is in.
type Phase string

const (
	PhasePlan     Phase = "plan"
	PhaseBuild    Phase = "build"
	PhaseValidate Phase = "validate"
	PhaseScale    Phase = "scale"
)

// Phases returns every phase in execution order.
func Phases() []Phase {
	return []Phase{PhasePlan, PhaseBuild, PhaseValidate, PhaseScale}
}

// Gate names a point where the workflow waits for a human.
type Gate string

const (
	GateNone               Gate = ""
	GateValidationReview   Gate = "validation_review"
	GateProductionApproval Gate = "production_approval"
)

// BuildResult records one executed task.
type BuildResult struct {
	TaskID      string               `json:"task_id"`
	Output      *activity.TaskOutput `json:"output"`
	Attempts    int                  `json:"attempts"`
	CompletedAt time.Time            `json:"completed_at"`
	Duration    time.Duration        `json:"duration"`
}

// ProjectState is the durable state of one workflow run. Only the
// orchestrator's control loop mutates it.
type ProjectState struct {
	ProjectID string                `json:"project_id"`
	Status    Status                `json:"status"`
	Phase     Phase                 `json:"phase"`
	Input     activity.ProjectInput `json:"input"`
	StartedAt time.Time             `json:"started_at"`
	UpdatedAt time.Time             `json:"updated_at"`

	Plan      *plan.ProjectPlan `json:"plan,omitempty"`
	Tasks     []*scheduler.Task `json:"tasks,omitempty"`
	TaskOrder []string          `json:"task_order,omitempty"`

	// NextTaskIndex counts tasks that reached a final status.
	NextTaskIndex int           `json:"next_task_index"`
	BuildResults  []BuildResult `json:"build_results,omitempty"`

	Validation        *activity.ValidationResult `json:"validation,omitempty"`
	StagingDeployment *activity.DeploymentResult `json:"staging_deployment,omitempty"`
	Deployment        *activity.DeploymentResult `json:"deployment,omitempty"`

	CompletedTasks      []string `json:"completed_tasks"`
	FailedTasks         []string `json:"failed_tasks"`
	BlockedTasks        []string `json:"blocked_tasks"`
	TotalTasks          int      `json:"total_tasks"`
	CompletedTasksCount int      `json:"completed_tasks_count"`
	EstimatedHours      float64  `json:"estimated_hours"`
	ActualHours         float64  `json:"actual_hours"`

	Epoch      int        `json:"epoch"`
	Gate       Gate       `json:"gate,omitempty"`
	Paused     bool       `json:"paused"`
	Cancelled  bool       `json:"cancelled"`
	Error      string     `json:"error,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// clone returns a deep copy through the JSON form, which is also the
// checkpoint form.
func (s *ProjectState) clone() *ProjectState {
	data, err := json.Marshal(s)
	if err != nil {
		panic("orchestrator: state is not serializable: " + err.Error())
	}
	var cp ProjectState
	if err := json.Unmarshal(data, &cp); err != nil {
		panic("orchestrator: state does not round-trip: " + err.Error())
	}
	return &cp
}

// Progress is the getProgress query result.
type Progress struct {
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	Failed     int    `json:"failed"`
	Blocked    int    `json:"blocked"`
	InProgress int    `json:"in_progress"`
	Status     Status `json:"status"`
	Phase      Phase  `json:"phase"`
	Gate       Gate   `json:"gate,omitempty"`
	Paused     bool   `json:"paused"`
}

func (s *ProjectState) progress() Progress {
	p := Progress{
		Completed: s.CompletedTasksCount,
		Total:     s.TotalTasks,
		Failed:    len(s.FailedTasks),
		Blocked:   len(s.BlockedTasks),
		Status:    s.Status,
		Phase:     s.Phase,
		Gate:      s.Gate,
		Paused:    s.Paused,
	}
	for _, t := range s.Tasks {
		if t.Status == scheduler.TaskInProgress {
			p.InProgress++
		}
	}
	return p
}

// ResultStatus summarizes how a finished workflow went.
type ResultStatus string

const (
	ResultCompleted          ResultStatus = "completed"
	ResultPartiallyCompleted ResultStatus = "partially_completed"
	ResultFailed             ResultStatus = "failed"
)

// TaskFailure is the report entry of a task that did not complete.
type TaskFailure struct {
	TaskID           string               `json:"task_id"`
	Name             string               `json:"name"`
	Status           scheduler.TaskStatus `json:"status"`
	Error            string               `json:"error,omitempty"`
	Kind             string               `json:"kind,omitempty"`
	RollbackRequired bool                 `json:"rollback_required"`
	Attempts         int                  `json:"attempts,omitempty"`
}

// Result is the final report of a workflow.
type Result struct {
	ProjectID      string                     `json:"project_id"`
	Status         ResultStatus               `json:"status"`
	TotalTasks     int                        `json:"total_tasks"`
	CompletedTasks int                        `json:"completed_tasks"`
	FailedTasks    int                        `json:"failed_tasks"`
	BlockedTasks   int                        `json:"blocked_tasks"`
	Failures       []TaskFailure              `json:"failures,omitempty"`
	RollbackTasks  []string                   `json:"rollback_tasks,omitempty"` // completed, but the worker asked for a rollback
	EstimatedHours float64                    `json:"estimated_hours"`
	ActualHours    float64                    `json:"actual_hours"`
	StartedAt      time.Time                  `json:"started_at"`
	FinishedAt     time.Time                  `json:"finished_at"`
	Duration       time.Duration              `json:"duration"`
	Validation     *activity.ValidationResult `json:"validation,omitempty"`
	Deployment     *activity.DeploymentResult `json:"deployment,omitempty"`
	Cancelled      bool                       `json:"cancelled,omitempty"`
	Error          string                     `json:"error,omitempty"`
}

// Result derives the report from a finished state. now stands in for the
// finish time when the state has none.
func (s *ProjectState) Result(now time.Time) *Result {
	finished := now
	if s.FinishedAt != nil {
		finished = *s.FinishedAt
	}

	r := &Result{
		ProjectID:      s.ProjectID,
		TotalTasks:     s.TotalTasks,
		CompletedTasks: s.CompletedTasksCount,
		FailedTasks:    len(s.FailedTasks),
		BlockedTasks:   len(s.BlockedTasks),
		EstimatedHours: s.EstimatedHours,
		ActualHours:    s.ActualHours,
		StartedAt:      s.StartedAt,
		FinishedAt:     finished,
		Duration:       finished.Sub(s.StartedAt),
		Validation:     s.Validation,
		Deployment:     s.Deployment,
		Cancelled:      s.Cancelled,
		Error:          s.Error,
	}

	switch {
	case s.Status == StatusCompleted && r.FailedTasks == 0 && r.BlockedTasks == 0:
		r.Status = ResultCompleted
	case s.Status == StatusCompleted:
		r.Status = ResultPartiallyCompleted
	case s.Cancelled && r.CompletedTasks > 0:
		r.Status = ResultPartiallyCompleted
	default:
		r.Status = ResultFailed
	}

	results := make(map[string]BuildResult, len(s.BuildResults))
	for _, br := range s.BuildResults {
		results[br.TaskID] = br
	}
	for _, t := range s.Tasks {
		if t.Status == scheduler.TaskCompleted {
			if br, ok := results[t.ID]; ok && br.Output != nil && br.Output.RollbackRequired {
				r.RollbackTasks = append(r.RollbackTasks, t.Name)
			}
			continue
		}
		if t.Status != scheduler.TaskFailed && t.Status != scheduler.TaskBlocked {
			continue
		}
		f := TaskFailure{TaskID: t.ID, Name: t.Name, Status: t.Status, Error: t.Error}
		if br, ok := results[t.ID]; ok {
			f.Attempts = br.Attempts
			if out := br.Output; out != nil {
				f.RollbackRequired = out.RollbackRequired
				if out.Error != nil {
					f.Kind = out.Error.Kind
				}
			}
		}
		r.Failures = append(r.Failures, f)
	}
	return r
}
