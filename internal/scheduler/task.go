package scheduler

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"     // Waiting for dependencies or a free slot
	TaskInProgress TaskStatus = "in_progress" // Handed to a worker
	TaskCompleted  TaskStatus = "completed"   // Worker reported complete
	TaskBlocked    TaskStatus = "blocked"     // Awaiting external resolution, never auto-retried
	TaskFailed     TaskStatus = "failed"      // Retries exhausted or fatal failure
)

// Finished reports whether the build loop is done with a task in this status.
func (s TaskStatus) Finished() bool {
	return s == TaskCompleted || s == TaskBlocked || s == TaskFailed
}

// Task represents a unit of work in the DAG, assigned to exactly one role.
type Task struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Capability         string     `json:"capability"`
	AgentRole          AgentRole  `json:"agent_role"`
	Phase              int        `json:"phase"`
	DependsOn          []string   `json:"depends_on,omitempty"` // Task IDs this task depends on
	EstimatedHours     float64    `json:"estimated_hours"`
	AcceptanceCriteria []string   `json:"acceptance_criteria,omitempty"`
	Status             TaskStatus `json:"status"`
	Error              string     `json:"error,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.AcceptanceCriteria != nil {
		cp.AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
	}
	return &cp
}
