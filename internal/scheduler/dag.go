package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// DAG represents a directed acyclic graph of tasks.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	inserted   []string            // Task IDs in insertion order
	dependents map[string][]string // Maps taskID -> list of tasks that depend on it
	index      map[string]int      // Topological position, set by Validate
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// Restore rebuilds a DAG from persisted tasks. Tasks that were handed to a
// worker when the snapshot was taken go back to pending.
func Restore(tasks []*Task) (*DAG, error) {
	d := NewDAG()
	for _, t := range tasks {
		cp := t.Clone()
		if cp.Status == TaskInProgress {
			cp.Status = TaskPending
		}
		if err := d.AddTask(cp); err != nil {
			return nil, err
		}
	}
	if _, err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// AddTask adds a task to the DAG. Returns error if task ID already exists.
// A task without a status starts pending.
func (d *DAG) AddTask(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}
	if task.Status == "" {
		task.Status = TaskPending
	}

	d.tasks[task.ID] = task
	d.inserted = append(d.inserted, task.ID)
	d.index = nil

	for _, depID := range task.DependsOn {
		d.dependents[depID] = append(d.dependents[depID], task.ID)
	}

	return nil
}

// Validate checks that every dependency exists and the graph is acyclic,
// then returns the task IDs in topological order. Among tasks whose
// dependencies are satisfied, earlier-inserted tasks come first, so the same
// input always yields the same order.
func (d *DAG) Validate() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, taskID := range d.inserted {
		for _, depID := range d.tasks[taskID].DependsOn {
			if _, exists := d.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
		}
	}

	// Edge (depID, taskID) means depID must come before taskID
	var edges []toposort.Edge
	for _, taskID := range d.inserted {
		task := d.tasks[taskID]
		if len(task.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, depID := range task.DependsOn {
			edges = append(edges, toposort.Edge{depID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("DAG contains cycle: %w", err)
	}

	found := 0
	for _, id := range sorted {
		if id != nil {
			found++
		}
	}
	if found != len(d.tasks) {
		return nil, fmt.Errorf("topological sort lost %d tasks", len(d.tasks)-found)
	}

	order := d.stableOrder()
	if len(order) != len(d.tasks) {
		return nil, fmt.Errorf("DAG contains cycle among %d tasks", len(d.tasks)-len(order))
	}
	d.index = make(map[string]int, len(order))
	for i, id := range order {
		d.index[id] = i
	}
	return order, nil
}

// stableOrder repeatedly takes the earliest-inserted task whose dependencies
// are already placed. Callers hold d.mu and have verified acyclicity.
func (d *DAG) stableOrder() []string {
	placed := make(map[string]bool, len(d.inserted))
	order := make([]string, 0, len(d.inserted))
	for len(order) < len(d.inserted) {
		before := len(order)
		for _, id := range d.inserted {
			if placed[id] {
				continue
			}
			ready := true
			for _, depID := range d.tasks[id].DependsOn {
				if !placed[depID] {
					ready = false
					break
				}
			}
			if ready {
				placed[id] = true
				order = append(order, id)
				break
			}
		}
		if len(order) == before {
			break
		}
	}
	return order
}

// Order returns topologically sorted task IDs (calls Validate).
func (d *DAG) Order() ([]string, error) {
	return d.Validate()
}

// Eligible returns pending tasks whose dependencies are all completed,
// sorted by topological position.
func (d *DAG) Eligible() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	eligible := []*Task{}
	for _, id := range d.inserted {
		task := d.tasks[id]
		if task.Status != TaskPending {
			continue
		}

		ready := true
		for _, depID := range task.DependsOn {
			dep, exists := d.tasks[depID]
			if !exists || dep.Status != TaskCompleted {
				ready = false
				break
			}
		}
		if ready {
			eligible = append(eligible, task.Clone())
		}
	}

	if d.index != nil {
		sort.SliceStable(eligible, func(i, j int) bool {
			return d.index[eligible[i].ID] < d.index[eligible[j].ID]
		})
	}
	return eligible
}

// Pending reports whether any task is still pending.
func (d *DAG) Pending() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, task := range d.tasks {
		if task.Status == TaskPending {
			return true
		}
	}
	return false
}

func (d *DAG) setStatus(taskID string, status TaskStatus, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	task.Status = status
	task.Error = reason
	return nil
}

// MarkRunning sets task status to TaskInProgress.
func (d *DAG) MarkRunning(taskID string) error {
	return d.setStatus(taskID, TaskInProgress, "")
}

// MarkCompleted sets task status to TaskCompleted.
func (d *DAG) MarkCompleted(taskID string) error {
	return d.setStatus(taskID, TaskCompleted, "")
}

// MarkFailed sets task status to TaskFailed and records the reason.
func (d *DAG) MarkFailed(taskID string, reason string) error {
	return d.setStatus(taskID, TaskFailed, reason)
}

// MarkBlocked sets task status to TaskBlocked and records the reason.
func (d *DAG) MarkBlocked(taskID string, reason string) error {
	return d.setStatus(taskID, TaskBlocked, reason)
}

// BlockDependents marks every pending task that transitively depends on
// taskID as blocked and returns their IDs in topological order.
func (d *DAG) BlockDependents(taskID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	cause, exists := d.tasks[taskID]
	if !exists {
		return nil
	}

	var blocked []string
	visited := map[string]bool{taskID: true}
	queue := append([]string(nil), d.dependents[taskID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		task := d.tasks[id]
		if task == nil || task.Status != TaskPending {
			continue
		}
		task.Status = TaskBlocked
		task.Error = fmt.Sprintf("dependency %q did not complete", cause.Name)
		blocked = append(blocked, id)
		queue = append(queue, d.dependents[id]...)
	}

	if d.index != nil {
		sort.SliceStable(blocked, func(i, j int) bool {
			return d.index[blocked[i]] < d.index[blocked[j]]
		})
	}
	return blocked
}

// Get returns task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return task.Clone(), true
}

// Tasks returns all tasks in insertion order.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.inserted))
	for _, id := range d.inserted {
		tasks = append(tasks, d.tasks[id].Clone())
	}
	return tasks
}

// Len returns the number of tasks.
func (d *DAG) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tasks)
}

// String renders the graph one task per line, for debugging.
func (d *DAG) String() string {
	var b strings.Builder
	for _, t := range d.Tasks() {
		fmt.Fprintf(&b, "%s [%s] %s <- %s\n", t.ID, t.Status, t.Name, strings.Join(t.DependsOn, ","))
	}
	return b.String()
}
