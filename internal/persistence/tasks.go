package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aristath/pbvs/internal/scheduler"
)

// saveTasks upserts the task rows of a project and replaces their
// dependency edges. Tasks are written before any edge so an edge can point
// at a task later in the slice.
func saveTasks(ctx context.Context, tx *sql.Tx, projectID string, tasks []*scheduler.Task, updated string) error {
	for i, task := range tasks {
		criteria, err := json.Marshal(task.AcceptanceCriteria)
		if err != nil {
			return fmt.Errorf("failed to encode acceptance criteria of %s: %w", task.ID, err)
		}
		if task.AcceptanceCriteria == nil {
			criteria = []byte("[]")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (project_id, id, position, name, description, capability, agent_role, phase,
				estimated_hours, acceptance_criteria, status, error, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, id) DO UPDATE SET
				position = excluded.position,
				name = excluded.name,
				description = excluded.description,
				capability = excluded.capability,
				agent_role = excluded.agent_role,
				phase = excluded.phase,
				estimated_hours = excluded.estimated_hours,
				acceptance_criteria = excluded.acceptance_criteria,
				status = excluded.status,
				error = excluded.error,
				updated_at = excluded.updated_at
		`, projectID, task.ID, i, task.Name, task.Description, task.Capability, string(task.AgentRole), task.Phase,
			task.EstimatedHours, string(criteria), string(task.Status), task.Error, updated)
		if err != nil {
			return fmt.Errorf("failed to upsert task %s: %w", task.ID, err)
		}
	}

	for _, task := range tasks {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM task_dependencies WHERE project_id = ? AND task_id = ?
		`, projectID, task.ID); err != nil {
			return fmt.Errorf("failed to delete old dependencies of %s: %w", task.ID, err)
		}
		for _, depID := range task.DependsOn {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO task_dependencies (project_id, task_id, depends_on_id)
				VALUES (?, ?, ?)
			`, projectID, task.ID, depID); err != nil {
				return fmt.Errorf("failed to insert dependency %s -> %s: %w", task.ID, depID, err)
			}
		}
	}
	return nil
}

// ListTasks returns the latest task rows of a project in graph insertion
// order, with their dependencies.
func (s *SQLiteStore) ListTasks(ctx context.Context, projectID string) ([]*scheduler.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, capability, agent_role, phase, estimated_hours, acceptance_criteria, status, error
		FROM tasks
		WHERE project_id = ?
		ORDER BY position
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*scheduler.Task
	for rows.Next() {
		task := &scheduler.Task{}
		var role, status, criteria string
		err := rows.Scan(&task.ID, &task.Name, &task.Description, &task.Capability, &role, &task.Phase,
			&task.EstimatedHours, &criteria, &status, &task.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.AgentRole = scheduler.AgentRole(role)
		task.Status = scheduler.TaskStatus(status)
		if err := json.Unmarshal([]byte(criteria), &task.AcceptanceCriteria); err != nil {
			return nil, fmt.Errorf("failed to decode acceptance criteria of %s: %w", task.ID, err)
		}

		// Load dependencies for this task
		depRows, err := s.db.QueryContext(ctx, `
			SELECT depends_on_id
			FROM task_dependencies
			WHERE project_id = ? AND task_id = ?
			ORDER BY depends_on_id
		`, projectID, task.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to query dependencies for task %s: %w", task.ID, err)
		}

		task.DependsOn = []string{}
		for depRows.Next() {
			var depID string
			if err := depRows.Scan(&depID); err != nil {
				depRows.Close()
				return nil, fmt.Errorf("failed to scan dependency: %w", err)
			}
			task.DependsOn = append(task.DependsOn, depID)
		}
		depRows.Close()

		if err := depRows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating dependencies: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}
