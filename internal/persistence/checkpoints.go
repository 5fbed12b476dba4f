package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/scheduler"
)

// Save stores a checkpoint, the project row and the task rows it carries in
// one transaction. Saving the same (project, phase, task index, epoch) twice
// overwrites the earlier snapshot.
func (s *SQLiteStore) Save(ctx context.Context, cp activity.Checkpoint) error {
	if cp.ProjectID == "" {
		return errors.New("checkpoint has no project id")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	created := formatTime(cp.CreatedAt)

	var tasks []*scheduler.Task
	if raw := gjson.GetBytes(cp.State, "tasks"); raw.IsArray() {
		if err := json.Unmarshal([]byte(raw.Raw), &tasks); err != nil {
			return fmt.Errorf("failed to decode checkpoint tasks: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (id, goal, status, phase, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			goal = CASE WHEN excluded.goal = '' THEN projects.goal ELSE excluded.goal END,
			status = excluded.status,
			phase = excluded.phase,
			updated_at = excluded.updated_at
	`, cp.ProjectID, cp.Goal, cp.Status, cp.Phase, created, created)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM checkpoints`).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate checkpoint sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (project_id, phase, task_index, epoch, status, state, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, phase, task_index, epoch) DO UPDATE SET
			status = excluded.status,
			state = excluded.state,
			created_at = excluded.created_at,
			seq = excluded.seq
	`, cp.ProjectID, cp.Phase, cp.TaskIndex, cp.Epoch, cp.Status, string(cp.State), created, seq)
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}

	if tasks != nil {
		if err := saveTasks(ctx, tx, cp.ProjectID, tasks, created); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadLatest returns the most recently saved checkpoint of a project.
func (s *SQLiteStore) LoadLatest(ctx context.Context, projectID string) (*activity.Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		cp      activity.Checkpoint
		state   string
		created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT c.project_id, p.goal, c.status, c.phase, c.task_index, c.epoch, c.state, c.created_at
		FROM checkpoints c
		JOIN projects p ON p.id = c.project_id
		WHERE c.project_id = ?
		ORDER BY c.seq DESC
		LIMIT 1
	`, projectID).Scan(&cp.ProjectID, &cp.Goal, &cp.Status, &cp.Phase, &cp.TaskIndex, &cp.Epoch, &state, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no checkpoint for project %q: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}

	cp.State = json.RawMessage(state)
	cp.CreatedAt = parseTime(created)
	return &cp, nil
}

// ListProjects returns every known project, most recently updated first.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, goal, status, phase, created_at, updated_at
		FROM projects
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []ProjectSummary
	for rows.Next() {
		var p ProjectSummary
		var created, updated string
		if err := rows.Scan(&p.ID, &p.Goal, &p.Status, &p.Phase, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.CreatedAt = parseTime(created)
		p.UpdatedAt = parseTime(updated)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// SaveResult stores the final report of a project, replacing any earlier one.
func (s *SQLiteStore) SaveResult(ctx context.Context, projectID, status string, result []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (project_id, status, result, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			created_at = excluded.created_at
	`, projectID, status, string(result), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// GetResult returns the stored report of a finished project.
func (s *SQLiteStore) GetResult(ctx context.Context, projectID string) (string, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var status, result string
	err := s.db.QueryRowContext(ctx, `
		SELECT status, result FROM results WHERE project_id = ?
	`, projectID).Scan(&status, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("no result for project %q: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to query result: %w", err)
	}
	return status, []byte(result), nil
}
