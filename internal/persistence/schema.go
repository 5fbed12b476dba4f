package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		goal TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		phase TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		project_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		task_index INTEGER NOT NULL,
		epoch INTEGER NOT NULL,
		status TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL,
		seq INTEGER NOT NULL,
		PRIMARY KEY (project_id, phase, task_index, epoch),
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_project_seq ON checkpoints(project_id, seq);

	CREATE TABLE IF NOT EXISTS tasks (
		project_id TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		capability TEXT NOT NULL DEFAULT '',
		agent_role TEXT NOT NULL,
		phase INTEGER NOT NULL,
		estimated_hours REAL NOT NULL DEFAULT 0,
		acceptance_criteria TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (project_id, id),
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		project_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		PRIMARY KEY (project_id, task_id, depends_on_id),
		FOREIGN KEY (project_id, task_id) REFERENCES tasks(project_id, id) ON DELETE CASCADE,
		FOREIGN KEY (project_id, depends_on_id) REFERENCES tasks(project_id, id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_dependencies_task ON task_dependencies(project_id, task_id);

	CREATE TABLE IF NOT EXISTS results (
		project_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		result TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
