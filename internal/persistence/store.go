// Package persistence stores workflow checkpoints, task rows and final
// results in SQLite.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/aristath/pbvs/internal/activity"
	"github.com/aristath/pbvs/internal/scheduler"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = errors.New("not found")

// timeLayout is fixed width so timestamp columns sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// opTimeout bounds every store operation.
const opTimeout = 5 * time.Second

// ProjectSummary is one row of the projects table.
type ProjectSummary struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	Status    string    `json:"status"`
	Phase     string    `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the checkpoint store used by the orchestrator and the CLI.
type Store interface {
	activity.CheckpointStore

	ListProjects(ctx context.Context) ([]ProjectSummary, error)
	ListTasks(ctx context.Context, projectID string) ([]*scheduler.Task, error)

	SaveResult(ctx context.Context, projectID, status string, result []byte) error
	GetResult(ctx context.Context, projectID string) (status string, result []byte, err error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the store at dbPath, creating parent
// directories. WAL mode, busy timeout and foreign keys are set per
// connection through the DSN.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for tests. Each call gets its own
// database, shared by the connections of that store only.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:pbvs-%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", ulid.Make())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Two connections: one for a query, one for the per-row dependency lookups
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
