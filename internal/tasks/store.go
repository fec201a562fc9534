// Package tasks implements the Task repository the Scheduler reads from
// and writes back to: due-task lookup, run bookkeeping, and disabling a
// task once its schedule has no future occurrence.
package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/models"
)

// Store is the contract the Scheduler depends on.
type Store interface {
	Create(ctx context.Context, title, schedule string, payload map[string]any, nextRun *int64) (models.Task, error)
	List(ctx context.Context) ([]models.Task, error)
	Get(ctx context.Context, id string) (models.Task, error)
	DueTasks(ctx context.Context, now int64) ([]models.Task, error)
	UpdateRun(ctx context.Context, id string, lastRun int64, nextRun *int64) error
	Disable(ctx context.Context, id string) error
}

// ErrNotFound is returned by Get when no task with the given id exists.
var ErrNotFound = fmt.Errorf("tasks: not found")

// MemoryStore is an in-memory Store, for tests.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]models.Task
}

// NewMemoryStore constructs an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]models.Task)}
}

func (s *MemoryStore) Create(ctx context.Context, title, schedule string, payload map[string]any, nextRun *int64) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := models.Task{
		ID:       "task_" + uuid.NewString(),
		Title:    title,
		Schedule: schedule,
		Payload:  payload,
		Enabled:  true,
		NextRun:  nextRun,
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) DueTasks(ctx context.Context, now int64) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []models.Task
	for _, t := range s.tasks {
		if t.Enabled && t.NextRun != nil && *t.NextRun <= now {
			due = append(due, t)
		}
	}
	return due, nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, id string, lastRun int64, nextRun *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.LastRun = &lastRun
	t.NextRun = nextRun
	t.RunCount++
	s.tasks[id] = t
	return nil
}

func (s *MemoryStore) Disable(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Enabled = false
	s.tasks[id] = t
	return nil
}

// SQLiteStore is the durable Store, backed by a single-file embedded
// database (modernc.org/sqlite, pure Go, no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating the schema if necessary) a task store
// over db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			schedule TEXT NOT NULL,
			payload_json TEXT,
			enabled INTEGER NOT NULL DEFAULT 1,
			last_run INTEGER,
			next_run INTEGER,
			run_count INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create tasks table: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Create(ctx context.Context, title, schedule string, payload map[string]any, nextRun *int64) (models.Task, error) {
	id := "task_" + uuid.NewString()
	var payloadJSON sql.NullString
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return models.Task{}, fmt.Errorf("encode payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, schedule, payload_json, enabled, last_run, next_run)
		 VALUES (?, ?, ?, ?, 1, NULL, ?)`,
		id, title, schedule, payloadJSON, nextRun,
	)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return models.Task{ID: id, Title: title, Schedule: schedule, Payload: payload, Enabled: true, NextRun: nextRun}, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, schedule, payload_json, enabled, last_run, next_run, run_count FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, schedule, payload_json, enabled, last_run, next_run, run_count FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return models.Task{}, ErrNotFound
	}
	return t, err
}

func (s *SQLiteStore) DueTasks(ctx context.Context, now int64) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, schedule, payload_json, enabled, last_run, next_run, run_count
		 FROM tasks WHERE enabled = 1 AND next_run IS NOT NULL AND next_run <= ?`, now)
	if err != nil {
		return nil, fmt.Errorf("query due tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, id string, lastRun int64, nextRun *int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET last_run = ?, next_run = ?, run_count = run_count + 1 WHERE id = ?`, lastRun, nextRun, id)
	if err != nil {
		return fmt.Errorf("update task run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Disable(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET enabled = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("disable task: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var t models.Task
	var payloadJSON sql.NullString
	var enabled int
	var lastRun, nextRun sql.NullInt64
	if err := row.Scan(&t.ID, &t.Title, &t.Schedule, &payloadJSON, &enabled, &lastRun, &nextRun, &t.RunCount); err != nil {
		return models.Task{}, err
	}
	t.Enabled = enabled != 0
	if payloadJSON.Valid {
		if err := json.Unmarshal([]byte(payloadJSON.String), &t.Payload); err != nil {
			return models.Task{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	if lastRun.Valid {
		v := lastRun.Int64
		t.LastRun = &v
	}
	if nextRun.Valid {
		v := nextRun.Int64
		t.NextRun = &v
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]models.Task, error) {
	var out []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
