// Package tasks persists the task collection. Notes live in a jsonb column
// and are always written as a whole array, matching the update contract.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workdeck/schedule-engine/internal/contracts"
)

var ErrTaskNotFound = errors.New("task not found")

const createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS tasks (
  id text PRIMARY KEY,
  title text NOT NULL,
  due_date text NOT NULL DEFAULT '',
  priority text NOT NULL DEFAULT 'Medium',
  status text NOT NULL DEFAULT 'Todo',
  assignee_id text NOT NULL DEFAULT '',
  project_id text NOT NULL DEFAULT '',
  category text NOT NULL DEFAULT '',
  description text NOT NULL DEFAULT '',
  notes jsonb NOT NULL DEFAULT '[]',
  archived boolean NOT NULL DEFAULT false,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const createTasksAssigneeIndexSQL = `
CREATE INDEX IF NOT EXISTS tasks_assignee
ON tasks (assignee_id) WHERE NOT archived`

const taskColumns = `id, title, due_date, priority, status, assignee_id,
       project_id, category, description, notes, archived, created_at, updated_at`

const insertTaskSQL = `
INSERT INTO tasks (
  id, title, due_date, priority, status, assignee_id,
  project_id, category, description, notes, archived, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

type Repository struct {
	Pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createTasksTableSQL); err != nil {
		return err
	}
	_, err := r.Pool.Exec(ctx, createTasksAssigneeIndexSQL)
	return err
}

func scanTask(row pgx.Row) (contracts.Task, error) {
	var t contracts.Task
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.DueDate,
		&t.Priority,
		&t.Status,
		&t.AssigneeID,
		&t.ProjectID,
		&t.Category,
		&t.Description,
		&t.Notes,
		&t.Archived,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

// ListTasks returns the user's non-archived tasks. An empty userID lists the
// whole collection, which the schedule correlator uses for team views.
func (r *Repository) ListTasks(ctx context.Context, userID string) ([]contracts.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE NOT archived ORDER BY created_at DESC, id`
	args := []any{}
	if userID != "" {
		query = `SELECT ` + taskColumns + ` FROM tasks WHERE NOT archived AND assignee_id = $1 ORDER BY created_at DESC, id`
		args = append(args, userID)
	}

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []contracts.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *Repository) GetTask(ctx context.Context, taskID string) (contracts.Task, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return contracts.Task{}, ErrTaskNotFound
		}
		return contracts.Task{}, err
	}
	return t, nil
}

func (r *Repository) CreateTask(ctx context.Context, t contracts.Task) error {
	_, err := r.Pool.Exec(ctx, insertTaskSQL,
		t.ID, t.Title, t.DueDate, t.Priority, t.Status, t.AssigneeID,
		t.ProjectID, t.Category, t.Description, t.Notes, t.Archived,
		t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// UpdateTask applies the non-nil fields and returns the resulting row. A set
// Notes field replaces the stored array wholesale.
func (r *Repository) UpdateTask(ctx context.Context, taskID string, fields contracts.TaskFields) (contracts.Task, error) {
	sets := make([]string, 0, 10)
	args := []any{taskID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if fields.Title != nil {
		add("title", *fields.Title)
	}
	if fields.DueDate != nil {
		add("due_date", *fields.DueDate)
	}
	if fields.Priority != nil {
		add("priority", *fields.Priority)
	}
	if fields.Status != nil {
		add("status", *fields.Status)
	}
	if fields.AssigneeID != nil {
		add("assignee_id", *fields.AssigneeID)
	}
	if fields.ProjectID != nil {
		add("project_id", *fields.ProjectID)
	}
	if fields.Category != nil {
		add("category", *fields.Category)
	}
	if fields.Description != nil {
		add("description", *fields.Description)
	}
	if fields.Notes != nil {
		add("notes", *fields.Notes)
	}
	if fields.UpdatedAt != nil {
		add("updated_at", *fields.UpdatedAt)
	} else if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
	}
	if len(sets) == 0 {
		return r.GetTask(ctx, taskID)
	}

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + taskColumns
	t, err := scanTask(r.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return contracts.Task{}, ErrTaskNotFound
		}
		return contracts.Task{}, err
	}
	return t, nil
}

// ArchiveTask soft-deletes: the task leaves lists and schedule views but its
// notes history stays queryable by ID.
func (r *Repository) ArchiveTask(ctx context.Context, taskID string) error {
	tag, err := r.Pool.Exec(ctx,
		`UPDATE tasks SET archived = true, updated_at = now() WHERE id = $1`, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}
