// Package directory serves the user and project lookups behind mention
// resolution, assignee selection and the admin gate.
package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workdeck/schedule-engine/internal/contracts"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProjectNotFound = errors.New("project not found")
)

const createUsersTableSQL = `
CREATE TABLE IF NOT EXISTS users (
  id text PRIMARY KEY,
  name text NOT NULL,
  email text NOT NULL DEFAULT '',
  role text NOT NULL DEFAULT 'member'
)`

const createProjectsTableSQL = `
CREATE TABLE IF NOT EXISTS projects (
  id text PRIMARY KEY,
  name text NOT NULL,
  owner_id text NOT NULL DEFAULT ''
)`

type Repository struct {
	Pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createUsersTableSQL); err != nil {
		return err
	}
	_, err := r.Pool.Exec(ctx, createProjectsTableSQL)
	return err
}

// ListUsers returns the whole directory, ordered by name for suggestion
// popups.
func (r *Repository) ListUsers(ctx context.Context) ([]contracts.User, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id, name, email, role FROM users ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []contracts.User
	for rows.Next() {
		var u contracts.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Repository) GetUser(ctx context.Context, userID string) (contracts.User, error) {
	var u contracts.User
	err := r.Pool.QueryRow(ctx,
		`SELECT id, name, email, role FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return contracts.User{}, ErrUserNotFound
		}
		return contracts.User{}, err
	}
	return u, nil
}

func (r *Repository) UpsertUser(ctx context.Context, u contracts.User) error {
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO users (id, name, email, role)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role`,
		u.ID, u.Name, u.Email, u.Role,
	)
	return err
}

// ListProjects returns the projects visible to the user: their own plus the
// shared ones carrying no owner. An empty userID lists everything.
func (r *Repository) ListProjects(ctx context.Context, userID string) ([]contracts.Project, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id, name, owner_id FROM projects
		 WHERE $1 = '' OR owner_id = $1 OR owner_id = ''
		 ORDER BY name, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []contracts.Project
	for rows.Next() {
		var p contracts.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerID); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *Repository) GetProject(ctx context.Context, projectID string) (contracts.Project, error) {
	var p contracts.Project
	err := r.Pool.QueryRow(ctx,
		`SELECT id, name, owner_id FROM projects WHERE id = $1`, projectID,
	).Scan(&p.ID, &p.Name, &p.OwnerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return contracts.Project{}, ErrProjectNotFound
		}
		return contracts.Project{}, err
	}
	return p, nil
}
