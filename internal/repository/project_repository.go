package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jsalverda/disentangle/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type projectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository wires a repository backed by pgxpool.
func NewProjectRepository(pool *pgxpool.Pool) ProjectRepository {
	return &projectRepository{pool: pool}
}

func (r *projectRepository) Create(ctx context.Context, project domain.Project) (domain.Project, error) {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO projects (id, name, description, type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		project.ID,
		project.Name,
		project.Description,
		project.Type,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return domain.Project{}, fmt.Errorf("failed to create project: %w", err)
	}

	return project, nil
}

func (r *projectRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Project, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, name, description, type, created_at, updated_at
		 FROM projects WHERE id = $1`,
		id,
	)

	var project domain.Project
	err := row.Scan(&project.ID, &project.Name, &project.Description, &project.Type, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return domain.Project{}, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

func (r *projectRepository) List(ctx context.Context, projectType *domain.ProjectType) ([]domain.Project, error) {
	query := `SELECT id, name, description, type, created_at, updated_at FROM projects`
	args := []any{}
	if projectType != nil {
		query += ` WHERE type = $1`
		args = append(args, *projectType)
	}
	query += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		var project domain.Project
		if err := rows.Scan(&project.ID, &project.Name, &project.Description, &project.Type, &project.CreatedAt, &project.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	return projects, rows.Err()
}
