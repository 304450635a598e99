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

type containerRepository struct {
	pool *pgxpool.Pool
}

// NewContainerRepository wires a repository backed by pgxpool.
func NewContainerRepository(pool *pgxpool.Pool) ContainerRepository {
	return &containerRepository{pool: pool}
}

func (r *containerRepository) Create(ctx context.Context, container domain.Container) (domain.Container, error) {
	if container.ID == uuid.Nil {
		container.ID = uuid.New()
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO containers (id, project_id, name, type, source_file, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		container.ID,
		container.ProjectID,
		container.Name,
		container.Type,
		container.SourceFile,
		container.CreatedAt,
		container.UpdatedAt,
	)
	if err != nil {
		return domain.Container{}, fmt.Errorf("failed to create container: %w", err)
	}

	return container, nil
}

func (r *containerRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Container, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, project_id, name, type, source_file, created_at, updated_at
		 FROM containers WHERE id = $1`,
		id,
	)
	return scanContainer(row, id.String())
}

func (r *containerRepository) GetByName(ctx context.Context, projectID uuid.UUID, name string) (domain.Container, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, project_id, name, type, source_file, created_at, updated_at
		 FROM containers WHERE project_id = $1 AND name = $2
		 ORDER BY created_at DESC LIMIT 1`,
		projectID,
		name,
	)
	return scanContainer(row, name)
}

func (r *containerRepository) ListByProject(ctx context.Context, projectID uuid.UUID, containerType *domain.ContainerType) ([]domain.Container, error) {
	query := `SELECT id, project_id, name, type, source_file, created_at, updated_at
	 FROM containers WHERE project_id = $1`
	args := []any{projectID}
	if containerType != nil {
		query += ` AND type = $2`
		args = append(args, *containerType)
	}
	query += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	defer rows.Close()

	var containers []domain.Container
	for rows.Next() {
		var container domain.Container
		if err := rows.Scan(&container.ID, &container.ProjectID, &container.Name, &container.Type, &container.SourceFile, &container.CreatedAt, &container.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		containers = append(containers, container)
	}

	return containers, rows.Err()
}

func scanContainer(row pgx.Row, ref string) (domain.Container, error) {
	var container domain.Container
	err := row.Scan(&container.ID, &container.ProjectID, &container.Name, &container.Type, &container.SourceFile, &container.CreatedAt, &container.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Container{}, fmt.Errorf("container %s: %w", ref, ErrNotFound)
		}
		return domain.Container{}, fmt.Errorf("failed to get container: %w", err)
	}
	return container, nil
}
