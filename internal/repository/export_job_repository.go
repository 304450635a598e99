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

type exportJobRepository struct {
	pool *pgxpool.Pool
}

// NewExportJobRepository wires a repository for managing room export jobs.
func NewExportJobRepository(pool *pgxpool.Pool) ExportJobRepository {
	return &exportJobRepository{pool: pool}
}

const exportJobColumns = `id, container_id, format, status, rows_exported, bytes_written, file_path,
	 error_message, enqueued_at, started_at, completed_at, updated_at`

func (r *exportJobRepository) Create(ctx context.Context, job domain.ExportJob) (domain.ExportJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = domain.ExportJobStatusPending
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO export_jobs (id, container_id, format, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING enqueued_at, updated_at`,
		job.ID,
		job.ContainerID,
		job.Format,
		job.Status,
	)
	if err := row.Scan(&job.EnqueuedAt, &job.UpdatedAt); err != nil {
		return domain.ExportJob{}, fmt.Errorf("failed to create export job: %w", err)
	}

	return job, nil
}

func (r *exportJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ExportJob, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+exportJobColumns+` FROM export_jobs WHERE id = $1`,
		id,
	)

	job, err := scanExportJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExportJob{}, fmt.Errorf("export job %s: %w", id, ErrNotFound)
		}
		return domain.ExportJob{}, err
	}
	return job, nil
}

func (r *exportJobRepository) List(ctx context.Context, containerID *uuid.UUID, limit, offset int) ([]domain.ExportJob, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + exportJobColumns + ` FROM export_jobs`
	var args []any
	if containerID != nil {
		args = append(args, *containerID)
		query += " WHERE container_id = $1"
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY enqueued_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ExportJob
	for rows.Next() {
		job, err := scanExportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (r *exportJobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE export_jobs SET status = $2, started_at = now(), updated_at = now()
		 WHERE id = $1 AND status = $3`,
		id,
		domain.ExportJobStatusRunning,
		domain.ExportJobStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark export job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExportJobStatusConflict
	}
	return nil
}

func (r *exportJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, rowsExported int, bytesWritten int64) error {
	if rowsExported < 0 {
		rowsExported = 0
	}
	if bytesWritten < 0 {
		bytesWritten = 0
	}

	_, err := r.pool.Exec(
		ctx,
		`UPDATE export_jobs
		 SET rows_exported = GREATEST(rows_exported, $2), bytes_written = GREATEST(bytes_written, $3), updated_at = now()
		 WHERE id = $1`,
		id, rowsExported, bytesWritten,
	)
	if err != nil {
		return fmt.Errorf("update export progress: %w", err)
	}
	return nil
}

func (r *exportJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, result ExportJobResult) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE export_jobs
		 SET status = $2, rows_exported = $3, bytes_written = $4, file_path = $5, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = $6`,
		id,
		domain.ExportJobStatusCompleted,
		result.RowsExported,
		result.BytesWritten,
		result.FilePath,
		domain.ExportJobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("mark export job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExportJobStatusConflict
	}
	return nil
}

func (r *exportJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE export_jobs
		 SET status = $2, error_message = $3, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status IN ($4, $5)`,
		id,
		domain.ExportJobStatusFailed,
		errorMessage,
		domain.ExportJobStatusPending,
		domain.ExportJobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("mark export job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExportJobStatusConflict
	}
	return nil
}

func (r *exportJobRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE export_jobs
		 SET status = $2, error_message = $3, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status IN ($4, $5)`,
		id,
		domain.ExportJobStatusCancelled,
		reason,
		domain.ExportJobStatusPending,
		domain.ExportJobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("mark export job cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExportJobStatusConflict
	}
	return nil
}

func scanExportJob(row pgx.Row) (domain.ExportJob, error) {
	var job domain.ExportJob
	err := row.Scan(
		&job.ID, &job.ContainerID, &job.Format, &job.Status, &job.RowsExported, &job.BytesWritten, &job.FilePath,
		&job.ErrorMessage, &job.EnqueuedAt, &job.StartedAt, &job.CompletedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExportJob{}, err
		}
		return domain.ExportJob{}, fmt.Errorf("failed to scan export job: %w", err)
	}
	return job, nil
}
