package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jsalverda/disentangle/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type importJobRepository struct {
	pool *pgxpool.Pool
}

// NewImportJobRepository wires a repository for managing import jobs.
func NewImportJobRepository(pool *pgxpool.Pool) ImportJobRepository {
	return &importJobRepository{pool: pool}
}

const importJobColumns = `id, project_id, container_id, file_name, source_path, column_mapping, batch_size,
	 status, processed_rows, total_rows, error_message, retry_of, enqueued_at, started_at, completed_at, updated_at`

func (r *importJobRepository) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = domain.ImportJobStatusPending
	}

	mappingJSON, err := job.MappingToJSON()
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("marshal column mapping: %w", err)
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO import_jobs (id, project_id, container_id, file_name, source_path, column_mapping, batch_size, status, processed_rows, total_rows, retry_of)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING enqueued_at, updated_at`,
		job.ID,
		job.ProjectID,
		job.ContainerID,
		job.FileName,
		job.SourcePath,
		mappingJSON,
		job.BatchSize,
		job.Status,
		job.ProcessedRows,
		job.TotalRows,
		job.RetryOf,
	)
	if err := row.Scan(&job.EnqueuedAt, &job.UpdatedAt); err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to create import job: %w", err)
	}

	return job, nil
}

func (r *importJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+importJobColumns+` FROM import_jobs WHERE id = $1`,
		id,
	)

	job, err := scanImportJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportJob{}, fmt.Errorf("import job %s: %w", id, ErrNotFound)
		}
		return domain.ImportJob{}, err
	}
	return job, nil
}

func (r *importJobRepository) List(ctx context.Context, containerID *uuid.UUID, statuses []domain.ImportJobStatus, limit, offset int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + importJobColumns + ` FROM import_jobs`
	var conditions []string
	var args []any
	if containerID != nil {
		args = append(args, *containerID)
		conditions = append(conditions, fmt.Sprintf("container_id = $%d", len(args)))
	}
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, status := range statuses {
			values[i] = string(status)
		}
		args = append(args, values)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY enqueued_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ImportJob
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (r *importJobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE import_jobs
		 SET status = $2, started_at = now(), updated_at = now()
		 WHERE id = $1 AND status = $3`,
		id,
		domain.ImportJobStatusProcessing,
		domain.ImportJobStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark import job processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImportJobStatusConflict
	}
	return nil
}

// UpdateProgress bumps processed/total counts. Counts never move backwards:
// the processed value is floored at its current stored value.
func (r *importJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, processedRows int, totalRows *int) error {
	if processedRows < 0 {
		processedRows = 0
	}

	var err error
	if totalRows != nil {
		total := *totalRows
		if total < 0 {
			total = 0
		}
		_, err = r.pool.Exec(
			ctx,
			`UPDATE import_jobs
			 SET processed_rows = GREATEST(processed_rows, $2), total_rows = $3, updated_at = now()
			 WHERE id = $1`,
			id, processedRows, total,
		)
	} else {
		_, err = r.pool.Exec(
			ctx,
			`UPDATE import_jobs
			 SET processed_rows = GREATEST(processed_rows, $2), updated_at = now()
			 WHERE id = $1`,
			id, processedRows,
		)
	}
	if err != nil {
		return fmt.Errorf("update import progress: %w", err)
	}
	return nil
}

func (r *importJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, processedRows int) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE import_jobs
		 SET status = $2, processed_rows = $3, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = $4`,
		id,
		domain.ImportJobStatusCompleted,
		processedRows,
		domain.ImportJobStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark import job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImportJobStatusConflict
	}
	return nil
}

func (r *importJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE import_jobs
		 SET status = $2, error_message = $3, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status IN ($4, $5)`,
		id,
		domain.ImportJobStatusFailed,
		errorMessage,
		domain.ImportJobStatusPending,
		domain.ImportJobStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark import job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImportJobStatusConflict
	}
	return nil
}

func (r *importJobRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE import_jobs
		 SET status = $2, error_message = $3, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status IN ($4, $5)`,
		id,
		domain.ImportJobStatusCancelled,
		reason,
		domain.ImportJobStatusPending,
		domain.ImportJobStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark import job cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImportJobStatusConflict
	}
	return nil
}

func (r *importJobRepository) RecordLog(ctx context.Context, entry domain.ImportLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	var rowNumber any
	if entry.RowNumber != nil {
		rowNumber = *entry.RowNumber
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO import_logs (id, import_job_id, row_number, error_message)
		 VALUES ($1, $2, $3, $4)`,
		entry.ID,
		entry.ImportJobID,
		rowNumber,
		entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record import log: %w", err)
	}

	return nil
}

func (r *importJobRepository) ListLogs(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.ImportLogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, import_job_id, row_number, error_message, created_at
		 FROM import_logs
		 WHERE import_job_id = $1
		 ORDER BY row_number NULLS LAST, created_at
		 LIMIT $2 OFFSET $3`,
		jobID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.ImportLogEntry
	for rows.Next() {
		var entry domain.ImportLogEntry
		if err := rows.Scan(&entry.ID, &entry.ImportJobID, &entry.RowNumber, &entry.ErrorMessage, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func scanImportJob(row pgx.Row) (domain.ImportJob, error) {
	var job domain.ImportJob
	var mappingJSON []byte
	err := row.Scan(
		&job.ID, &job.ProjectID, &job.ContainerID, &job.FileName, &job.SourcePath, &mappingJSON, &job.BatchSize,
		&job.Status, &job.ProcessedRows, &job.TotalRows, &job.ErrorMessage, &job.RetryOf,
		&job.EnqueuedAt, &job.StartedAt, &job.CompletedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportJob{}, err
		}
		return domain.ImportJob{}, fmt.Errorf("failed to scan import job: %w", err)
	}

	mapping, err := domain.ColumnMappingFromJSON(mappingJSON)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("unmarshal column mapping: %w", err)
	}
	job.Mapping = mapping

	return job, nil
}
