package repository

import (
	"context"
	"errors"

	"github.com/jsalverda/disentangle/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound indicates that a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrImportJobStatusConflict indicates that an import job cannot transition
// to the requested state.
var ErrImportJobStatusConflict = errors.New("import job status conflict")

// ErrExportJobStatusConflict indicates that an export job cannot transition
// to the requested state.
var ErrExportJobStatusConflict = errors.New("export job status conflict")

// ProjectRepository defines the interface for project operations
type ProjectRepository interface {
	Create(ctx context.Context, project domain.Project) (domain.Project, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Project, error)
	List(ctx context.Context, projectType *domain.ProjectType) ([]domain.Project, error)
}

// ContainerRepository defines the interface for container operations
type ContainerRepository interface {
	Create(ctx context.Context, container domain.Container) (domain.Container, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Container, error)
	GetByName(ctx context.Context, projectID uuid.UUID, name string) (domain.Container, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, containerType *domain.ContainerType) ([]domain.Container, error)
}

// TurnBatchItem pairs a turn with its optional import-derived thread
// annotation so both land in the same transaction.
type TurnBatchItem struct {
	Turn       domain.Turn
	Annotation *domain.Annotation
}

// TurnRepository defines the interface for turn operations
type TurnRepository interface {
	CreateBatch(ctx context.Context, items []TurnBatchItem) error
	ListByContainer(ctx context.Context, containerID uuid.UUID, limit, offset int) ([]domain.Turn, error)
	GetByTurnID(ctx context.Context, containerID uuid.UUID, turnID string) (domain.Turn, error)
	CountByContainer(ctx context.Context, containerID uuid.UUID) (int64, error)
}

// ThreadMember is one turn's membership in a thread, joined for reads.
type ThreadMember struct {
	ThreadID string
	Source   domain.AnnotationSource
	Turn     domain.Turn
}

// AnnotationRepository defines the interface for annotation operations
type AnnotationRepository interface {
	UpsertThread(ctx context.Context, annotation domain.Annotation) (domain.Annotation, error)
	ListThreadMembers(ctx context.Context, containerID uuid.UUID) ([]ThreadMember, error)
}

// ImportJobRepository defines the interface for import job state. Status
// transitions are guarded: illegal transitions return
// ErrImportJobStatusConflict instead of overwriting terminal state.
type ImportJobRepository interface {
	Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error)
	List(ctx context.Context, containerID *uuid.UUID, statuses []domain.ImportJobStatus, limit, offset int) ([]domain.ImportJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, processedRows int, totalRows *int) error
	MarkCompleted(ctx context.Context, id uuid.UUID, processedRows int) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error
	RecordLog(ctx context.Context, entry domain.ImportLogEntry) error
	ListLogs(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.ImportLogEntry, error)
}

// ExportJobResult carries the final file metadata for a completed export.
type ExportJobResult struct {
	RowsExported int
	BytesWritten int64
	FilePath     *string
}

// ExportJobRepository defines the interface for export job state.
type ExportJobRepository interface {
	Create(ctx context.Context, job domain.ExportJob) (domain.ExportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ExportJob, error)
	List(ctx context.Context, containerID *uuid.UUID, limit, offset int) ([]domain.ExportJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, rowsExported int, bytesWritten int64) error
	MarkCompleted(ctx context.Context, id uuid.UUID, result ExportJobResult) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error
}
