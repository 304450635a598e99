package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExportFormat enumerates supported room export formats.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// ExportJobStatus captures lifecycle state for a room export job.
type ExportJobStatus string

const (
	ExportJobStatusPending   ExportJobStatus = "pending"
	ExportJobStatusRunning   ExportJobStatus = "running"
	ExportJobStatusCompleted ExportJobStatus = "completed"
	ExportJobStatusFailed    ExportJobStatus = "failed"
	ExportJobStatusCancelled ExportJobStatus = "cancelled"
)

// ExportJob mirrors persisted export job metadata. One job streams a
// container's turns plus thread annotations into a downloadable file.
type ExportJob struct {
	ID           uuid.UUID       `json:"id"`
	ContainerID  uuid.UUID       `json:"container_id"`
	Format       ExportFormat    `json:"format"`
	Status       ExportJobStatus `json:"status"`
	RowsExported int             `json:"rows_exported"`
	BytesWritten int64           `json:"bytes_written"`
	FilePath     *string         `json:"file_path,omitempty"`
	ErrorMessage *string         `json:"error,omitempty"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
