package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ImportJobStatus captures lifecycle state for an import job.
type ImportJobStatus string

const (
	ImportJobStatusPending    ImportJobStatus = "pending"
	ImportJobStatusProcessing ImportJobStatus = "processing"
	ImportJobStatusCompleted  ImportJobStatus = "completed"
	ImportJobStatusFailed     ImportJobStatus = "failed"
	ImportJobStatusCancelled  ImportJobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ImportJobStatus) Terminal() bool {
	switch s {
	case ImportJobStatusCompleted, ImportJobStatusFailed, ImportJobStatusCancelled:
		return true
	}
	return false
}

// ColumnMapping resolves canonical field names to source column names.
// Metadata carries any extra columns the caller wants preserved per turn.
type ColumnMapping struct {
	TurnID   string            `json:"turn_id"`
	UserID   string            `json:"user_id"`
	Content  string            `json:"content"`
	ReplyTo  string            `json:"reply_to"`
	Thread   string            `json:"thread,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ImportJob mirrors persisted import job metadata for polling and workers.
// One job is one attempt to ingest a source file; a retry is a new job.
type ImportJob struct {
	ID            uuid.UUID       `json:"id"`
	ProjectID     uuid.UUID       `json:"project_id"`
	ContainerID   uuid.UUID       `json:"container_id"`
	FileName      string          `json:"file_name"`
	SourcePath    string          `json:"-"`
	Mapping       ColumnMapping   `json:"column_mapping"`
	BatchSize     int             `json:"batch_size"`
	Status        ImportJobStatus `json:"status"`
	ProcessedRows int             `json:"processed_rows"`
	TotalRows     int             `json:"total_rows"`
	ErrorMessage  *string         `json:"error,omitempty"`
	RetryOf       *uuid.UUID      `json:"retry_of,omitempty"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MappingToJSON marshals the column mapping into the JSONB layout stored in Postgres.
func (j ImportJob) MappingToJSON() (json.RawMessage, error) {
	return json.Marshal(j.Mapping)
}

// ColumnMappingFromJSON hydrates a stored column mapping.
func ColumnMappingFromJSON(data []byte) (ColumnMapping, error) {
	var mapping ColumnMapping
	if len(data) == 0 {
		return mapping, nil
	}
	if err := json.Unmarshal(data, &mapping); err != nil {
		return ColumnMapping{}, err
	}
	return mapping, nil
}

// ImportLogEntry captures row level issues that occur during an import.
type ImportLogEntry struct {
	ID           uuid.UUID `json:"id"`
	ImportJobID  uuid.UUID `json:"import_job_id"`
	RowNumber    *int      `json:"row_number,omitempty"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
