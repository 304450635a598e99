package importer

import (
	"github.com/google/uuid"

	"github.com/jsalverda/disentangle/internal/domain"
)

// Progress is the polling view of an import job. Percentage is always in
// [0, 1] and is forced to 1 once the job completes, regardless of counter
// drift.
type Progress struct {
	ImportID      uuid.UUID              `json:"import_id"`
	Status        domain.ImportJobStatus `json:"status"`
	ProcessedRows int                    `json:"processed_rows"`
	TotalRows     int                    `json:"total_rows"`
	Percentage    float64                `json:"percentage"`
	Error         *string                `json:"error,omitempty"`
	RetryOf       *uuid.UUID             `json:"retry_of,omitempty"`
}

// BuildProgress projects job metadata into its polling shape.
func BuildProgress(job domain.ImportJob) Progress {
	progress := Progress{
		ImportID:      job.ID,
		Status:        job.Status,
		ProcessedRows: job.ProcessedRows,
		TotalRows:     job.TotalRows,
		Error:         job.ErrorMessage,
		RetryOf:       job.RetryOf,
	}
	switch {
	case job.Status == domain.ImportJobStatusCompleted:
		progress.Percentage = 1
	case job.TotalRows > 0:
		ratio := float64(job.ProcessedRows) / float64(job.TotalRows)
		if ratio < 0 {
			ratio = 0
		}
		if ratio > 1 {
			ratio = 1
		}
		progress.Percentage = ratio
	}
	return progress
}
