package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jsalverda/disentangle/internal/domain"

	"github.com/google/uuid"
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var errJobNotRunnable = errors.New("import job is no longer runnable")

// RequestError marks a submission problem the caller can correct. Errors
// outside this family are storage or worker faults.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

func requestErrorf(format string, args ...any) error {
	return &RequestError{Err: fmt.Errorf(format, args...)}
}

// SchemaError reports required canonical fields that could not be resolved
// from the file's headers. It fails the submission before any row is read.
type SchemaError struct {
	Missing   []string
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf(
		"missing required column mappings: %s. Available columns: %s",
		strings.Join(e.Missing, ", "),
		strings.Join(e.Available, ", "),
	)
}

// RowError reports a single row that failed validation. Row numbers are
// 1-based file line numbers including the header row.
type RowError struct {
	Row    int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// InvalidStateError reports a cancel or retry request against a job whose
// status forbids the operation.
type InvalidStateError struct {
	ID     uuid.UUID
	Status domain.ImportJobStatus
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s import %s in status %s", e.Op, e.ID, e.Status)
}
