package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jsalverda/disentangle/internal/domain"
	"github.com/jsalverda/disentangle/internal/repository"
)

// maxUploadBytes caps in-memory upload size during submission.
const maxUploadBytes = 64 << 20

// Service owns the import pipeline: it accepts uploads, resolves column
// mappings, persists rows in batches and drives job state transitions.
type Service struct {
	projects   repository.ProjectRepository
	containers repository.ContainerRepository
	turns      repository.TurnRepository
	jobs       repository.ImportJobRepository

	uploadDir    string
	batchSize    int
	maxErrorRate float64
	jobTimeout   time.Duration
	previewRows  int
	now          func() time.Time

	workerCancels sync.Map // map[uuid.UUID]context.CancelFunc
}

type Option func(*Service)

func WithUploadDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.uploadDir = filepath.Clean(dir)
		}
	}
}

func WithBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithMaxErrorRate sets the fraction of failed rows at which an import is
// marked failed instead of completed. The default of 1.0 fails an import
// only when every row was rejected.
func WithMaxErrorRate(rate float64) Option {
	return func(s *Service) {
		if rate > 0 && rate <= 1 {
			s.maxErrorRate = rate
		}
	}
}

func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.jobTimeout = timeout
		}
	}
}

func WithPreviewRows(rows int) Option {
	return func(s *Service) {
		if rows > 0 {
			s.previewRows = rows
		}
	}
}

func NewService(
	projects repository.ProjectRepository,
	containers repository.ContainerRepository,
	turns repository.TurnRepository,
	jobs repository.ImportJobRepository,
	opts ...Option,
) *Service {
	service := &Service{
		projects:     projects,
		containers:   containers,
		turns:        turns,
		jobs:         jobs,
		uploadDir:    filepath.Join(os.TempDir(), "disentangle-uploads"),
		batchSize:    50,
		maxErrorRate: 1.0,
		jobTimeout:   30 * time.Minute,
		previewRows:  10,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.batchSize <= 0 {
		service.batchSize = 50
	}
	if service.jobTimeout <= 0 {
		service.jobTimeout = 30 * time.Minute
	}
	if service.maxErrorRate <= 0 || service.maxErrorRate > 1 {
		service.maxErrorRate = 1.0
	}
	if service.previewRows <= 0 {
		service.previewRows = 10
	}
	if strings.TrimSpace(service.uploadDir) == "" {
		service.uploadDir = filepath.Join(os.TempDir(), "disentangle-uploads")
	}
	if service.now == nil {
		service.now = time.Now
	}
	return service
}

// SubmitRequest describes one upload. Mapping carries caller overrides in
// canonical-field to source-column form; unset fields resolve by alias.
type SubmitRequest struct {
	ProjectID     uuid.UUID
	ContainerID   *uuid.UUID
	ContainerName string
	FileName      string
	Mapping       map[string]string
	BatchSize     int
	Data          io.Reader
}

// Submit validates the upload synchronously, persists a pending job and
// launches the background worker. Schema problems fail here; row problems
// surface later through the job's log.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.ImportJob, error) {
	if req.ProjectID == uuid.Nil {
		return domain.ImportJob{}, requestErrorf("project ID is required")
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		return domain.ImportJob{}, requestErrorf("file name is required")
	}
	if req.Data == nil {
		return domain.ImportJob{}, requestErrorf("file payload is required")
	}
	project, err := s.projects.GetByID(ctx, req.ProjectID)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("validate project: %w", err)
	}
	if project.Type != domain.ProjectTypeChatDisentanglement {
		return domain.ImportJob{}, requestErrorf("project %s does not accept chat imports", project.ID)
	}

	payload, err := io.ReadAll(io.LimitReader(req.Data, maxUploadBytes+1))
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("read upload: %w", err)
	}
	if len(payload) > maxUploadBytes {
		return domain.ImportJob{}, requestErrorf("upload exceeds %d bytes", maxUploadBytes)
	}

	table, err := ParseTable(fileName, payload)
	if err != nil {
		return domain.ImportJob{}, &RequestError{Err: err}
	}
	mapping, err := ResolveMapping(table.Headers, req.Mapping)
	if err != nil {
		return domain.ImportJob{}, err
	}

	container, err := s.resolveContainer(ctx, project.ID, req.ContainerID, req.ContainerName, fileName)
	if err != nil {
		return domain.ImportJob{}, err
	}

	batchSize := s.batchSize
	if req.BatchSize > 0 {
		batchSize = req.BatchSize
	}

	job := domain.ImportJob{
		ID:          uuid.New(),
		ProjectID:   project.ID,
		ContainerID: container.ID,
		FileName:    fileName,
		Mapping:     mapping,
		BatchSize:   batchSize,
		Status:      domain.ImportJobStatusPending,
		TotalRows:   len(table.Rows),
	}
	sourcePath, err := s.storeUpload(job.ID, fileName, payload)
	if err != nil {
		return domain.ImportJob{}, err
	}
	job.SourcePath = sourcePath

	persisted, err := s.jobs.Create(ctx, job)
	if err != nil {
		_ = os.Remove(sourcePath)
		return domain.ImportJob{}, err
	}
	s.launchWorker(persisted)
	return persisted, nil
}

// ValidationResult is the synchronous dry-run answer for an upload.
type ValidationResult struct {
	Valid     bool                 `json:"valid"`
	TotalRows int                  `json:"total_rows"`
	Columns   []string             `json:"columns"`
	Mapping   domain.ColumnMapping `json:"column_mapping"`
	RowErrors []string             `json:"row_errors,omitempty"`
	Preview   [][]string           `json:"preview,omitempty"`
}

// Validate runs the parse, mapping and row checks without writing anything.
// Row errors beyond the preview window are counted but not listed.
func (s *Service) Validate(fileName string, mapping map[string]string, data io.Reader) (ValidationResult, error) {
	payload, err := io.ReadAll(io.LimitReader(data, maxUploadBytes+1))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("read upload: %w", err)
	}
	if len(payload) > maxUploadBytes {
		return ValidationResult{}, requestErrorf("upload exceeds %d bytes", maxUploadBytes)
	}
	table, err := ParseTable(fileName, payload)
	if err != nil {
		return ValidationResult{}, &RequestError{Err: err}
	}
	result := ValidationResult{
		TotalRows: len(table.Rows),
		Columns:   table.Headers,
	}
	resolved, err := ResolveMapping(table.Headers, mapping)
	if err != nil {
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			result.RowErrors = append(result.RowErrors, schemaErr.Error())
			return result, nil
		}
		return ValidationResult{}, err
	}
	result.Mapping = resolved

	reader := newRowReader(table.Headers, resolved)
	errorCount := 0
	for i, record := range table.Rows {
		if _, rowErr := reader.read(record, i+2); rowErr != nil {
			errorCount++
			if len(result.RowErrors) < s.previewRows {
				result.RowErrors = append(result.RowErrors, rowErr.Error())
			}
		}
	}
	result.Valid = true
	if len(table.Rows) > 0 && errorCount > 0 {
		rate := float64(errorCount) / float64(len(table.Rows))
		result.Valid = rate < s.maxErrorRate
	}

	previewLen := s.previewRows
	if previewLen > len(table.Rows) {
		previewLen = len(table.Rows)
	}
	result.Preview = table.Rows[:previewLen]
	return result, nil
}

// GetJob returns the metadata for a single import job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	if id == uuid.Nil {
		return domain.ImportJob{}, requestErrorf("job ID is required")
	}
	return s.jobs.GetByID(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, containerID *uuid.UUID, statuses []domain.ImportJobStatus, limit, offset int) ([]domain.ImportJob, error) {
	return s.jobs.List(ctx, containerID, statuses, limit, offset)
}

func (s *Service) ListLogs(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.ImportLogEntry, error) {
	return s.jobs.ListLogs(ctx, jobID, limit, offset)
}

// CancelJob requests cancellation for a pending or processing import.
// Rows already committed stay in place; the worker stops at the next
// batch boundary.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	if id == uuid.Nil {
		return domain.ImportJob{}, requestErrorf("job ID is required")
	}
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if job.Status.Terminal() {
		return job, &InvalidStateError{ID: job.ID, Status: job.Status, Op: "cancel"}
	}
	if err := s.jobs.MarkCancelled(ctx, id, "Cancelled by user"); err != nil {
		if errors.Is(err, repository.ErrImportJobStatusConflict) {
			updated, getErr := s.jobs.GetByID(ctx, id)
			if getErr != nil {
				return domain.ImportJob{}, getErr
			}
			return updated, &InvalidStateError{ID: updated.ID, Status: updated.Status, Op: "cancel"}
		}
		return domain.ImportJob{}, err
	}
	if cancel, ok := s.workerCancels.LoadAndDelete(id); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
	}
	return s.jobs.GetByID(ctx, id)
}

// RetryJob creates a fresh job for the same file, mapping and container.
// Only failed or cancelled imports can be retried; the whole file is
// reprocessed from the start.
func (s *Service) RetryJob(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	if id == uuid.Nil {
		return domain.ImportJob{}, requestErrorf("job ID is required")
	}
	previous, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if previous.Status != domain.ImportJobStatusFailed && previous.Status != domain.ImportJobStatusCancelled {
		return domain.ImportJob{}, &InvalidStateError{ID: previous.ID, Status: previous.Status, Op: "retry"}
	}
	if strings.TrimSpace(previous.SourcePath) == "" {
		return domain.ImportJob{}, fmt.Errorf("source file for import %s is no longer available", previous.ID)
	}
	if _, err := os.Stat(previous.SourcePath); err != nil {
		return domain.ImportJob{}, fmt.Errorf("source file for import %s is no longer available: %w", previous.ID, err)
	}

	retryOf := previous.ID
	job := domain.ImportJob{
		ID:          uuid.New(),
		ProjectID:   previous.ProjectID,
		ContainerID: previous.ContainerID,
		FileName:    previous.FileName,
		SourcePath:  previous.SourcePath,
		Mapping:     previous.Mapping,
		BatchSize:   previous.BatchSize,
		Status:      domain.ImportJobStatusPending,
		TotalRows:   previous.TotalRows,
		RetryOf:     &retryOf,
	}
	persisted, err := s.jobs.Create(ctx, job)
	if err != nil {
		return domain.ImportJob{}, err
	}
	s.launchWorker(persisted)
	return persisted, nil
}

func (s *Service) resolveContainer(ctx context.Context, projectID uuid.UUID, containerID *uuid.UUID, name, fileName string) (domain.Container, error) {
	if containerID != nil && *containerID != uuid.Nil {
		container, err := s.containers.GetByID(ctx, *containerID)
		if err != nil {
			return domain.Container{}, fmt.Errorf("resolve container: %w", err)
		}
		if container.ProjectID != projectID {
			return domain.Container{}, requestErrorf("container %s does not belong to project %s", container.ID, projectID)
		}
		return container, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Chat Room from %s", fileName)
	}
	existing, err := s.containers.GetByName(ctx, projectID, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.Container{}, fmt.Errorf("resolve container by name: %w", err)
	}
	return s.containers.Create(ctx, domain.NewContainer(projectID, name, domain.ContainerTypeChatRooms, fileName))
}

func (s *Service) storeUpload(jobID uuid.UUID, fileName string, payload []byte) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure upload directory: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	path := filepath.Join(s.uploadDir, jobID.String()+ext)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path, nil
}

func (s *Service) launchWorker(job domain.ImportJob) {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	ctx := baseCtx
	cancelFunc := baseCancel
	if s.jobTimeout > 0 {
		timeoutCtx, timeoutCancel := context.WithTimeout(baseCtx, s.jobTimeout)
		ctx = timeoutCtx
		cancelFunc = func() {
			timeoutCancel()
			baseCancel()
		}
	}
	s.workerCancels.Store(job.ID, cancelFunc)
	go func() {
		defer func() {
			cancelFunc()
			s.workerCancels.Delete(job.ID)
		}()
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				log.Printf("[import] panic while processing job %s: %v", job.ID, rec)
				s.failJob(context.Background(), job.ID, err)
			}
		}()
		if err := s.runImport(ctx, job); err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				log.Printf("[import] job %s cancelled", job.ID)
			case errors.Is(err, context.DeadlineExceeded):
				s.failJob(context.Background(), job.ID, fmt.Errorf("import timed out after %s", s.jobTimeout))
			case errors.Is(err, errJobNotRunnable):
				log.Printf("[import] job %s not runnable, skipping", job.ID)
			default:
				s.failJob(ctx, job.ID, err)
			}
		}
	}()
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, err error) {
	if err == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	if markErr := s.jobs.MarkFailed(ctx, jobID, truncateError(err)); markErr != nil {
		log.Printf("[import] failed to mark job %s as failed: %v (original error: %v)", jobID, markErr, err)
		return
	}
	log.Printf("[import] job %s failed: %v", jobID, err)
}

// runImport drives one job from pending to a terminal state. Rows are
// written batch by batch; each committed batch stays committed even if a
// later one fails or the job is cancelled.
func (s *Service) runImport(ctx context.Context, job domain.ImportJob) error {
	if err := s.jobs.MarkProcessing(ctx, job.ID); err != nil {
		if errors.Is(err, repository.ErrImportJobStatusConflict) {
			return errJobNotRunnable
		}
		return fmt.Errorf("mark import job processing: %w", err)
	}

	payload, err := os.ReadFile(job.SourcePath)
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}
	table, err := ParseTable(job.FileName, payload)
	if err != nil {
		return err
	}

	total := len(table.Rows)
	if err := s.jobs.UpdateProgress(ctx, job.ID, 0, &total); err != nil {
		return fmt.Errorf("record total rows: %w", err)
	}

	reader := newRowReader(table.Headers, job.Mapping)
	batchSize := job.BatchSize
	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	processed := 0
	errorCount := 0
	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > total {
			end = total
		}

		items := make([]repository.TurnBatchItem, 0, end-start)
		for i, record := range table.Rows[start:end] {
			sequence := start + i
			row, rowErr := reader.read(record, sequence+2)
			if rowErr != nil {
				errorCount++
				rowNumber := rowErr.Row
				if logErr := s.jobs.RecordLog(ctx, domain.ImportLogEntry{
					ImportJobID:  job.ID,
					RowNumber:    &rowNumber,
					ErrorMessage: rowErr.Reason,
				}); logErr != nil {
					return fmt.Errorf("record row error: %w", logErr)
				}
				continue
			}
			var replyTo *string
			if row.ReplyTo != "" {
				value := row.ReplyTo
				replyTo = &value
			}
			turn := domain.NewTurn(job.ContainerID, row.TurnID, row.UserID, row.Content, replyTo, sequence)
			turn.Metadata = row.Metadata
			item := repository.TurnBatchItem{Turn: turn}
			if row.Thread != "" {
				annotation := domain.NewThreadAnnotation(turn.ID, row.Thread, domain.AnnotationSourceLoaded, job.Mapping.Thread)
				item.Annotation = &annotation
			}
			items = append(items, item)
		}

		if len(items) > 0 {
			if err := s.turns.CreateBatch(ctx, items); err != nil {
				return fmt.Errorf("persist batch at row %d: %w", start+2, err)
			}
			processed += len(items)
		}
		if err := s.jobs.UpdateProgress(ctx, job.ID, processed, nil); err != nil {
			return fmt.Errorf("update import progress: %w", err)
		}
	}

	if total > 0 && errorCount > 0 {
		rate := float64(errorCount) / float64(total)
		if rate >= s.maxErrorRate {
			return fmt.Errorf("%d of %d rows failed validation", errorCount, total)
		}
	}

	if err := s.jobs.MarkCompleted(ctx, job.ID, processed); err != nil {
		if errors.Is(err, repository.ErrImportJobStatusConflict) {
			return errJobNotRunnable
		}
		return fmt.Errorf("mark import completed: %w", err)
	}
	log.Printf("[import] job %s completed (rows=%d errors=%d)", job.ID, processed, errorCount)
	return nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 512
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
