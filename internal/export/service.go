package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jsalverda/disentangle/internal/domain"
	"github.com/jsalverda/disentangle/internal/repository"
)

var errJobNotRunnable = errors.New("export job is no longer runnable")

// Service streams a room's turns and thread annotations into downloadable
// CSV or JSON files, one background job per request.
type Service struct {
	containers  repository.ContainerRepository
	turns       repository.TurnRepository
	annotations repository.AnnotationRepository
	exportRepo  repository.ExportJobRepository

	exportDir  string
	jobTimeout time.Duration
	pageSize   int
	now        func() time.Time

	downloadSigner *downloadSigner

	workerCancels sync.Map // map[uuid.UUID]context.CancelFunc
}

type Option func(*Service)

func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
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

func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithDownloadTokenTTL customizes the TTL for generated download links.
func WithDownloadTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.downloadSigner = newDownloadSigner(ttl)
		}
	}
}

func NewService(
	containers repository.ContainerRepository,
	turns repository.TurnRepository,
	annotations repository.AnnotationRepository,
	exportRepo repository.ExportJobRepository,
	opts ...Option,
) *Service {
	service := &Service{
		containers:  containers,
		turns:       turns,
		annotations: annotations,
		exportRepo:  exportRepo,
		exportDir:   filepath.Join(os.TempDir(), "disentangle-exports"),
		jobTimeout:  30 * time.Minute,
		pageSize:    1000,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.pageSize <= 0 {
		service.pageSize = 1000
	}
	if service.jobTimeout <= 0 {
		service.jobTimeout = 30 * time.Minute
	}
	if strings.TrimSpace(service.exportDir) == "" {
		service.exportDir = filepath.Join(os.TempDir(), "disentangle-exports")
	}
	if service.downloadSigner == nil {
		service.downloadSigner = newDownloadSigner(5 * time.Minute)
	}
	if service.now == nil {
		service.now = time.Now
	}
	return service
}

// QueueExport persists a pending export job for a room and starts its worker.
func (s *Service) QueueExport(ctx context.Context, containerID uuid.UUID, format domain.ExportFormat) (domain.ExportJob, error) {
	if containerID == uuid.Nil {
		return domain.ExportJob{}, errors.New("container ID is required")
	}
	switch format {
	case domain.ExportFormatCSV, domain.ExportFormatJSON:
	case "":
		format = domain.ExportFormatCSV
	default:
		return domain.ExportJob{}, fmt.Errorf("unsupported export format %q", format)
	}
	if _, err := s.containers.GetByID(ctx, containerID); err != nil {
		return domain.ExportJob{}, fmt.Errorf("validate container: %w", err)
	}
	job := domain.ExportJob{
		ID:          uuid.New(),
		ContainerID: containerID,
		Format:      format,
		Status:      domain.ExportJobStatusPending,
	}
	persisted, err := s.exportRepo.Create(ctx, job)
	if err != nil {
		return domain.ExportJob{}, err
	}
	s.launchWorker(persisted)
	return persisted, nil
}

// GetJob returns the metadata for a single export job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (domain.ExportJob, error) {
	if id == uuid.Nil {
		return domain.ExportJob{}, errors.New("job ID is required")
	}
	return s.exportRepo.GetByID(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, containerID *uuid.UUID, limit, offset int) ([]domain.ExportJob, error) {
	return s.exportRepo.List(ctx, containerID, limit, offset)
}

// CancelJob requests cancellation for a pending or running export job.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) (domain.ExportJob, error) {
	if id == uuid.Nil {
		return domain.ExportJob{}, errors.New("job ID is required")
	}
	job, err := s.exportRepo.GetByID(ctx, id)
	if err != nil {
		return domain.ExportJob{}, err
	}
	if job.Status != domain.ExportJobStatusPending && job.Status != domain.ExportJobStatusRunning {
		return job, fmt.Errorf("export job in status %s cannot be cancelled", job.Status)
	}
	if err := s.exportRepo.MarkCancelled(ctx, id, "Cancelled by user"); err != nil {
		if errors.Is(err, repository.ErrExportJobStatusConflict) {
			updated, getErr := s.exportRepo.GetByID(ctx, id)
			if getErr != nil {
				return domain.ExportJob{}, getErr
			}
			return updated, nil
		}
		return domain.ExportJob{}, err
	}
	if cancel, ok := s.workerCancels.LoadAndDelete(id); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
	}
	return s.exportRepo.GetByID(ctx, id)
}

// BuildDownloadURL signs a short-lived download URL for completed export files.
func (s *Service) BuildDownloadURL(job domain.ExportJob) (*string, error) {
	if job.Status != domain.ExportJobStatusCompleted {
		return nil, nil
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, nil
	}
	if s.downloadSigner == nil {
		return nil, errors.New("download signer not configured")
	}
	token := s.downloadSigner.Sign(job.ID, s.now())
	values := url.Values{}
	values.Set("token", token)
	download := fmt.Sprintf("/exports/files/%s?%s", job.ID.String(), values.Encode())
	return &download, nil
}

// ValidateDownloadToken ensures the token is valid for the given job.
func (s *Service) ValidateDownloadToken(jobID uuid.UUID, token string) error {
	if s.downloadSigner == nil {
		return errors.New("download signer not configured")
	}
	return s.downloadSigner.Verify(jobID, token, s.now())
}

// OpenJobFile opens the completed export file for streaming to the client.
func (s *Service) OpenJobFile(job domain.ExportJob) (*os.File, error) {
	if job.Status != domain.ExportJobStatusCompleted {
		return nil, errors.New("export is not completed")
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, errors.New("export file is unavailable")
	}
	file, err := os.Open(*job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return file, nil
}

func (s *Service) launchWorker(job domain.ExportJob) {
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
				log.Printf("[export] panic while processing job %s: %v", job.ID, rec)
				s.failJob(context.Background(), job.ID, err)
			}
		}()
		if err := s.runExport(ctx, job); err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				log.Printf("[export] job %s cancelled", job.ID)
			case errors.Is(err, errJobNotRunnable):
				log.Printf("[export] job %s not runnable, skipping", job.ID)
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
	if markErr := s.exportRepo.MarkFailed(ctx, jobID, truncateError(err)); markErr != nil {
		log.Printf("[export] failed to mark job %s as failed: %v (original error: %v)", jobID, markErr, err)
		return
	}
	log.Printf("[export] job %s failed: %v", jobID, err)
}

// exportRow is one turn with its thread annotation flattened for output.
type exportRow struct {
	TurnID       string `json:"turn_id"`
	UserID       string `json:"user_id"`
	Content      string `json:"content"`
	ReplyTo      string `json:"reply_to,omitempty"`
	ThreadID     string `json:"thread_id,omitempty"`
	ThreadSource string `json:"thread_source,omitempty"`
}

var csvHeader = []string{"turn_id", "user_id", "content", "reply_to", "thread_id", "thread_source"}

func (s *Service) runExport(ctx context.Context, job domain.ExportJob) error {
	if err := s.exportRepo.MarkRunning(ctx, job.ID); err != nil {
		if errors.Is(err, repository.ErrExportJobStatusConflict) {
			return errJobNotRunnable
		}
		return fmt.Errorf("mark export job running: %w", err)
	}

	threadByTurn := make(map[uuid.UUID]repository.ThreadMember)
	members, err := s.annotations.ListThreadMembers(ctx, job.ContainerID)
	if err != nil {
		return fmt.Errorf("load thread annotations: %w", err)
	}
	for _, member := range members {
		threadByTurn[member.Turn.ID] = member
	}

	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("ensure export directory: %w", err)
	}
	ext := "csv"
	if job.Format == domain.ExportFormatJSON {
		ext = "json"
	}
	tempFile, err := os.CreateTemp(s.exportDir, fmt.Sprintf("%s-*.%s", job.ID, ext))
	if err != nil {
		return fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriterSize(tempFile, 1<<20)
	counter := &countingWriter{writer: buffered}

	var write func(row exportRow) error
	var finish func() error
	switch job.Format {
	case domain.ExportFormatJSON:
		encoder := json.NewEncoder(counter)
		first := true
		if _, err := counter.Write([]byte("[")); err != nil {
			return fmt.Errorf("write json prefix: %w", err)
		}
		write = func(row exportRow) error {
			if !first {
				if _, err := counter.Write([]byte(",")); err != nil {
					return err
				}
			}
			first = false
			return encoder.Encode(row)
		}
		finish = func() error {
			_, err := counter.Write([]byte("]\n"))
			return err
		}
	default:
		csvWriter := csv.NewWriter(counter)
		if err := csvWriter.Write(csvHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		write = func(row exportRow) error {
			return csvWriter.Write([]string{row.TurnID, row.UserID, row.Content, row.ReplyTo, row.ThreadID, row.ThreadSource})
		}
		finish = func() error {
			csvWriter.Flush()
			return csvWriter.Error()
		}
	}

	rowsExported := 0
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		turns, err := s.turns.ListByContainer(ctx, job.ContainerID, s.pageSize, offset)
		if err != nil {
			return fmt.Errorf("list turns: %w", err)
		}
		if len(turns) == 0 {
			break
		}
		for _, turn := range turns {
			row := exportRow{
				TurnID:  turn.TurnID,
				UserID:  turn.UserID,
				Content: turn.Content,
			}
			if turn.ReplyTo != nil {
				row.ReplyTo = *turn.ReplyTo
			}
			if member, ok := threadByTurn[turn.ID]; ok {
				row.ThreadID = member.ThreadID
				row.ThreadSource = string(member.Source)
			}
			if err := write(row); err != nil {
				return fmt.Errorf("write turn row: %w", err)
			}
			rowsExported++
		}
		if err := buffered.Flush(); err != nil {
			return fmt.Errorf("flush rows: %w", err)
		}
		if err := s.exportRepo.UpdateProgress(ctx, job.ID, rowsExported, counter.count); err != nil {
			return fmt.Errorf("update export progress: %w", err)
		}
		if len(turns) < s.pageSize {
			break
		}
		offset += s.pageSize
	}

	if err := finish(); err != nil {
		return fmt.Errorf("finalize export: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("final buffered flush: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync export file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}

	finalPath := filepath.Join(s.exportDir, fmt.Sprintf("room-%s-%s.%s", job.ContainerID, job.ID, ext))
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("promote export file: %w", err)
	}
	cleanup = false
	if err := s.exportRepo.MarkCompleted(ctx, job.ID, repository.ExportJobResult{
		RowsExported: rowsExported,
		BytesWritten: counter.count,
		FilePath:     &finalPath,
	}); err != nil {
		return fmt.Errorf("mark export completed: %w", err)
	}
	log.Printf("[export] job %s completed (rows=%d path=%s)", job.ID, rowsExported, finalPath)
	return nil
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
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
