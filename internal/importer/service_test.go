package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jsalverda/disentangle/internal/domain"
	"github.com/jsalverda/disentangle/internal/repository"
)

const chatHeader = "turn_id,user_id,turn_text,reply_to_turn,Thread_zuil"

// buildChatCSV renders n data rows under chatHeader. emptyTurnIDAt is the
// zero-based data row whose turn_id cell is left blank; pass -1 to disable.
func buildChatCSV(n int, emptyTurnIDAt int) string {
	var b strings.Builder
	b.WriteString(chatHeader)
	b.WriteString("\n")
	for i := 0; i < n; i++ {
		turnID := fmt.Sprintf("t%d", i+1)
		if i == emptyTurnIDAt {
			turnID = ""
		}
		replyTo := ""
		if i > 0 {
			replyTo = fmt.Sprintf("t%d", i)
		}
		thread := "zuil-1"
		if i%2 == 1 {
			thread = "zuil-2"
		}
		fmt.Fprintf(&b, "%s,user%d,message %d,%s,%s\n", turnID, i%3, i+1, replyTo, thread)
	}
	return b.String()
}

func newTestService(t *testing.T, opts ...Option) (*Service, *stubProjectRepo, *stubContainerRepo, *stubTurnRepo, *stubImportJobRepo) {
	t.Helper()
	projectRepo := &stubProjectRepo{project: domain.NewProject("Chat Study", "", domain.ProjectTypeChatDisentanglement)}
	containerRepo := newStubContainerRepo()
	turnRepo := &stubTurnRepo{}
	jobRepo := newStubImportJobRepo()

	opts = append([]Option{WithUploadDirectory(t.TempDir())}, opts...)
	service := NewService(projectRepo, containerRepo, turnRepo, jobRepo, opts...)
	return service, projectRepo, containerRepo, turnRepo, jobRepo
}

func waitForTerminal(t *testing.T, repo *stubImportJobRepo, id uuid.UUID) domain.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := repo.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", id)
	return domain.ImportJob{}
}

func TestSubmitImportsAllRows(t *testing.T) {
	service, projectRepo, _, turnRepo, jobRepo := newTestService(t)

	job, err := service.Submit(context.Background(), SubmitRequest{
		ProjectID: projectRepo.project.ID,
		FileName:  "room.csv",
		Data:      strings.NewReader(buildChatCSV(100, -1)),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	if job.Status != domain.ImportJobStatusPending {
		t.Fatalf("expected pending job, got %s", job.Status)
	}
	if job.TotalRows != 100 {
		t.Fatalf("expected 100 total rows, got %d", job.TotalRows)
	}

	final := waitForTerminal(t, jobRepo, job.ID)
	if final.Status != domain.ImportJobStatusCompleted {
		t.Fatalf("expected completed, got %s (error: %v)", final.Status, final.ErrorMessage)
	}
	if final.ProcessedRows != 100 {
		t.Fatalf("expected 100 processed rows, got %d", final.ProcessedRows)
	}

	items := turnRepo.snapshot()
	if len(items) != 100 {
		t.Fatalf("expected 100 turns persisted, got %d", len(items))
	}
	first := items[0]
	if first.Turn.TurnID != "t1" || first.Turn.Sequence != 0 {
		t.Fatalf("unexpected first turn: %+v", first.Turn)
	}
	if first.Turn.ReplyTo != nil {
		t.Fatalf("expected nil reply_to on first turn, got %v", *first.Turn.ReplyTo)
	}
	if first.Annotation == nil {
		t.Fatalf("expected thread annotation on first turn")
	}
	if first.Annotation.Source != domain.AnnotationSourceLoaded {
		t.Fatalf("expected loaded annotation, got %s", first.Annotation.Source)
	}
	if first.Annotation.OriginalColumn != "Thread_zuil" {
		t.Fatalf("expected original column Thread_zuil, got %q", first.Annotation.OriginalColumn)
	}
	second := items[1]
	if second.Turn.ReplyTo == nil || *second.Turn.ReplyTo != "t1" {
		t.Fatalf("unexpected reply_to on second turn: %+v", second.Turn)
	}
	if second.Annotation.ThreadID != "zuil-2" {
		t.Fatalf("unexpected thread id: %q", second.Annotation.ThreadID)
	}
}

func TestSubmitMissingColumnFailsSynchronously(t *testing.T) {
	service, projectRepo, _, turnRepo, jobRepo := newTestService(t)

	data := "turn_id,turn_text\n1,hello\n"
	_, err := service.Submit(context.Background(), SubmitRequest{
		ProjectID: projectRepo.project.ID,
		FileName:  "broken.csv",
		Data:      strings.NewReader(data),
	})
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if jobRepo.count() != 0 {
		t.Fatalf("expected no job persisted, got %d", jobRepo.count())
	}
	if len(turnRepo.snapshot()) != 0 {
		t.Fatalf("expected no turns persisted")
	}
}

func TestSubmitRecordsRowErrors(t *testing.T) {
	service, projectRepo, _, turnRepo, jobRepo := newTestService(t)

	// Data row index 40 is file line 42 (header is line 1).
	job, err := service.Submit(context.Background(), SubmitRequest{
		ProjectID: projectRepo.project.ID,
		FileName:  "room.csv",
		Data:      strings.NewReader(buildChatCSV(100, 40)),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}

	final := waitForTerminal(t, jobRepo, job.ID)
	if final.Status != domain.ImportJobStatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.ProcessedRows != 99 {
		t.Fatalf("expected 99 processed rows, got %d", final.ProcessedRows)
	}
	if len(turnRepo.snapshot()) != 99 {
		t.Fatalf("expected 99 turns persisted, got %d", len(turnRepo.snapshot()))
	}

	logs, err := jobRepo.ListLogs(context.Background(), job.ID, 10, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 row error, got %d", len(logs))
	}
	if logs[0].RowNumber == nil || *logs[0].RowNumber != 42 {
		t.Fatalf("expected row 42 in log, got %+v", logs[0])
	}
	if !strings.Contains(logs[0].ErrorMessage, "turn_id") {
		t.Fatalf("expected turn_id mentioned in error, got %q", logs[0].ErrorMessage)
	}
}

func TestSubmitFailsWhenAllRowsInvalid(t *testing.T) {
	service, projectRepo, _, turnRepo, jobRepo := newTestService(t)

	data := chatHeader + "\n,alice,hello,,\n,bob,hi,,\n"
	job, err := service.Submit(context.Background(), SubmitRequest{
		ProjectID: projectRepo.project.ID,
		FileName:  "room.csv",
		Data:      strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}

	final := waitForTerminal(t, jobRepo, job.ID)
	if final.Status != domain.ImportJobStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorMessage == nil || !strings.Contains(*final.ErrorMessage, "2 of 2 rows") {
		t.Fatalf("expected failure summary, got %v", final.ErrorMessage)
	}
	if len(turnRepo.snapshot()) != 0 {
		t.Fatalf("expected no turns persisted")
	}
}

func TestCancelStopsAtBatchBoundary(t *testing.T) {
	service, projectRepo, _, turnRepo, jobRepo := newTestService(t, WithBatchSize(30))

	firstBatchDone := make(chan struct{})
	resume := make(chan struct{})
	turnRepo.beforeCreate = func(call int) {
		if call == 2 {
			close(firstBatchDone)
			<-resume
		}
	}

	job, err := service.Submit(context.Background(), SubmitRequest{
		ProjectID: projectRepo.project.ID,
		FileName:  "room.csv",
		Data:      strings.NewReader(buildChatCSV(100, -1)),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}

	<-firstBatchDone
	cancelled, err := service.CancelJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("cancel returned error: %v", err)
	}
	if cancelled.Status != domain.ImportJobStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	close(resume)

	final := waitForTerminal(t, jobRepo, job.ID)
	if final.Status != domain.ImportJobStatusCancelled {
		t.Fatalf("expected cancelled to stick, got %s", final.Status)
	}
	if final.ProcessedRows != 30 {
		t.Fatalf("expected 30 processed rows, got %d", final.ProcessedRows)
	}
	if len(turnRepo.snapshot()) != 30 {
		t.Fatalf("expected 30 turns retained, got %d", len(turnRepo.snapshot()))
	}
}

func TestCancelTerminalJobRejected(t *testing.T) {
	service, projectRepo, _, _, jobRepo := newTestService(t)

	job, err := service.Submit(context.Background(), SubmitRequest{
		ProjectID: projectRepo.project.ID,
		FileName:  "room.csv",
		Data:      strings.NewReader(buildChatCSV(3, -1)),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	waitForTerminal(t, jobRepo, job.ID)

	_, err = service.CancelJob(context.Background(), job.ID)
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if stateErr.Status != domain.ImportJobStatusCompleted {
		t.Fatalf("expected completed status in error, got %s", stateErr.Status)
	}
}

func TestRetryCreatesFreshJob(t *testing.T) {
	service, projectRepo, _, turnRepo, jobRepo := newTestService(t)
	turnRepo.failWith(errors.New("connection refused"))

	job, err := service.Submit(context.Background(), SubmitRequest{
		ProjectID: projectRepo.project.ID,
		FileName:  "room.csv",
		Data:      strings.NewReader(buildChatCSV(10, -1)),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	failed := waitForTerminal(t, jobRepo, job.ID)
	if failed.Status != domain.ImportJobStatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}

	turnRepo.failWith(nil)
	retried, err := service.RetryJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if retried.ID == job.ID {
		t.Fatalf("expected a fresh job id")
	}
	if retried.RetryOf == nil || *retried.RetryOf != job.ID {
		t.Fatalf("expected retry_of to reference original job")
	}

	final := waitForTerminal(t, jobRepo, retried.ID)
	if final.Status != domain.ImportJobStatusCompleted {
		t.Fatalf("expected retry to complete, got %s (error: %v)", final.Status, final.ErrorMessage)
	}
	if final.ProcessedRows != 10 {
		t.Fatalf("expected full reprocess of 10 rows, got %d", final.ProcessedRows)
	}
	if len(turnRepo.snapshot()) != 10 {
		t.Fatalf("expected 10 turns after retry, got %d", len(turnRepo.snapshot()))
	}
}

func TestRetryRequiresFailedOrCancelled(t *testing.T) {
	service, projectRepo, _, _, jobRepo := newTestService(t)

	job, err := service.Submit(context.Background(), SubmitRequest{
		ProjectID: projectRepo.project.ID,
		FileName:  "room.csv",
		Data:      strings.NewReader(buildChatCSV(3, -1)),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	waitForTerminal(t, jobRepo, job.ID)

	_, err = service.RetryJob(context.Background(), job.ID)
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestSubmitCreatesContainerFromName(t *testing.T) {
	service, projectRepo, containerRepo, _, jobRepo := newTestService(t)

	job, err := service.Submit(context.Background(), SubmitRequest{
		ProjectID:     projectRepo.project.ID,
		ContainerName: "IRC #ubuntu",
		FileName:      "room.csv",
		Data:          strings.NewReader(buildChatCSV(3, -1)),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	waitForTerminal(t, jobRepo, job.ID)

	container, err := containerRepo.GetByID(context.Background(), job.ContainerID)
	if err != nil {
		t.Fatalf("container not created: %v", err)
	}
	if container.Name != "IRC #ubuntu" {
		t.Fatalf("unexpected container name: %q", container.Name)
	}
	if container.Type != domain.ContainerTypeChatRooms {
		t.Fatalf("unexpected container type: %s", container.Type)
	}
}

func TestSubmitCapturesMetadataColumns(t *testing.T) {
	service, projectRepo, _, turnRepo, jobRepo := newTestService(t)

	data := "turn_id,user_id,turn_text,reply_to_turn,channel\nt1,alice,hello,,#ubuntu\n"
	job, err := service.Submit(context.Background(), SubmitRequest{
		ProjectID: projectRepo.project.ID,
		FileName:  "room.csv",
		Mapping:   map[string]string{"channel": "channel"},
		Data:      strings.NewReader(data),
	})
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	final := waitForTerminal(t, jobRepo, job.ID)
	if final.Status != domain.ImportJobStatusCompleted {
		t.Fatalf("expected completed, got %s (error: %v)", final.Status, final.ErrorMessage)
	}

	items := turnRepo.snapshot()
	if len(items) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(items))
	}
	if items[0].Turn.Metadata["channel"] != "#ubuntu" {
		t.Fatalf("expected channel metadata, got %v", items[0].Turn.Metadata)
	}
}

func TestValidateDryRun(t *testing.T) {
	service, _, _, turnRepo, jobRepo := newTestService(t)

	result, err := service.Validate("room.csv", nil, strings.NewReader(buildChatCSV(5, 1)))
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid result")
	}
	if result.TotalRows != 5 {
		t.Fatalf("expected 5 total rows, got %d", result.TotalRows)
	}
	if len(result.Columns) != 5 {
		t.Fatalf("expected 5 columns, got %v", result.Columns)
	}
	if result.Mapping.Content != "turn_text" {
		t.Fatalf("expected resolved mapping in result, got %+v", result.Mapping)
	}
	if len(result.RowErrors) != 1 || !strings.Contains(result.RowErrors[0], "row 3") {
		t.Fatalf("expected row 3 error, got %v", result.RowErrors)
	}
	if jobRepo.count() != 0 || len(turnRepo.snapshot()) != 0 {
		t.Fatalf("validate must not write")
	}
}

func TestValidateHonorsErrorRateThreshold(t *testing.T) {
	service, _, _, _, _ := newTestService(t, WithMaxErrorRate(0.5))

	csv := chatHeader + "\n" +
		"t1,alice,hello,,zuil-1\n" +
		",alice,oops,,zuil-1\n" +
		",bob,oops again,,zuil-1\n" +
		"t4,bob,bye,,zuil-1\n"

	result, err := service.Validate("room.csv", nil, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected invalid verdict at 2 of 4 rows failing with rate limit 0.5")
	}

	csv = chatHeader + "\n" +
		"t1,alice,hello,,zuil-1\n" +
		",alice,oops,,zuil-1\n" +
		"t3,bob,hi,,zuil-1\n" +
		"t4,bob,bye,,zuil-1\n"
	result, err = service.Validate("room.csv", nil, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid verdict at 1 of 4 rows failing with rate limit 0.5")
	}
}

func TestValidateReportsSchemaErrorAsInvalid(t *testing.T) {
	service, _, _, _, _ := newTestService(t)

	result, err := service.Validate("room.csv", nil, strings.NewReader("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected invalid result")
	}
	if len(result.RowErrors) == 0 || !strings.Contains(result.RowErrors[0], "missing required column mappings") {
		t.Fatalf("expected schema error text, got %v", result.RowErrors)
	}
}

func TestGetJobUnknown(t *testing.T) {
	service, _, _, _, _ := newTestService(t)

	_, err := service.GetJob(context.Background(), uuid.New())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type stubProjectRepo struct {
	project domain.Project
}

func (s *stubProjectRepo) Create(ctx context.Context, project domain.Project) (domain.Project, error) {
	return domain.Project{}, errors.New("not implemented")
}

func (s *stubProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Project, error) {
	if id == s.project.ID {
		return s.project, nil
	}
	return domain.Project{}, repository.ErrNotFound
}

func (s *stubProjectRepo) List(ctx context.Context, projectType *domain.ProjectType) ([]domain.Project, error) {
	return []domain.Project{s.project}, nil
}

type stubContainerRepo struct {
	mu         sync.Mutex
	containers map[uuid.UUID]domain.Container
}

func newStubContainerRepo() *stubContainerRepo {
	return &stubContainerRepo{containers: make(map[uuid.UUID]domain.Container)}
}

func (s *stubContainerRepo) Create(ctx context.Context, container domain.Container) (domain.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers[container.ID] = container
	return container, nil
}

func (s *stubContainerRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	container, ok := s.containers[id]
	if !ok {
		return domain.Container{}, repository.ErrNotFound
	}
	return container, nil
}

func (s *stubContainerRepo) GetByName(ctx context.Context, projectID uuid.UUID, name string) (domain.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, container := range s.containers {
		if container.ProjectID == projectID && container.Name == name {
			return container, nil
		}
	}
	return domain.Container{}, repository.ErrNotFound
}

func (s *stubContainerRepo) ListByProject(ctx context.Context, projectID uuid.UUID, containerType *domain.ContainerType) ([]domain.Container, error) {
	return nil, errors.New("not implemented")
}

type stubTurnRepo struct {
	mu           sync.Mutex
	items        []repository.TurnBatchItem
	calls        int
	err          error
	beforeCreate func(call int)
}

func (s *stubTurnRepo) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubTurnRepo) CreateBatch(ctx context.Context, items []repository.TurnBatchItem) error {
	s.mu.Lock()
	s.calls++
	call := s.calls
	hook := s.beforeCreate
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.items = append(s.items, items...)
	return nil
}

func (s *stubTurnRepo) snapshot() []repository.TurnBatchItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.TurnBatchItem(nil), s.items...)
}

func (s *stubTurnRepo) ListByContainer(ctx context.Context, containerID uuid.UUID, limit, offset int) ([]domain.Turn, error) {
	return nil, errors.New("not implemented")
}

func (s *stubTurnRepo) GetByTurnID(ctx context.Context, containerID uuid.UUID, turnID string) (domain.Turn, error) {
	return domain.Turn{}, errors.New("not implemented")
}

func (s *stubTurnRepo) CountByContainer(ctx context.Context, containerID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.items)), nil
}

type stubImportJobRepo struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]domain.ImportJob
	logs      []domain.ImportLogEntry
	createErr error
}

func newStubImportJobRepo() *stubImportJobRepo {
	return &stubImportJobRepo{jobs: make(map[uuid.UUID]domain.ImportJob)}
}

func (s *stubImportJobRepo) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *stubImportJobRepo) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return domain.ImportJob{}, s.createErr
	}
	now := time.Now()
	job.EnqueuedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = job
	return job, nil
}

func (s *stubImportJobRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ImportJob{}, repository.ErrNotFound
	}
	return job, nil
}

func (s *stubImportJobRepo) List(ctx context.Context, containerID *uuid.UUID, statuses []domain.ImportJobStatus, limit, offset int) ([]domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]domain.ImportJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if containerID != nil && job.ContainerID != *containerID {
			continue
		}
		result = append(result, job)
	}
	return result, nil
}

func (s *stubImportJobRepo) transition(id uuid.UUID, from []domain.ImportJobStatus, apply func(*domain.ImportJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	allowed := false
	for _, status := range from {
		if job.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return repository.ErrImportJobStatusConflict
	}
	apply(&job)
	job.UpdatedAt = time.Now()
	s.jobs[id] = job
	return nil
}

func (s *stubImportJobRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return s.transition(id, []domain.ImportJobStatus{domain.ImportJobStatusPending}, func(job *domain.ImportJob) {
		job.Status = domain.ImportJobStatusProcessing
		now := time.Now()
		job.StartedAt = &now
	})
}

func (s *stubImportJobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, processedRows int, totalRows *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if processedRows > job.ProcessedRows {
		job.ProcessedRows = processedRows
	}
	if totalRows != nil {
		job.TotalRows = *totalRows
	}
	job.UpdatedAt = time.Now()
	s.jobs[id] = job
	return nil
}

func (s *stubImportJobRepo) MarkCompleted(ctx context.Context, id uuid.UUID, processedRows int) error {
	return s.transition(id, []domain.ImportJobStatus{domain.ImportJobStatusProcessing}, func(job *domain.ImportJob) {
		job.Status = domain.ImportJobStatusCompleted
		job.ProcessedRows = processedRows
		now := time.Now()
		job.CompletedAt = &now
	})
}

func (s *stubImportJobRepo) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return s.transition(id, []domain.ImportJobStatus{domain.ImportJobStatusPending, domain.ImportJobStatusProcessing}, func(job *domain.ImportJob) {
		job.Status = domain.ImportJobStatusFailed
		job.ErrorMessage = &errorMessage
		now := time.Now()
		job.CompletedAt = &now
	})
}

func (s *stubImportJobRepo) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	return s.transition(id, []domain.ImportJobStatus{domain.ImportJobStatusPending, domain.ImportJobStatusProcessing}, func(job *domain.ImportJob) {
		job.Status = domain.ImportJobStatusCancelled
		job.ErrorMessage = &reason
		now := time.Now()
		job.CompletedAt = &now
	})
}

func (s *stubImportJobRepo) RecordLog(ctx context.Context, entry domain.ImportLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *stubImportJobRepo) ListLogs(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.ImportLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]domain.ImportLogEntry, 0)
	for _, entry := range s.logs {
		if entry.ImportJobID == jobID {
			result = append(result, entry)
		}
	}
	return result, nil
}

var _ repository.ProjectRepository = (*stubProjectRepo)(nil)
var _ repository.ContainerRepository = (*stubContainerRepo)(nil)
var _ repository.TurnRepository = (*stubTurnRepo)(nil)
var _ repository.ImportJobRepository = (*stubImportJobRepo)(nil)
