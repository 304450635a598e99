package rooms

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/jsalverda/disentangle/internal/domain"
	"github.com/jsalverda/disentangle/internal/repository"
)

func seedRoom(t *testing.T) (*Service, domain.Container, *stubTurnRepo, *stubAnnotationRepo) {
	t.Helper()
	projectID := uuid.New()
	container := domain.NewContainer(projectID, "room-1", domain.ContainerTypeChatRooms, "room.csv")

	containerRepo := &stubContainerRepo{containers: map[uuid.UUID]domain.Container{container.ID: container}}
	turnRepo := &stubTurnRepo{}
	annotationRepo := &stubAnnotationRepo{}

	for i := 0; i < 4; i++ {
		turn := domain.NewTurn(container.ID, turnLabel(i), "alice", "hello", nil, i)
		turnRepo.turns = append(turnRepo.turns, turn)
	}
	// t1 and t3 imported into thread A, t2 into thread B.
	annotationRepo.members = []repository.ThreadMember{
		{ThreadID: "A", Source: domain.AnnotationSourceLoaded, Turn: turnRepo.turns[0]},
		{ThreadID: "B", Source: domain.AnnotationSourceLoaded, Turn: turnRepo.turns[1]},
		{ThreadID: "A", Source: domain.AnnotationSourceLoaded, Turn: turnRepo.turns[2]},
	}

	return NewService(containerRepo, turnRepo, annotationRepo), container, turnRepo, annotationRepo
}

func turnLabel(i int) string {
	return string(rune('a' + i))
}

func TestListTurnsReturnsSequenceOrder(t *testing.T) {
	service, container, _, _ := seedRoom(t)

	page, err := service.ListTurns(context.Background(), container.ID, 10, 0)
	if err != nil {
		t.Fatalf("list turns returned error: %v", err)
	}
	if page.Total != 4 {
		t.Fatalf("expected total 4, got %d", page.Total)
	}
	for i, turn := range page.Turns {
		if turn.Sequence != i {
			t.Fatalf("expected sequence order, got %+v at %d", turn, i)
		}
	}
}

func TestListTurnsUnknownRoom(t *testing.T) {
	service, _, _, _ := seedRoom(t)

	_, err := service.ListTurns(context.Background(), uuid.New(), 10, 0)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListThreadsGroupsByThreadID(t *testing.T) {
	service, container, _, _ := seedRoom(t)

	threads, err := service.ListThreads(context.Background(), container.ID)
	if err != nil {
		t.Fatalf("list threads returned error: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}
	if threads[0].ThreadID != "A" || len(threads[0].Turns) != 2 {
		t.Fatalf("unexpected first thread: %+v", threads[0])
	}
	if threads[1].ThreadID != "B" || len(threads[1].Turns) != 1 {
		t.Fatalf("unexpected second thread: %+v", threads[1])
	}
	if threads[0].Source != domain.AnnotationSourceLoaded {
		t.Fatalf("expected loaded source, got %s", threads[0].Source)
	}
}

func TestAnnotateThreadCreatesUserAnnotation(t *testing.T) {
	service, container, turnRepo, annotationRepo := seedRoom(t)

	annotation, err := service.AnnotateThread(context.Background(), container.ID, turnRepo.turns[3].TurnID, "C")
	if err != nil {
		t.Fatalf("annotate returned error: %v", err)
	}
	if annotation.Source != domain.AnnotationSourceCreated {
		t.Fatalf("expected created source, got %s", annotation.Source)
	}
	if annotation.ThreadID != "C" {
		t.Fatalf("expected thread C, got %q", annotation.ThreadID)
	}
	if len(annotationRepo.upserted) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(annotationRepo.upserted))
	}
	if annotationRepo.upserted[0].TurnID != turnRepo.turns[3].ID {
		t.Fatalf("annotation bound to wrong turn")
	}
}

func TestAnnotateThreadUnknownTurn(t *testing.T) {
	service, container, _, _ := seedRoom(t)

	_, err := service.AnnotateThread(context.Background(), container.ID, "missing", "C")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type stubContainerRepo struct {
	containers map[uuid.UUID]domain.Container
}

func (s *stubContainerRepo) Create(ctx context.Context, container domain.Container) (domain.Container, error) {
	s.containers[container.ID] = container
	return container, nil
}

func (s *stubContainerRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Container, error) {
	container, ok := s.containers[id]
	if !ok {
		return domain.Container{}, repository.ErrNotFound
	}
	return container, nil
}

func (s *stubContainerRepo) GetByName(ctx context.Context, projectID uuid.UUID, name string) (domain.Container, error) {
	return domain.Container{}, errors.New("not implemented")
}

func (s *stubContainerRepo) ListByProject(ctx context.Context, projectID uuid.UUID, containerType *domain.ContainerType) ([]domain.Container, error) {
	result := make([]domain.Container, 0, len(s.containers))
	for _, container := range s.containers {
		if container.ProjectID == projectID {
			result = append(result, container)
		}
	}
	return result, nil
}

type stubTurnRepo struct {
	turns []domain.Turn
}

func (s *stubTurnRepo) CreateBatch(ctx context.Context, items []repository.TurnBatchItem) error {
	return errors.New("not implemented")
}

func (s *stubTurnRepo) ListByContainer(ctx context.Context, containerID uuid.UUID, limit, offset int) ([]domain.Turn, error) {
	if offset >= len(s.turns) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.turns) {
		end = len(s.turns)
	}
	return append([]domain.Turn(nil), s.turns[offset:end]...), nil
}

func (s *stubTurnRepo) GetByTurnID(ctx context.Context, containerID uuid.UUID, turnID string) (domain.Turn, error) {
	for _, turn := range s.turns {
		if turn.ContainerID == containerID && turn.TurnID == turnID {
			return turn, nil
		}
	}
	return domain.Turn{}, repository.ErrNotFound
}

func (s *stubTurnRepo) CountByContainer(ctx context.Context, containerID uuid.UUID) (int64, error) {
	return int64(len(s.turns)), nil
}

type stubAnnotationRepo struct {
	members  []repository.ThreadMember
	upserted []domain.Annotation
}

func (s *stubAnnotationRepo) UpsertThread(ctx context.Context, annotation domain.Annotation) (domain.Annotation, error) {
	s.upserted = append(s.upserted, annotation)
	return annotation, nil
}

func (s *stubAnnotationRepo) ListThreadMembers(ctx context.Context, containerID uuid.UUID) ([]repository.ThreadMember, error) {
	return append([]repository.ThreadMember(nil), s.members...), nil
}

var _ repository.ContainerRepository = (*stubContainerRepo)(nil)
var _ repository.TurnRepository = (*stubTurnRepo)(nil)
var _ repository.AnnotationRepository = (*stubAnnotationRepo)(nil)
