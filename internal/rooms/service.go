package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jsalverda/disentangle/internal/domain"
	"github.com/jsalverda/disentangle/internal/repository"
)

// Service exposes read and annotation operations over imported chat rooms.
type Service struct {
	containers  repository.ContainerRepository
	turns       repository.TurnRepository
	annotations repository.AnnotationRepository
}

func NewService(
	containers repository.ContainerRepository,
	turns repository.TurnRepository,
	annotations repository.AnnotationRepository,
) *Service {
	return &Service{
		containers:  containers,
		turns:       turns,
		annotations: annotations,
	}
}

// TurnPage is one page of turns plus the room's total turn count.
type TurnPage struct {
	Turns []domain.Turn `json:"turns"`
	Total int64         `json:"total"`
}

// ListTurns returns turns in file order for one room.
func (s *Service) ListTurns(ctx context.Context, containerID uuid.UUID, limit, offset int) (TurnPage, error) {
	if containerID == uuid.Nil {
		return TurnPage{}, errors.New("container ID is required")
	}
	if _, err := s.containers.GetByID(ctx, containerID); err != nil {
		return TurnPage{}, err
	}
	turns, err := s.turns.ListByContainer(ctx, containerID, limit, offset)
	if err != nil {
		return TurnPage{}, fmt.Errorf("list turns: %w", err)
	}
	total, err := s.turns.CountByContainer(ctx, containerID)
	if err != nil {
		return TurnPage{}, fmt.Errorf("count turns: %w", err)
	}
	return TurnPage{Turns: turns, Total: total}, nil
}

// Thread groups the annotated turns that share one thread identifier.
// Source reflects the first annotation seen in turn order, so a thread
// created during import stays "loaded" even after manual additions.
type Thread struct {
	ThreadID string                  `json:"thread_id"`
	Source   domain.AnnotationSource `json:"source"`
	Turns    []domain.Turn           `json:"turns"`
}

// ListThreads reconstructs the room's thread structure from annotations.
// Threads are ordered by the sequence of their earliest turn.
func (s *Service) ListThreads(ctx context.Context, containerID uuid.UUID) ([]Thread, error) {
	if containerID == uuid.Nil {
		return nil, errors.New("container ID is required")
	}
	if _, err := s.containers.GetByID(ctx, containerID); err != nil {
		return nil, err
	}
	members, err := s.annotations.ListThreadMembers(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("list thread members: %w", err)
	}

	byID := make(map[string]*Thread)
	order := make([]string, 0)
	for _, member := range members {
		thread, ok := byID[member.ThreadID]
		if !ok {
			thread = &Thread{ThreadID: member.ThreadID, Source: member.Source}
			byID[member.ThreadID] = thread
			order = append(order, member.ThreadID)
		}
		thread.Turns = append(thread.Turns, member.Turn)
	}

	threads := make([]Thread, 0, len(order))
	for _, id := range order {
		threads = append(threads, *byID[id])
	}
	return threads, nil
}

// AnnotateThread assigns a turn to a thread by hand. Re-annotating a turn
// moves it to the new thread; the annotation is tagged as user created.
func (s *Service) AnnotateThread(ctx context.Context, containerID uuid.UUID, turnID string, threadID string) (domain.Annotation, error) {
	if containerID == uuid.Nil {
		return domain.Annotation{}, errors.New("container ID is required")
	}
	if turnID == "" {
		return domain.Annotation{}, errors.New("turn ID is required")
	}
	if threadID == "" {
		return domain.Annotation{}, errors.New("thread ID is required")
	}
	turn, err := s.turns.GetByTurnID(ctx, containerID, turnID)
	if err != nil {
		return domain.Annotation{}, err
	}
	annotation := domain.NewThreadAnnotation(turn.ID, threadID, domain.AnnotationSourceCreated, "")
	return s.annotations.UpsertThread(ctx, annotation)
}

// GetContainer returns one room's metadata.
func (s *Service) GetContainer(ctx context.Context, containerID uuid.UUID) (domain.Container, error) {
	if containerID == uuid.Nil {
		return domain.Container{}, errors.New("container ID is required")
	}
	return s.containers.GetByID(ctx, containerID)
}

// ListContainers returns a project's chat rooms.
func (s *Service) ListContainers(ctx context.Context, projectID uuid.UUID) ([]domain.Container, error) {
	if projectID == uuid.Nil {
		return nil, errors.New("project ID is required")
	}
	containerType := domain.ContainerTypeChatRooms
	return s.containers.ListByProject(ctx, projectID, &containerType)
}
