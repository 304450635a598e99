package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnnotationKind enumerates supported annotation kinds.
type AnnotationKind string

const (
	AnnotationKindThread AnnotationKind = "thread"
)

// AnnotationSource records whether an annotation was derived from an import
// or entered later by a human.
type AnnotationSource string

const (
	AnnotationSourceLoaded  AnnotationSource = "loaded"
	AnnotationSourceCreated AnnotationSource = "created"
)

// Annotation links a turn to a conversation thread identifier.
type Annotation struct {
	ID             uuid.UUID        `json:"id"`
	TurnID         uuid.UUID        `json:"turn_id"`
	Kind           AnnotationKind   `json:"kind"`
	ThreadID       string           `json:"thread_id"`
	Source         AnnotationSource `json:"source"`
	OriginalColumn string           `json:"original_column,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewThreadAnnotation creates a thread annotation for a turn.
func NewThreadAnnotation(turnID uuid.UUID, threadID string, source AnnotationSource, originalColumn string) Annotation {
	now := time.Now()
	return Annotation{
		ID:             uuid.New(),
		TurnID:         turnID,
		Kind:           AnnotationKindThread,
		ThreadID:       threadID,
		Source:         source,
		OriginalColumn: originalColumn,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
