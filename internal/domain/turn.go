package domain

import (
	"time"

	"github.com/google/uuid"
)

// Turn is one chat message inside a container. A turn belongs to exactly one
// container; Sequence preserves file order from the import.
type Turn struct {
	ID          uuid.UUID         `json:"id"`
	ContainerID uuid.UUID         `json:"container_id"`
	TurnID      string            `json:"turn_id"`
	UserID      string            `json:"user_id"`
	Content     string            `json:"content"`
	ReplyTo     *string           `json:"reply_to,omitempty"`
	Sequence    int               `json:"sequence"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewTurn creates a turn record for a container.
func NewTurn(containerID uuid.UUID, turnID, userID, content string, replyTo *string, sequence int) Turn {
	return Turn{
		ID:          uuid.New(),
		ContainerID: containerID,
		TurnID:      turnID,
		UserID:      userID,
		Content:     content,
		ReplyTo:     replyTo,
		Sequence:    sequence,
		CreatedAt:   time.Now(),
	}
}
