package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContainerType enumerates supported data container types.
type ContainerType string

const (
	ContainerTypeChatRooms ContainerType = "chat_rooms"
)

// Container is one imported data set inside a project, e.g. a chat room.
type Container struct {
	ID         uuid.UUID     `json:"id"`
	ProjectID  uuid.UUID     `json:"project_id"`
	Name       string        `json:"name"`
	Type       ContainerType `json:"type"`
	SourceFile string        `json:"source_file,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// NewContainer creates a new container for a project.
func NewContainer(projectID uuid.UUID, name string, containerType ContainerType, sourceFile string) Container {
	now := time.Now()
	return Container{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Name:       name,
		Type:       containerType,
		SourceFile: sourceFile,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
