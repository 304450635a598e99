package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProjectType enumerates supported annotation project types.
type ProjectType string

const (
	ProjectTypeChatDisentanglement ProjectType = "chat_disentanglement"
)

// Project groups containers that belong to one annotation effort.
type Project struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        ProjectType `json:"type"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewProject creates a new project with immutable pattern.
func NewProject(name, description string, projectType ProjectType) Project {
	now := time.Now()
	return Project{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Type:        projectType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
