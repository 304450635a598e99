package projects

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jsalverda/disentangle/internal/domain"
	"github.com/jsalverda/disentangle/internal/repository"
)

// Handler exposes the minimal project surface imports hang off of.
type Handler struct {
	repo repository.ProjectRepository
}

func NewHTTPHandler(repo repository.ProjectRepository) http.Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost:
		h.handleCreate(w, r)
		return
	case r.Method == http.MethodGet:
		if id, ok := trailingID(r.URL.Path); ok {
			h.handleGet(w, r, id)
			return
		}
		h.handleList(w, r)
		return
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
}

type createPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	projectType := domain.ProjectTypeChatDisentanglement
	if raw := strings.TrimSpace(payload.Type); raw != "" {
		projectType = domain.ProjectType(raw)
	}
	project, err := h.repo.Create(r.Context(), domain.NewProject(name, payload.Description, projectType))
	if err != nil {
		http.Error(w, fmt.Sprintf("create project: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	project, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var projectType *domain.ProjectType
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		value := domain.ProjectType(raw)
		projectType = &value
	}
	projects, err := h.repo.List(r.Context(), projectType)
	if err != nil {
		http.Error(w, fmt.Sprintf("list projects: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func trailingID(path string) (uuid.UUID, bool) {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx == -1 || idx == len(path)-1 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(path[idx+1:])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
