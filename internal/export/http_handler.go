package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jsalverda/disentangle/internal/domain"
	"github.com/jsalverda/disentangle/internal/repository"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/files/"):
		h.handleDownload(w, r)
		return
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		h.handleCancel(w, r)
		return
	case r.Method == http.MethodPost:
		h.handleQueue(w, r)
		return
	case r.Method == http.MethodGet:
		if id, ok := trailingJobID(r.URL.Path); ok {
			h.handleGetJob(w, r, id)
			return
		}
		h.handleListJobs(w, r)
		return
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
}

type queuePayload struct {
	ContainerID string `json:"container_id"`
	Format      string `json:"format"`
}

// jobView is an export job plus its signed download URL when available.
type jobView struct {
	domain.ExportJob
	DownloadURL *string `json:"download_url,omitempty"`
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload queuePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	containerID, err := uuid.Parse(strings.TrimSpace(payload.ContainerID))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid container_id: %v", err), http.StatusBadRequest)
		return
	}
	format := domain.ExportFormat(strings.ToLower(strings.TrimSpace(payload.Format)))
	job, err := h.service.QueueExport(r.Context(), containerID, format)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, repository.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusAccepted, jobView{ExportJob: job})
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	job, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, repository.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	view := jobView{ExportJob: job}
	if download, err := h.service.BuildDownloadURL(job); err == nil {
		view.DownloadURL = download
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := trailingJobID(strings.TrimSuffix(r.URL.Path, "/cancel"))
	if !ok {
		http.Error(w, "missing export identifier", http.StatusBadRequest)
		return
	}
	job, err := h.service.CancelJob(r.Context(), id)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, repository.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, jobView{ExportJob: job})
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var containerID *uuid.UUID
	if raw := strings.TrimSpace(query.Get("container_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid container_id: %v", err), http.StatusBadRequest)
			return
		}
		containerID = &id
	}
	limit := 20
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "offset must be zero or positive", http.StatusBadRequest)
			return
		}
		offset = parsed
	}
	jobs, err := h.service.ListJobs(r.Context(), containerID, limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("list exports: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID, ok := trailingJobID(r.URL.Path)
	if !ok {
		http.Error(w, "missing export identifier", http.StatusBadRequest)
		return
	}
	job, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		http.Error(w, fmt.Sprintf("job not found: %v", err), http.StatusNotFound)
		return
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if err := h.service.ValidateDownloadToken(jobID, token); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	file, err := h.service.OpenJobFile(job)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer file.Close()

	filename := filepath.Base(strings.TrimSpace(*job.FilePath))
	contentType := "text/csv"
	if job.Format == domain.ExportFormatJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeContent(w, r, filename, job.UpdatedAt, file)
}

func trailingJobID(path string) (uuid.UUID, bool) {
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
