package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jsalverda/disentangle/internal/domain"
	"github.com/jsalverda/disentangle/internal/repository"
)

// maxMultipartMemory bounds the in-memory portion of multipart parsing.
const maxMultipartMemory = 16 << 20

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/validate"):
		h.handleValidate(w, r)
		return
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		h.handleCancel(w, r)
		return
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/retry"):
		h.handleRetry(w, r)
		return
	case r.Method == http.MethodPost:
		h.handleSubmit(w, r)
		return
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/errors"):
		h.handleListErrors(w, r)
		return
	case r.Method == http.MethodGet:
		if _, ok := trailingJobID(r.URL.Path); ok {
			h.handleStatus(w, r)
			return
		}
		h.handleList(w, r)
		return
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		http.Error(w, fmt.Sprintf("invalid multipart payload: %v", err), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	projectID, err := uuid.Parse(strings.TrimSpace(r.FormValue("project_id")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid project_id: %v", err), http.StatusBadRequest)
		return
	}

	req := SubmitRequest{
		ProjectID:     projectID,
		ContainerName: r.FormValue("container_name"),
		FileName:      header.Filename,
		Data:          file,
	}
	if raw := strings.TrimSpace(r.FormValue("container_id")); raw != "" {
		containerID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid container_id: %v", err), http.StatusBadRequest)
			return
		}
		req.ContainerID = &containerID
	}
	if raw := strings.TrimSpace(r.FormValue("batch_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "batch_size must be a positive integer", http.StatusBadRequest)
			return
		}
		req.BatchSize = parsed
	}
	mapping, err := parseMappingField(r.FormValue("column_mapping"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Mapping = mapping

	job, err := h.service.Submit(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusAccepted, BuildProgress(job))
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		http.Error(w, fmt.Sprintf("invalid multipart payload: %v", err), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mapping, err := parseMappingField(r.FormValue("column_mapping"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.service.Validate(header.Filename, mapping, file)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := trailingJobID(r.URL.Path)
	if !ok {
		http.Error(w, "missing import identifier", http.StatusBadRequest)
		return
	}
	job, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, BuildProgress(job))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID, ok := trailingJobID(strings.TrimSuffix(r.URL.Path, "/cancel"))
	if !ok {
		http.Error(w, "missing import identifier", http.StatusBadRequest)
		return
	}
	job, err := h.service.CancelJob(r.Context(), jobID)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, BuildProgress(job))
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	jobID, ok := trailingJobID(strings.TrimSuffix(r.URL.Path, "/retry"))
	if !ok {
		http.Error(w, "missing import identifier", http.StatusBadRequest)
		return
	}
	job, err := h.service.RetryJob(r.Context(), jobID)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusAccepted, BuildProgress(job))
}

func (h *Handler) handleListErrors(w http.ResponseWriter, r *http.Request) {
	jobID, ok := trailingJobID(strings.TrimSuffix(r.URL.Path, "/errors"))
	if !ok {
		http.Error(w, "missing import identifier", http.StatusBadRequest)
		return
	}
	if _, err := h.service.GetJob(r.Context(), jobID); err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	limit, offset, err := parsePagination(r, 200)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logs, err := h.service.ListLogs(r.Context(), jobID, limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("list import errors: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
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
	statuses := parseStatuses(query["status"])
	limit, offset, err := parsePagination(r, 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	jobs, err := h.service.ListJobs(r.Context(), containerID, statuses, limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("list imports: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func parseMappingField(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	mapping := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return nil, fmt.Errorf("invalid column_mapping: %v", err)
	}
	return mapping, nil
}

func parsePagination(r *http.Request, defaultLimit int) (int, int, error) {
	query := r.URL.Query()
	limit := defaultLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, errors.New("offset must be zero or positive")
		}
		offset = parsed
	}
	return limit, offset, nil
}

func parseStatuses(values []string) []domain.ImportJobStatus {
	if len(values) == 0 {
		return nil
	}
	result := make([]domain.ImportJobStatus, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			switch domain.ImportJobStatus(trimmed) {
			case domain.ImportJobStatusPending,
				domain.ImportJobStatusProcessing,
				domain.ImportJobStatusCompleted,
				domain.ImportJobStatusFailed,
				domain.ImportJobStatusCancelled:
				result = append(result, domain.ImportJobStatus(trimmed))
			}
		}
	}
	return result
}

// trailingJobID extracts a UUID from the final path segment. A non-UUID
// final segment (e.g. the collection root) reports ok=false.
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

func statusForError(err error) int {
	var schemaErr *SchemaError
	var stateErr *InvalidStateError
	var requestErr *RequestError
	switch {
	case errors.As(err, &schemaErr), errors.Is(err, ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.As(err, &requestErr):
		return http.StatusBadRequest
	case errors.As(err, &stateErr):
		return http.StatusConflict
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
