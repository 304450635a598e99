package rooms

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jsalverda/disentangle/internal/repository"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

// ServeHTTP routes the rooms surface. Paths are rooted at /rooms/:
//
//	GET  /rooms?project_id=...
//	GET  /rooms/{id}
//	GET  /rooms/{id}/turns
//	GET  /rooms/{id}/threads
//	POST /rooms/{id}/turns/{turnId}/thread
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path)
	switch {
	case r.Method == http.MethodGet && len(segments) == 1:
		h.handleListRooms(w, r)
		return
	case r.Method == http.MethodGet && len(segments) == 2:
		h.handleGetRoom(w, r, segments[1])
		return
	case r.Method == http.MethodGet && len(segments) == 3 && segments[2] == "turns":
		h.handleListTurns(w, r, segments[1])
		return
	case r.Method == http.MethodGet && len(segments) == 3 && segments[2] == "threads":
		h.handleListThreads(w, r, segments[1])
		return
	case r.Method == http.MethodPost && len(segments) == 5 && segments[2] == "turns" && segments[4] == "thread":
		h.handleAnnotateThread(w, r, segments[1], segments[3])
		return
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
}

func (h *Handler) handleListRooms(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if raw == "" {
		http.Error(w, "project_id is required", http.StatusBadRequest)
		return
	}
	projectID, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid project_id: %v", err), http.StatusBadRequest)
		return
	}
	containers, err := h.service.ListContainers(r.Context(), projectID)
	if err != nil {
		http.Error(w, fmt.Sprintf("list rooms: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, containers)
}

func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request, rawID string) {
	containerID, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid room identifier: %v", err), http.StatusBadRequest)
		return
	}
	container, err := h.service.GetContainer(r.Context(), containerID)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, container)
}

func (h *Handler) handleListTurns(w http.ResponseWriter, r *http.Request, rawID string) {
	containerID, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid room identifier: %v", err), http.StatusBadRequest)
		return
	}
	query := r.URL.Query()
	limit := 100
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
	page, err := h.service.ListTurns(r.Context(), containerID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleListThreads(w http.ResponseWriter, r *http.Request, rawID string) {
	containerID, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid room identifier: %v", err), http.StatusBadRequest)
		return
	}
	threads, err := h.service.ListThreads(r.Context(), containerID)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

type annotatePayload struct {
	ThreadID string `json:"thread_id"`
}

func (h *Handler) handleAnnotateThread(w http.ResponseWriter, r *http.Request, rawID, turnID string) {
	defer r.Body.Close()
	containerID, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid room identifier: %v", err), http.StatusBadRequest)
		return
	}
	var payload annotatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.ThreadID) == "" {
		http.Error(w, "thread_id is required", http.StatusBadRequest)
		return
	}
	annotation, err := h.service.AnnotateThread(r.Context(), containerID, turnID, strings.TrimSpace(payload.ThreadID))
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, annotation)
}

func pathSegments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func statusForError(err error) int {
	if errors.Is(err, repository.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
