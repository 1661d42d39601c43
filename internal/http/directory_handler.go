package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/booking-system/services/booking-service-go/internal/directory"
)

// DirectoryRepository is the master-data surface exposed alongside the engine.
type DirectoryRepository interface {
	UpsertClient(ctx context.Context, id, name string) (directory.Client, error)
	UpsertSpace(ctx context.Context, id, name string) (directory.Space, error)
	UpsertResource(ctx context.Context, id, name string, totalQuantity int) (directory.Resource, error)
	GetResource(ctx context.Context, id string) (directory.Resource, error)
	DeactivateClient(ctx context.Context, id string) error
	DeactivateSpace(ctx context.Context, id string) error
	DeactivateResource(ctx context.Context, id string) error
}

type DirectoryHandler struct {
	repo   DirectoryRepository
	logger *log.Logger
}

func NewDirectoryHandler(repo DirectoryRepository, logger *log.Logger) *DirectoryHandler {
	return &DirectoryHandler{repo: repo, logger: logger}
}

type upsertEntityRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TotalQuantity int    `json:"totalQuantity,omitempty"`
}

func (h *DirectoryHandler) UpsertClient(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeUpsert(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.repo.UpsertClient(ctx, req.ID, req.Name)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *DirectoryHandler) UpsertSpace(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeUpsert(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	s, err := h.repo.UpsertSpace(ctx, req.ID, req.Name)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *DirectoryHandler) UpsertResource(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeUpsert(w, r)
	if !ok {
		return
	}
	if req.TotalQuantity < 0 {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "totalQuantity must not be negative")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	res, err := h.repo.UpsertResource(ctx, req.ID, req.Name, req.TotalQuantity)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DirectoryHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	res, err := h.repo.GetResource(ctx, chi.URLParam(r, "resourceId"))
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DirectoryHandler) DeactivateClient(w http.ResponseWriter, r *http.Request) {
	h.deactivate(w, r, h.repo.DeactivateClient, chi.URLParam(r, "clientId"))
}

func (h *DirectoryHandler) DeactivateSpace(w http.ResponseWriter, r *http.Request) {
	h.deactivate(w, r, h.repo.DeactivateSpace, chi.URLParam(r, "spaceId"))
}

func (h *DirectoryHandler) DeactivateResource(w http.ResponseWriter, r *http.Request) {
	h.deactivate(w, r, h.repo.DeactivateResource, chi.URLParam(r, "resourceId"))
}

func (h *DirectoryHandler) deactivate(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error, id string) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := op(ctx, id); err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": directory.StatusInactive})
}

func (h *DirectoryHandler) decodeUpsert(w http.ResponseWriter, r *http.Request) (upsertEntityRequest, bool) {
	var req upsertEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "invalid request body")
		return req, false
	}
	if req.ID == "" {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "id is required")
		return req, false
	}
	return req, true
}

func (h *DirectoryHandler) writeRepoError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Printf("internal error: %v", err)
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}
