package job

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"bunko/internal/httpx"
)

const maxListLimit = 500

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// RetryResult is the body of a successful retry.
type RetryResult struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Status string `json:"status"`
}

// List serves GET /api/jobs/failed. Optional query parameters: stage, limit.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	f := Filter{Stage: r.URL.Query().Get("stage")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			httpx.Error(ctx, w, http.StatusBadRequest, httpx.CodeValidation, "limit must be between 1 and "+strconv.Itoa(maxListLimit))
			return
		}
		f.Limit = n
	}

	jobs, err := h.service.List(ctx, f)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list failed documents", "stage", f.Stage, "error", err)
		httpx.Error(ctx, w, http.StatusInternalServerError, httpx.CodeInternal, "failed to list failed documents")
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}
	httpx.Data(ctx, w, jobs, map[string]int{"count": len(jobs)})
}

// Retry serves POST /api/jobs/{id}/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	job, err := h.service.Retry(ctx, id)
	switch {
	case err == nil:
		httpx.Data(ctx, w, RetryResult{ID: job.ID, Path: job.Path, Status: "queued"}, nil)
	case errors.Is(err, ErrNotFound):
		httpx.Error(ctx, w, http.StatusNotFound, httpx.CodeNotFound, "Failed document not found")
	case errors.Is(err, ErrPublishTimeout):
		slog.WarnContext(ctx, "retry publish timed out", "id", id)
		httpx.Error(ctx, w, http.StatusServiceUnavailable, httpx.CodeUnavailable, err.Error())
	default:
		slog.ErrorContext(ctx, "failed to retry document", "id", id, "error", err)
		httpx.Error(ctx, w, http.StatusInternalServerError, httpx.CodeInternal, err.Error())
	}
}
