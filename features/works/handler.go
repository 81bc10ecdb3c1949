package works

import (
	"errors"
	"log/slog"
	"net/http"

	"bunko/internal/httpx"
	"bunko/internal/retrieval"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.service.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list works", "error", err)
		httpx.Error(ctx, w, http.StatusInternalServerError, httpx.CodeInternal, "failed to list works")
		return
	}
	httpx.Data(ctx, w, list, map[string]int{"count": len(list)})
}

// GetChunk returns one chunk with its expanded context. The chunk must
// belong to the work named in the path.
func (h *Handler) GetChunk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workID := r.PathValue("workId")
	chunkID := r.PathValue("chunkId")

	chunk, err := h.service.GetChunk(ctx, workID, chunkID)
	switch {
	case err == nil:
		httpx.JSON(ctx, w, http.StatusOK, chunk)
	case errors.Is(err, ErrNotFound):
		httpx.Error(ctx, w, http.StatusNotFound, httpx.CodeNotFound, "Chunk not found for this work")
	case errors.Is(err, retrieval.ErrSourceUnavailable):
		slog.WarnContext(ctx, "index unavailable", "error", err)
		httpx.Error(ctx, w, http.StatusServiceUnavailable, httpx.CodeUnavailable, "Database not available")
	default:
		slog.ErrorContext(ctx, "failed to get chunk", "work_id", workID, "chunk_id", chunkID, "error", err)
		httpx.Error(ctx, w, http.StatusInternalServerError, httpx.CodeInternal, err.Error())
	}
}
