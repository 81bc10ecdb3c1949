// Package stats reports corpus and ingestion counters.
package stats

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"bunko/internal/httpx"
)

// Counter is anything that can count its rows.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type ChunkCounter interface {
	CountChunks(ctx context.Context) (int, error)
}

type Handler struct {
	works  Counter
	failed Counter
	chunks ChunkCounter
}

func NewHandler(works, failed Counter, chunks ChunkCounter) *Handler {
	return &Handler{works: works, failed: failed, chunks: chunks}
}

// StatsResponse is the body of GET /api/stats. Chunks is null and
// "index" is listed in Unavailable when the vector index cannot be reached.
type StatsResponse struct {
	Works           int      `json:"works"`
	Chunks          *int     `json:"chunks"`
	FailedDocuments int      `json:"failed_documents"`
	Unavailable     []string `json:"unavailable,omitempty"`
}

type countResult struct {
	n   int
	err error
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var wg sync.WaitGroup
	var works, failed, chunks countResult
	wg.Add(3)
	go func() {
		defer wg.Done()
		works.n, works.err = h.works.Count(ctx)
	}()
	go func() {
		defer wg.Done()
		failed.n, failed.err = h.failed.Count(ctx)
	}()
	go func() {
		defer wg.Done()
		chunks.n, chunks.err = h.chunks.CountChunks(ctx)
	}()
	wg.Wait()

	for _, c := range []struct {
		what string
		err  error
	}{{"works", works.err}, {"failed documents", failed.err}} {
		if c.err != nil {
			slog.ErrorContext(ctx, "failed to count "+c.what, "error", c.err)
			httpx.Error(ctx, w, http.StatusInternalServerError, httpx.CodeInternal, "failed to count "+c.what)
			return
		}
	}

	resp := StatsResponse{Works: works.n, FailedDocuments: failed.n}
	if chunks.err != nil {
		slog.WarnContext(ctx, "failed to count chunks", "error", chunks.err)
		resp.Unavailable = append(resp.Unavailable, "index")
	} else {
		resp.Chunks = &chunks.n
	}
	httpx.Data(ctx, w, resp, nil)
}
