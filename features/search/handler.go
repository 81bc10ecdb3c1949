// Package search serves the federated search endpoint.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"bunko/internal/httpx"
	"bunko/internal/retrieval"
)

const (
	defaultInternal = 5
	defaultExternal = 3
	maxInternal     = 20
	maxExternal     = 10
	maxQueryLen     = 1000
	maxTimeoutMs    = 60000
)

type Searcher interface {
	Search(ctx context.Context, req retrieval.Request) retrieval.SearchResults
}

// Request is the POST /api/search body. Pointer fields distinguish an
// omitted value from an explicit zero.
type Request struct {
	Query      string `json:"query"`
	KInternal  *int   `json:"k_internal"`
	KWeb       *int   `json:"k_web"`
	IncludeWeb *bool  `json:"include_web"`
	TimeoutMs  *int   `json:"timeout_ms"`
}

type Response struct {
	Query string `json:"query"`
	retrieval.SearchResults
}

type Handler struct {
	searcher Searcher
}

func NewHandler(s Searcher) *Handler {
	return &Handler{searcher: s}
}

// toRequest validates the body and applies defaults.
func (r Request) toRequest() (retrieval.Request, error) {
	out := retrieval.Request{
		Query:           r.Query,
		InternalCount:   defaultInternal,
		ExternalCount:   defaultExternal,
		IncludeExternal: true,
	}

	if strings.TrimSpace(r.Query) == "" {
		return out, fmt.Errorf("query is required")
	}
	if utf8.RuneCountInString(r.Query) > maxQueryLen {
		return out, fmt.Errorf("query must be at most %d characters", maxQueryLen)
	}
	if r.KInternal != nil {
		if *r.KInternal < 1 || *r.KInternal > maxInternal {
			return out, fmt.Errorf("k_internal must be between 1 and %d", maxInternal)
		}
		out.InternalCount = *r.KInternal
	}
	if r.KWeb != nil {
		if *r.KWeb < 0 || *r.KWeb > maxExternal {
			return out, fmt.Errorf("k_web must be between 0 and %d", maxExternal)
		}
		out.ExternalCount = *r.KWeb
	}
	if r.IncludeWeb != nil {
		out.IncludeExternal = *r.IncludeWeb
	}
	if r.TimeoutMs != nil {
		if *r.TimeoutMs < 1 || *r.TimeoutMs > maxTimeoutMs {
			return out, fmt.Errorf("timeout_ms must be between 1 and %d", maxTimeoutMs)
		}
		out.Timeout = time.Duration(*r.TimeoutMs) * time.Millisecond
	}
	return out, nil
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body Request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.Error(ctx, w, http.StatusBadRequest, httpx.CodeValidation, "invalid JSON body")
		return
	}

	req, err := body.toRequest()
	if err != nil {
		httpx.Error(ctx, w, http.StatusUnprocessableEntity, httpx.CodeValidation, err.Error())
		return
	}

	slog.InfoContext(ctx, "search request", "query_len", utf8.RuneCountInString(req.Query),
		"k_internal", req.InternalCount, "k_web", req.ExternalCount, "include_web", req.IncludeExternal)

	res := h.searcher.Search(ctx, req)
	if res.Internal == nil {
		res.Internal = []retrieval.SearchResultItem{}
	}
	if res.External == nil {
		res.External = []retrieval.SearchResultItem{}
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}

	httpx.JSON(ctx, w, http.StatusOK, Response{Query: req.Query, SearchResults: res})
}
