package retrieval

import (
	"context"
	"errors"

	"bunko/internal/corpus"
)

var (
	// ErrSourceUnavailable is returned when a retrieval source cannot be reached.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrDeadlineExceeded marks a search that ran out of time.
	ErrDeadlineExceeded = errors.New("search deadline exceeded")

	// ErrCanceled marks a search abandoned by its caller.
	ErrCanceled = errors.New("search canceled")
)

// Source tags where a result came from. The values are part of the HTTP
// contract.
type Source string

const (
	SourceInternal Source = "aozora"
	SourceExternal Source = "web"
)

// SearchResultItem is a single hit. Internal hits fill the work fields,
// external hits fill URL and Snippet.
type SearchResultItem struct {
	ID     string  `json:"id"`
	Source Source  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Title  string  `json:"title,omitempty"`

	Author      string `json:"author,omitempty"`
	WorkID      string `json:"work_id,omitempty"`
	OffsetStart *int   `json:"offset_start,omitempty"`
	OffsetEnd   *int   `json:"offset_end,omitempty"`
	ContextText string `json:"context_text,omitempty"`

	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchResults is the outcome of a federated search.
type SearchResults struct {
	Internal  []SearchResultItem `json:"aozora_results"`
	External  []SearchResultItem `json:"web_results"`
	ElapsedMs int64              `json:"timing_ms"`
	Errors    []string           `json:"errors"`
}

// IndexHit is a raw nearest-neighbour match from the vector index.
type IndexHit struct {
	ID       string
	Document string
	Metadata corpus.ChunkMetadata
	Distance float64
}

// WebHit is a raw result from a web search provider.
type WebHit struct {
	URL   string   `json:"url"`
	Title string   `json:"title"`
	Text  string   `json:"text"`
	Score *float64 `json:"score,omitempty"`
}

// InternalSource answers queries against the indexed archive.
type InternalSource interface {
	Query(ctx context.Context, query string, k int) ([]IndexHit, error)
}

// WebSource answers queries against the open web.
type WebSource interface {
	Search(ctx context.Context, query string, k int) ([]WebHit, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the nearest-neighbour lookup behind IndexSearcher.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, k int) ([]IndexHit, error)
}
