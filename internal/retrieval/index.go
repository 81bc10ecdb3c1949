package retrieval

import (
	"context"
	"fmt"
)

// IndexSearcher embeds the query text and looks it up in the vector index.
type IndexSearcher struct {
	embedder Embedder
	index    VectorIndex
}

func NewIndexSearcher(e Embedder, idx VectorIndex) *IndexSearcher {
	return &IndexSearcher{embedder: e, index: idx}
}

func (s *IndexSearcher) Query(ctx context.Context, query string, k int) ([]IndexHit, error) {
	if s.embedder == nil || s.index == nil {
		return nil, ErrSourceUnavailable
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.index.Query(ctx, vec, k)
}
