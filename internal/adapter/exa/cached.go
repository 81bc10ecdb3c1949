package exa

import (
	"context"
	"log/slog"

	"bunko/internal/retrieval"
)

// CachedSearcher consults the cache before calling the wrapped source.
// Cache failures are logged and never fail a search.
type CachedSearcher struct {
	next   retrieval.WebSource
	cache  *Cache
	logger *slog.Logger
}

func NewCachedSearcher(next retrieval.WebSource, cache *Cache) *CachedSearcher {
	return &CachedSearcher{
		next:   next,
		cache:  cache,
		logger: slog.Default().With("component", "exa-cache"),
	}
}

func (s *CachedSearcher) Search(ctx context.Context, query string, k int) ([]retrieval.WebHit, error) {
	hits, ok, err := s.cache.Get(ctx, query, k)
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed", "error", err)
	}
	if ok {
		s.logger.InfoContext(ctx, "cache hit", "query", preview(query))
		return hits, nil
	}

	hits, err = s.next.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	// The caller's deadline may already be gone; the write should still land.
	if err := s.cache.Set(context.WithoutCancel(ctx), query, k, hits); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "error", err)
	}
	return hits, nil
}

func preview(q string) string {
	r := []rune(q)
	if len(r) > 50 {
		return string(r[:50]) + "..."
	}
	return q
}
