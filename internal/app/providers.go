package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"bunko/internal/adapter/exa"
	"bunko/internal/adapter/gemini"
	"bunko/internal/adapter/ollama"
	"bunko/internal/config"
	"bunko/internal/retrieval"
	"bunko/internal/worker"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewEmbedder builds the embedding backend named by EMBEDDING_PROVIDER.
func NewEmbedder(ctx context.Context, cfg *config.Config) (worker.BatchEmbedder, io.Closer, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingOllama:
		e, err := ollama.NewEmbedder(cfg.OllamaURL, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, err
		}
		return e, nopCloser{}, nil
	case config.EmbeddingGemini, "":
		e, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, err
		}
		return e, e, nil
	default:
		return nil, nil, fmt.Errorf("%w: EMBEDDING_PROVIDER=%q", config.ErrInvalidValue, cfg.EmbeddingProvider)
	}
}

// NewWebSource builds the cached Exa searcher. It returns a nil source when
// no API key is configured. A cache that cannot be opened downgrades to
// uncached search.
func NewWebSource(cfg *config.Config) (retrieval.WebSource, io.Closer, error) {
	if cfg.ExaAPIKey == "" {
		slog.Info("web search disabled: EXA_API_KEY not set")
		return nil, nopCloser{}, nil
	}

	client, err := exa.NewClient(cfg.ExaAPIKey,
		exa.WithBaseURL(cfg.ExaBaseURL),
		exa.WithRateLimit(cfg.ExaRateLimit),
	)
	if err != nil {
		return nil, nil, err
	}

	cache, err := exa.OpenCache(cfg.ExaCachePath, cfg.ExaCacheTTL())
	if err != nil {
		slog.Warn("web search cache unavailable, continuing uncached", "path", cfg.ExaCachePath, "error", err)
		return client, nopCloser{}, nil
	}
	return exa.NewCachedSearcher(client, cache), cache, nil
}
