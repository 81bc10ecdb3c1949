// Package ollama embeds text with a local Ollama server through langchaingo.
package ollama

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	DefaultModel     = "nomic-embed-text:latest"
	DefaultServerURL = "http://localhost:11434"
)

type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

func NewEmbedder(serverURL, model string) (*Embedder, error) {
	if model == "" {
		model = DefaultModel
	}
	if serverURL == "" {
		serverURL = DefaultServerURL
	}

	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}

	// Line breaks carry meaning in the archive text, so keep them.
	emb, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: emb,
		model:    model,
		logger:   slog.Default().With("component", "ollama-embedder"),
	}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.logger.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	return e.embedder.EmbedQuery(ctx, text)
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.DebugContext(ctx, "embedding batch", "model", e.model, "size", len(texts))
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}
