package worker

import (
	"context"

	"bunko/internal/corpus"
)

// Chunk is an embedded chunk ready for the index.
type Chunk struct {
	Text     string
	Metadata corpus.ChunkMetadata
	Vector   []float32
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder embeds many texts in one call, preserving order.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorStore interface {
	StoreChunks(ctx context.Context, chunks []Chunk) error
	DeleteWork(ctx context.Context, workID string) error
}

// DocumentProcessor ingests a single file from the archive checkout.
type DocumentProcessor interface {
	ProcessFile(ctx context.Context, path string) error
}
