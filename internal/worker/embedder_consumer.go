package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"
)

// StageEmbed is the failure stage recorded for chunks that exhaust their
// attempts.
const StageEmbed = "embed"

// EmbedderConsumer embeds queued chunks and writes them to the index.
type EmbedderConsumer struct {
	embedder    Embedder
	store       VectorStore
	failures    FailureRecorder
	timeout     time.Duration
	maxAttempts uint16
}

type EmbedderOption func(*EmbedderConsumer)

// WithEmbedFailures records the chunk's source document once the chunk has
// been attempted maxAttempts times.
func WithEmbedFailures(f FailureRecorder) EmbedderOption {
	return func(c *EmbedderConsumer) { c.failures = f }
}

func WithEmbedTimeout(d time.Duration) EmbedderOption {
	return func(c *EmbedderConsumer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewEmbedderConsumer(e Embedder, s VectorStore, opts ...EmbedderOption) *EmbedderConsumer {
	c := &EmbedderConsumer{
		embedder:    e,
		store:       s,
		timeout:     60 * time.Second,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (h *EmbedderConsumer) HandleMessage(m *nsq.Message) error {
	var p IngestEmbedPayload
	if !decode(m, &p) {
		return nil
	}
	ctx := messageContext(p.CorrelationID)

	err := h.embed(ctx, p)
	if err == nil {
		slog.DebugContext(ctx, "chunk indexed", "chunk_id", p.Metadata.ChunkID)
		return nil
	}

	slog.ErrorContext(ctx, "chunk indexing failed", "chunk_id", p.Metadata.ChunkID, "attempt", m.Attempts, "error", err)
	if m.Attempts < h.maxAttempts || h.failures == nil {
		return err
	}
	if recErr := h.failures.RecordFailure(ctx, p.Metadata.SourcePath, StageEmbed, err); recErr != nil {
		return fmt.Errorf("record failure for %s: %w", p.Metadata.SourcePath, recErr)
	}
	return nil
}

func (h *EmbedderConsumer) embed(ctx context.Context, p IngestEmbedPayload) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	vector, err := h.embedder.Embed(ctx, p.Text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	chunk := Chunk{Text: p.Text, Metadata: p.Metadata, Vector: vector}
	if err := h.store.StoreChunks(ctx, []Chunk{chunk}); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// LogFailedMessage is called by go-nsq when a message exceeds the consumer's
// MaxAttempts without being handled.
func (h *EmbedderConsumer) LogFailedMessage(m *nsq.Message) {
	var p IngestEmbedPayload
	if decode(m, &p) {
		slog.Warn("chunk abandoned", "chunk_id", p.Metadata.ChunkID, "attempts", m.Attempts)
	}
}
