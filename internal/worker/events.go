package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"bunko/internal/corpus"
	"bunko/internal/middleware"

	"github.com/nsqio/go-nsq"
)

// IngestEmbedPayload carries one chunk from the ingestion pipeline to the
// embedder.
type IngestEmbedPayload struct {
	Text     string               `json:"text"`
	Metadata corpus.ChunkMetadata `json:"metadata"`

	CorrelationID string `json:"correlation_id"`
}

func (p IngestEmbedPayload) valid() bool {
	return p.Metadata.ChunkID != "" && p.Text != ""
}

// IngestDocumentPayload asks a worker to (re)ingest one archive file.
type IngestDocumentPayload struct {
	Path     string `json:"path"`
	FailedID string `json:"failed_id,omitempty"`

	CorrelationID string `json:"correlation_id"`
}

func (p IngestDocumentPayload) valid() bool {
	return p.Path != ""
}

type payload interface {
	valid() bool
}

// decode unmarshals m into v. It reports false for messages that can never
// succeed; those are acked rather than requeued.
func decode[T payload](m *nsq.Message, v *T) bool {
	if len(m.Body) == 0 {
		return false
	}
	if err := json.Unmarshal(m.Body, v); err != nil {
		slog.Error("poison pill: invalid json", "message_id", string(m.ID[:]), "error", err)
		return false
	}
	if !(*v).valid() {
		slog.Error("poison pill: incomplete payload", "message_id", string(m.ID[:]))
		return false
	}
	return true
}

func messageContext(correlationID string) context.Context {
	ctx := context.Background()
	if correlationID != "" {
		ctx = middleware.WithCorrelationID(ctx, correlationID)
	}
	return ctx
}
