package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"
)

const (
	documentTimeout = 10 * time.Minute

	// DefaultMaxAttempts is how often a document is retried before it is
	// recorded as failed again.
	DefaultMaxAttempts = 5
)

// FailureRecorder persists a document that could not be ingested.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, path, stage string, cause error) error
}

// DocumentConsumer re-ingests single archive files, typically a failed
// document the operator asked to retry.
type DocumentConsumer struct {
	processor   DocumentProcessor
	failures    FailureRecorder
	maxAttempts uint16
}

func NewDocumentConsumer(p DocumentProcessor, f FailureRecorder) *DocumentConsumer {
	return &DocumentConsumer{
		processor:   p,
		failures:    f,
		maxAttempts: DefaultMaxAttempts,
	}
}

func (h *DocumentConsumer) HandleMessage(m *nsq.Message) error {
	var payload IngestDocumentPayload
	if !decode(m, &payload) {
		return nil
	}
	ctx := messageContext(payload.CorrelationID)

	runCtx, cancel := context.WithTimeout(ctx, documentTimeout)
	defer cancel()

	err := h.processor.ProcessFile(runCtx, payload.Path)
	if err == nil {
		slog.InfoContext(ctx, "document ingested", "path", payload.Path, "failed_id", payload.FailedID)
		return nil
	}

	slog.ErrorContext(ctx, "document ingestion failed", "path", payload.Path, "attempt", m.Attempts, "error", err)
	if m.Attempts < h.maxAttempts {
		return err
	}

	if h.failures != nil {
		if recErr := h.failures.RecordFailure(ctx, payload.Path, "retry", err); recErr != nil {
			slog.ErrorContext(ctx, "failed to record failure", "path", payload.Path, "error", recErr)
			return recErr
		}
	}
	return nil
}
