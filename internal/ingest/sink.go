package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"bunko/internal/config"
	"bunko/internal/corpus"
	"bunko/internal/middleware"
	"bunko/internal/worker"
)

const DefaultEmbedBatchSize = 100

// Publisher is the subset of *nsq.Producer used by QueueSink.
type Publisher interface {
	MultiPublish(topic string, body [][]byte) error
}

// QueueSink hands chunks to the embedder workers over NSQ.
type QueueSink struct {
	publisher Publisher
	topic     string
}

func NewQueueSink(p Publisher) *QueueSink {
	return &QueueSink{publisher: p, topic: config.TopicIngestEmbed}
}

func (s *QueueSink) WriteChunks(ctx context.Context, work corpus.WorkInfo, chunks []corpus.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	correlationID := middleware.GetCorrelationID(ctx)
	bodies := make([][]byte, 0, len(chunks))
	for _, c := range chunks {
		b, err := json.Marshal(worker.IngestEmbedPayload{
			Text:          c.Text,
			Metadata:      c.Metadata,
			CorrelationID: correlationID,
		})
		if err != nil {
			return err
		}
		bodies = append(bodies, b)
	}

	if err := s.publisher.MultiPublish(s.topic, bodies); err != nil {
		return fmt.Errorf("publish %d chunks of work %s: %w", len(bodies), work.WorkID, err)
	}
	return nil
}

// IndexSink embeds and stores chunks in-process. Existing chunks of the
// work are removed first so re-ingesting a work replaces it.
type IndexSink struct {
	embedder  worker.BatchEmbedder
	store     worker.VectorStore
	batchSize int
	logger    *slog.Logger
}

func NewIndexSink(e worker.BatchEmbedder, s worker.VectorStore, batchSize int) *IndexSink {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	return &IndexSink{
		embedder:  e,
		store:     s,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "index-sink"),
	}
}

func (s *IndexSink) WriteChunks(ctx context.Context, work corpus.WorkInfo, chunks []corpus.Chunk) error {
	if err := s.store.DeleteWork(ctx, work.WorkID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vectors))
		}

		out := make([]worker.Chunk, len(batch))
		for i, c := range batch {
			out[i] = worker.Chunk{Text: c.Text, Metadata: c.Metadata, Vector: vectors[i]}
		}
		if err := s.store.StoreChunks(ctx, out); err != nil {
			return fmt.Errorf("store batch %d-%d: %w", start, end, err)
		}

		s.logger.DebugContext(ctx, "batch indexed", "work_id", work.WorkID, "from", start, "to", end)
	}
	return nil
}
