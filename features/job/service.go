package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"bunko/internal/config"
	"bunko/internal/middleware"
	"bunko/internal/worker"

	"github.com/google/uuid"
)

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	logger         *slog.Logger
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger, publishTimeout: 5 * time.Second}
}

func (s *Service) List(ctx context.Context, f Filter) ([]Job, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Retry queues the document for re-ingestion and removes the failure. A
// document that fails again is recorded anew by the worker. Ids that are not
// UUIDs are reported as ErrNotFound without touching the database.
func (s *Service) Retry(ctx context.Context, id string) (*Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(worker.IngestDocumentPayload{
		Path:          job.Path,
		FailedID:      job.ID,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, body); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "failed document requeued", "id", id, "path", job.Path, "retries", job.Retries)
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return job, nil
}

// publish bounds go-nsq's Publish, which takes no context.
func (s *Service) publish(ctx context.Context, body []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicIngestDocument, body)
	}()

	timer := time.NewTimer(s.publishTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
