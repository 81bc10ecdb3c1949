package works

import (
	"context"
	"sync"
	"time"

	"bunko/internal/corpus"
	"bunko/internal/retrieval"
)

const DefaultListTTL = 5 * time.Minute

// ChunkStore looks up a single indexed chunk. It returns (nil, nil) when the
// chunk does not exist.
type ChunkStore interface {
	GetChunk(ctx context.Context, chunkID string) (*retrieval.IndexHit, error)
}

// Service owns the memoized work list. The list is reloaded when older than
// the TTL or after Invalidate.
type Service struct {
	repo   Repository
	chunks ChunkStore
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	cached  []Work
	expires time.Time
}

func NewService(repo Repository, chunks ChunkStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultListTTL
	}
	return &Service{repo: repo, chunks: chunks, ttl: ttl, now: time.Now}
}

func (s *Service) List(ctx context.Context) ([]Work, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Before(s.expires) {
		return s.cached, nil
	}

	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Work{}
	}
	s.cached = list
	s.expires = s.now().Add(s.ttl)
	return list, nil
}

// Invalidate drops the memoized list.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

// UpsertWork writes through to the repository and invalidates the list.
func (s *Service) UpsertWork(ctx context.Context, w corpus.WorkInfo, chunkCount int) error {
	if err := s.repo.UpsertWork(ctx, w, chunkCount); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// GetChunk returns a chunk that belongs to workID.
func (s *Service) GetChunk(ctx context.Context, workID, chunkID string) (*ChunkView, error) {
	if s.chunks == nil {
		return nil, retrieval.ErrSourceUnavailable
	}
	hit, err := s.chunks.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if hit == nil || hit.Metadata.WorkID != workID {
		return nil, ErrNotFound
	}

	start, end := hit.Metadata.OffsetStart, hit.Metadata.OffsetEnd
	return &ChunkView{
		WorkID:      workID,
		ChunkID:     chunkID,
		Title:       hit.Metadata.Title,
		Author:      hit.Metadata.Author,
		Text:        hit.Document,
		ContextText: hit.Metadata.ContextText,
		OffsetStart: &start,
		OffsetEnd:   &end,
	}, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
