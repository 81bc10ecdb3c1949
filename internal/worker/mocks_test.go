package worker_test

import (
	"context"

	"bunko/internal/worker"

	"github.com/stretchr/testify/mock"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockVectorStore struct{ mock.Mock }

func (m *MockVectorStore) StoreChunks(ctx context.Context, chunks []worker.Chunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockVectorStore) DeleteWork(ctx context.Context, workID string) error {
	args := m.Called(ctx, workID)
	return args.Error(0)
}

type MockProcessor struct{ mock.Mock }

func (m *MockProcessor) ProcessFile(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

type MockFailureRecorder struct{ mock.Mock }

func (m *MockFailureRecorder) RecordFailure(ctx context.Context, path, stage string, cause error) error {
	args := m.Called(ctx, path, stage, cause)
	return args.Error(0)
}
