package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bunko/internal/config"
	"bunko/internal/corpus"
	"bunko/internal/ingest"
	"bunko/internal/middleware"
	"bunko/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) MultiPublish(topic string, body [][]byte) error {
	return m.Called(topic, body).Error(0)
}

type MockBatchEmbedder struct{ mock.Mock }

func (m *MockBatchEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockVectorStore struct{ mock.Mock }

func (m *MockVectorStore) StoreChunks(ctx context.Context, chunks []worker.Chunk) error {
	return m.Called(ctx, chunks).Error(0)
}

func (m *MockVectorStore) DeleteWork(ctx context.Context, workID string) error {
	return m.Called(ctx, workID).Error(0)
}

func sampleChunks(n int) []corpus.Chunk {
	out := make([]corpus.Chunk, n)
	for i := range out {
		out[i] = corpus.Chunk{
			Text:     string(rune('あ' + i)),
			Metadata: corpus.ChunkMetadata{ChunkID: corpus.ChunkID("42", i, i*10), WorkID: "42", ChunkIndex: i},
		}
	}
	return out
}

func TestQueueSink_PublishesOneMessagePerChunk(t *testing.T) {
	pub := new(MockPublisher)
	var captured [][]byte
	pub.On("MultiPublish", config.TopicIngestEmbed, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).([][]byte) }).
		Return(nil)

	ctx := middleware.WithCorrelationID(context.Background(), "corr-1")
	err := ingest.NewQueueSink(pub).WriteChunks(ctx, corpus.WorkInfo{WorkID: "42"}, sampleChunks(3))
	require.NoError(t, err)

	require.Len(t, captured, 3)
	var payload worker.IngestEmbedPayload
	require.NoError(t, json.Unmarshal(captured[1], &payload))
	assert.Equal(t, "い", payload.Text)
	assert.Equal(t, "42:1:10", payload.Metadata.ChunkID)
	assert.Equal(t, "corr-1", payload.CorrelationID)
}

func TestQueueSink_EmptyIsNoop(t *testing.T) {
	pub := new(MockPublisher)
	require.NoError(t, ingest.NewQueueSink(pub).WriteChunks(context.Background(), corpus.WorkInfo{WorkID: "1"}, nil))
	pub.AssertNotCalled(t, "MultiPublish", mock.Anything, mock.Anything)
}

func TestQueueSink_PublishError(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("MultiPublish", mock.Anything, mock.Anything).Return(errors.New("nsqd down"))
	err := ingest.NewQueueSink(pub).WriteChunks(context.Background(), corpus.WorkInfo{WorkID: "42"}, sampleChunks(1))
	assert.ErrorContains(t, err, "nsqd down")
}

func TestIndexSink_BatchesEmbeddings(t *testing.T) {
	emb := new(MockBatchEmbedder)
	store := new(MockVectorStore)

	store.On("DeleteWork", mock.Anything, "42").Return(nil).Once()
	emb.On("EmbedBatch", mock.Anything, []string{"あ", "い"}).Return([][]float32{{1}, {2}}, nil).Once()
	emb.On("EmbedBatch", mock.Anything, []string{"う"}).Return([][]float32{{3}}, nil).Once()
	store.On("StoreChunks", mock.Anything, mock.MatchedBy(func(c []worker.Chunk) bool {
		return len(c) == 2 && c[1].Vector[0] == 2
	})).Return(nil).Once()
	store.On("StoreChunks", mock.Anything, mock.MatchedBy(func(c []worker.Chunk) bool {
		return len(c) == 1 && c[0].Metadata.ChunkID == "42:2:20"
	})).Return(nil).Once()

	err := ingest.NewIndexSink(emb, store, 2).WriteChunks(context.Background(), corpus.WorkInfo{WorkID: "42"}, sampleChunks(3))
	require.NoError(t, err)
	emb.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestIndexSink_VectorCountMismatch(t *testing.T) {
	emb := new(MockBatchEmbedder)
	store := new(MockVectorStore)
	store.On("DeleteWork", mock.Anything, "42").Return(nil)
	emb.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)

	err := ingest.NewIndexSink(emb, store, 10).WriteChunks(context.Background(), corpus.WorkInfo{WorkID: "42"}, sampleChunks(2))
	assert.ErrorContains(t, err, "got 1 vectors")
	store.AssertNotCalled(t, "StoreChunks", mock.Anything, mock.Anything)
}

func TestIndexSink_DeleteError(t *testing.T) {
	emb := new(MockBatchEmbedder)
	store := new(MockVectorStore)
	store.On("DeleteWork", mock.Anything, "42").Return(errors.New("weaviate down"))

	err := ingest.NewIndexSink(emb, store, 0).WriteChunks(context.Background(), corpus.WorkInfo{WorkID: "42"}, sampleChunks(1))
	assert.ErrorContains(t, err, "weaviate down")
	emb.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
}
