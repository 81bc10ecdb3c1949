package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bunko/internal/corpus"
	"bunko/internal/middleware"
	"bunko/internal/worker"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func embedMessage(t *testing.T, p worker.IngestEmbedPayload) *nsq.Message {
	body, err := json.Marshal(p)
	assert.NoError(t, err)
	return &nsq.Message{Body: body}
}

func TestEmbedderConsumer_HandleMessage(t *testing.T) {
	e := new(MockEmbedder)
	s := new(MockVectorStore)
	consumer := worker.NewEmbedderConsumer(e, s)

	msg := embedMessage(t, worker.IngestEmbedPayload{
		Text: "ある日の暮方の事である。",
		Metadata: corpus.ChunkMetadata{
			ChunkID: "127:0:0", WorkID: "127", Title: "羅生門", ChunkIndex: 0, OffsetEnd: 12,
		},
		CorrelationID: "corr-7",
	})

	e.On("Embed", mock.MatchedBy(func(ctx context.Context) bool {
		return middleware.GetCorrelationID(ctx) == "corr-7"
	}), "ある日の暮方の事である。").Return([]float32{0.1, 0.2}, nil)

	s.On("StoreChunks", mock.Anything, mock.MatchedBy(func(chunks []worker.Chunk) bool {
		return len(chunks) == 1 &&
			chunks[0].Metadata.ChunkID == "127:0:0" &&
			len(chunks[0].Vector) == 2
	})).Return(nil)

	err := consumer.HandleMessage(msg)

	assert.NoError(t, err)
	e.AssertExpectations(t)
	s.AssertExpectations(t)
}

func TestEmbedderConsumer_PoisonPill(t *testing.T) {
	e := new(MockEmbedder)
	s := new(MockVectorStore)
	consumer := worker.NewEmbedderConsumer(e, s)

	assert.NoError(t, consumer.HandleMessage(&nsq.Message{Body: []byte("invalid json")}))
	assert.NoError(t, consumer.HandleMessage(&nsq.Message{Body: nil}))
	assert.NoError(t, consumer.HandleMessage(embedMessage(t, worker.IngestEmbedPayload{Text: "no id"})))
	e.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestEmbedderConsumer_Failures(t *testing.T) {
	payload := worker.IngestEmbedPayload{
		Text:     "本文",
		Metadata: corpus.ChunkMetadata{ChunkID: "1:0:0", WorkID: "1", SourcePath: "cards/000001/files/1_1.txt"},
	}

	tests := []struct {
		name     string
		embedErr error
		storeErr error
		attempts uint16
		recorded bool
		wantErr  bool
	}{
		{name: "embed fails, requeued", embedErr: errors.New("quota"), attempts: 1, wantErr: true},
		{name: "store fails, requeued", storeErr: errors.New("weaviate down"), attempts: 2, wantErr: true},
		{name: "last attempt is recorded", embedErr: errors.New("quota"), attempts: worker.DefaultMaxAttempts, recorded: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := new(MockEmbedder)
			s := new(MockVectorStore)
			f := new(MockFailureRecorder)
			if tt.embedErr != nil {
				e.On("Embed", mock.Anything, mock.Anything).Return(nil, tt.embedErr)
			} else {
				e.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)
				s.On("StoreChunks", mock.Anything, mock.Anything).Return(tt.storeErr)
			}
			if tt.recorded {
				f.On("RecordFailure", mock.Anything, "cards/000001/files/1_1.txt", worker.StageEmbed, mock.Anything).Return(nil)
			}

			msg := embedMessage(t, payload)
			msg.Attempts = tt.attempts
			err := worker.NewEmbedderConsumer(e, s, worker.WithEmbedFailures(f)).HandleMessage(msg)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			f.AssertExpectations(t)
			if !tt.recorded {
				f.AssertNotCalled(t, "RecordFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestEmbedderConsumer_NoRecorderKeepsRequeueing(t *testing.T) {
	e := new(MockEmbedder)
	e.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("quota"))

	msg := embedMessage(t, worker.IngestEmbedPayload{Text: "本文", Metadata: corpus.ChunkMetadata{ChunkID: "1:0:0"}})
	msg.Attempts = worker.DefaultMaxAttempts + 3
	assert.Error(t, worker.NewEmbedderConsumer(e, new(MockVectorStore)).HandleMessage(msg))
}

func TestEmbedderConsumer_Timeout(t *testing.T) {
	e := new(MockEmbedder)
	e.On("Embed", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 50*time.Millisecond
	}), mock.Anything).Return(nil, context.DeadlineExceeded)

	msg := embedMessage(t, worker.IngestEmbedPayload{Text: "本文", Metadata: corpus.ChunkMetadata{ChunkID: "1:0:0"}})
	msg.Attempts = 1
	err := worker.NewEmbedderConsumer(e, new(MockVectorStore), worker.WithEmbedTimeout(50*time.Millisecond)).HandleMessage(msg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
