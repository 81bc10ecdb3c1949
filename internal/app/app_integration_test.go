package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bunko/features/job"
	wstore "bunko/internal/adapter/weaviate"
	"bunko/internal/app"
	"bunko/internal/config"
	"bunko/internal/testutils"
)

type MockE2EEmbedder struct {
	mock.Mock
}

func (m *MockE2EEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockE2EEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func writeMelos(t *testing.T, root string) string {
	t.Helper()
	path := filepath.Join(root, "cards", "000035", "files", "1567_14913.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	body := strings.Join([]string{
		"走れメロス",
		"太宰治",
		"",
		strings.Repeat("-", 40),
		"【テキスト中に現れる記号について】",
		strings.Repeat("-", 40),
		strings.Repeat("メロスは激怒した。必ず、かの邪智暴虐《じゃちぼうぎゃく》の王を除かなければならぬと決意した。", 20),
		"",
		"底本：「太宰治全集3」ちくま文庫",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestApp_EndToEnd_RetryFailedDocument(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E integration test")
	}

	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	cfg := *s.GetAppConfig()
	cfg.AozoraRepoPath = t.TempDir()
	cfg.QueryLogPath = filepath.Join(t.TempDir(), "query.log")
	cfg.CORSOrigins = "*"
	cfg.IngestConcurrency = 1
	path := writeMelos(t, cfg.AozoraRepoPath)

	embedder := new(MockE2EEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2, 0.3}, nil)

	vecStore := wstore.NewStore(s.Weaviate, cfg.WeaviateClass)
	require.NoError(t, vecStore.EnsureSchema(ctx))

	application, err := app.New(&cfg, s.DB, vecStore, s.NSQ, nil, &app.Options{Embedder: embedder})
	require.NoError(t, err)
	defer application.Close()

	// 1. A document failed earlier.
	jobRepo := job.NewPostgresRepo(s.DB)
	require.NoError(t, jobRepo.RecordFailure(ctx, path, "decode", errors.New("boom")))
	failed, err := jobRepo.List(ctx, job.Filter{})
	require.NoError(t, err)
	require.Len(t, failed, 1)

	// 2. Consume re-ingest requests with the application's worker.
	consumer, err := nsq.NewConsumer(config.TopicIngestDocument, "e2e", nsq.NewConfig())
	require.NoError(t, err)
	consumer.AddHandler(application.DocumentConsumer)
	require.NoError(t, consumer.ConnectToNSQD(cfg.NSQDHost))
	defer consumer.Stop()

	// 3. Retry through the API.
	req := httptest.NewRequest("POST", "/api/jobs/"+failed[0].ID+"/retry", nil)
	w := httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 4. The work shows up in the catalog and the index.
	require.Eventually(t, func() bool {
		application.Works.Invalidate()
		list, err := application.Works.List(ctx)
		return err == nil && len(list) == 1
	}, 15*time.Second, 250*time.Millisecond, "work should be cataloged")

	req = httptest.NewRequest("GET", "/api/works/1567/chunk/1567:0:0", nil)
	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "メロスは激怒した。")
	assert.NotContains(t, w.Body.String(), "《")

	n, err := jobRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// 5. Search finds it.
	body, _ := json.Marshal(map[string]interface{}{"query": "メロス", "include_web": false})
	req = httptest.NewRequest("POST", "/api/search", bytes.NewReader(body))
	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"work_id":"1567"`)

	embedder.AssertExpectations(t)
}
