package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bunko/internal/config"
	"bunko/internal/corpus"
	"bunko/internal/retrieval"
	"bunko/internal/worker"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeStore struct {
	hits   []retrieval.IndexHit
	chunks int
	stored []worker.Chunk
}

func (s *fakeStore) EnsureSchema(ctx context.Context) error { return nil }

func (s *fakeStore) StoreChunks(ctx context.Context, chunks []worker.Chunk) error {
	s.stored = append(s.stored, chunks...)
	return nil
}

func (s *fakeStore) DeleteWork(ctx context.Context, workID string) error { return nil }

func (s *fakeStore) Query(ctx context.Context, vector []float32, k int) ([]retrieval.IndexHit, error) {
	return s.hits, nil
}

func (s *fakeStore) GetChunk(ctx context.Context, chunkID string) (*retrieval.IndexHit, error) {
	for _, h := range s.hits {
		if h.ID == chunkID {
			hit := h
			return &hit, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CountChunks(ctx context.Context) (int, error) { return s.chunks, nil }

type fakePublisher struct{}

func (fakePublisher) Publish(topic string, body []byte) error { return nil }

func (fakePublisher) MultiPublish(topic string, body [][]byte) error { return nil }

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		AozoraRepoPath:     t.TempDir(),
		QueryLogPath:       filepath.Join(t.TempDir(), "query.log"),
		CORSOrigins:        "http://localhost:3000",
		SearchTimeoutMs:    2000,
		WebSearchCeilingMs: 500,
		ChunkSearchTokens:  400,
		ChunkContextTokens: 2000,
		ChunkOverlapTokens: 50,
		IngestConcurrency:  1,
		ServerPort:         8000,
	}
}

func newTestApp(t *testing.T, store *fakeStore) (*App, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a, err := New(testConfig(t), db, store, fakePublisher{}, nil, &Options{Embedder: fakeEmbedder{}})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, mock
}

func TestNew_RequiresEmbedder(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(testConfig(t), db, &fakeStore{}, fakePublisher{}, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestNew(t *testing.T) {
	a, _ := newTestApp(t, &fakeStore{})

	assert.NotNil(t, a.Handler)
	assert.NotNil(t, a.Federator)
	assert.NotNil(t, a.Works)
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.EmbedderConsumer)
	assert.NotNil(t, a.DocumentConsumer)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestRoutes_Search(t *testing.T) {
	store := &fakeStore{hits: []retrieval.IndexHit{{
		ID:       "1567:0:0",
		Document: "メロスは激怒した。",
		Metadata: corpus.ChunkMetadata{
			WorkID:  "1567",
			Title:   "走れメロス",
			Author:  "太宰治",
			ChunkID: "1567:0:0",
		},
		Distance: 0.4,
	}}}
	a, _ := newTestApp(t, store)

	body, _ := json.Marshal(map[string]interface{}{"query": "メロス", "include_web": false})
	req := httptest.NewRequest("POST", "/api/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Query         string                       `json:"query"`
		AozoraResults []retrieval.SearchResultItem `json:"aozora_results"`
		WebResults    []retrieval.SearchResultItem `json:"web_results"`
		Errors        []string                     `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "メロス", resp.Query)
	require.Len(t, resp.AozoraResults, 1)
	assert.Equal(t, "1567:0:0", resp.AozoraResults[0].ID)
	assert.Empty(t, resp.WebResults)
	assert.Empty(t, resp.Errors)
}

func TestRoutes_Stats(t *testing.T) {
	a, mock := newTestApp(t, &fakeStore{chunks: 42})
	// The counts are gathered concurrently.
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM works").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM failed_documents").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"works":3,"chunks":42,"failed_documents":1}}`, w.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutes_Preflight(t *testing.T) {
	a, _ := newTestApp(t, &fakeStore{})

	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutes_UnknownMethod(t *testing.T) {
	a, _ := newTestApp(t, &fakeStore{})

	req := httptest.NewRequest(http.MethodDelete, "/api/works", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestParamsFromConfig(t *testing.T) {
	p := ParamsFromConfig(&config.Config{ChunkSearchTokens: 300, ChunkContextTokens: 1500, ChunkOverlapTokens: 30})
	assert.Equal(t, corpus.Params{TargetSize: 300, OverlapSize: 30, ContextSize: 1500}, p)

	p = ParamsFromConfig(&config.Config{})
	def := corpus.DefaultParams()
	assert.Equal(t, def.TargetSize, p.TargetSize)
	assert.Equal(t, 0, p.OverlapSize)
	assert.Equal(t, def.ContextSize, p.ContextSize)
}
