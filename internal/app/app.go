package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"bunko/features/job"
	"bunko/features/mcp"
	"bunko/features/search"
	"bunko/features/stats"
	"bunko/features/works"
	"bunko/internal/config"
	"bunko/internal/corpus"
	"bunko/internal/ingest"
	"bunko/internal/middleware"
	"bunko/internal/retrieval"
	"bunko/internal/worker"
)

var ErrEmbedderRequired = errors.New("app: embedder is required")

// VectorStore is everything the application needs from the chunk index.
type VectorStore interface {
	EnsureSchema(ctx context.Context) error
	StoreChunks(ctx context.Context, chunks []worker.Chunk) error
	DeleteWork(ctx context.Context, workID string) error
	Query(ctx context.Context, vector []float32, k int) ([]retrieval.IndexHit, error)
	GetChunk(ctx context.Context, chunkID string) (*retrieval.IndexHit, error)
	CountChunks(ctx context.Context) (int, error)
}

// TaskPublisher is satisfied by *nsq.Producer.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
	MultiPublish(topic string, body [][]byte) error
}

// Options carries the collaborators built outside New.
type Options struct {
	Embedder worker.BatchEmbedder
	// WebSource is optional. Web search is disabled when it is nil.
	WebSource retrieval.WebSource
}

type App struct {
	Handler          http.Handler
	Federator        *retrieval.Federator
	Works            *works.Service
	Pipeline         *ingest.Pipeline
	EmbedderConsumer *worker.EmbedderConsumer
	DocumentConsumer *worker.DocumentConsumer

	port int
}

func New(
	cfg *config.Config,
	db *sql.DB,
	vecStore VectorStore,
	taskPub TaskPublisher,
	logger *slog.Logger,
	opts *Options,
) (*App, error) {
	if opts == nil || opts.Embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Feature: Works
	worksRepo := works.NewPostgresRepo(db)
	worksService := works.NewService(worksRepo, vecStore, cfg.WorksCacheTTL())
	worksHandler := works.NewHandler(worksService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, taskPub, logger)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(worksRepo, jobRepo, vecStore)

	// Feature: Search
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	federator := retrieval.NewFederator(
		retrieval.NewIndexSearcher(opts.Embedder, vecStore),
		opts.WebSource,
		retrieval.WithTimeout(cfg.SearchTimeout()),
		retrieval.WithWebCeiling(cfg.WebSearchCeiling()),
		retrieval.WithKeepCompletedOnTimeout(cfg.SearchKeepCompletedOnTimeout),
		retrieval.WithQueryLogger(queryLogger),
		retrieval.WithLogger(logger),
	)
	searchHandler := search.NewHandler(federator)
	mcpHandler := mcp.NewHandler(federator, worksService)

	// Retried documents are re-ingested straight into the index.
	pipeline, err := ingest.NewPipeline(cfg.AozoraRepoPath,
		ingest.NewIndexSink(opts.Embedder, vecStore, cfg.EmbedBatchSize),
		ingest.WithPoolSize(cfg.IngestConcurrency),
		ingest.WithParams(ParamsFromConfig(cfg)),
		ingest.WithMinBodyChars(cfg.MinBodyChars),
		ingest.WithCatalog(worksService),
		ingest.WithFailureRecorder(jobRepo),
		ingest.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("ingest pipeline: %w", err)
	}

	// Routes
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/search", searchHandler.Search)

	mux.HandleFunc("GET /api/works", worksHandler.List)
	mux.HandleFunc("GET /api/works/{workId}/chunk/{chunkId}", worksHandler.GetChunk)

	mux.HandleFunc("GET /api/jobs/failed", jobHandler.List)
	mux.HandleFunc("POST /api/jobs/{id}/retry", jobHandler.Retry)

	mux.HandleFunc("GET /api/stats", statsHandler.GetStats)

	mux.Handle("POST /mcp", mcpHandler) // single request/response
	mux.HandleFunc("GET /mcp/sse", mcpHandler.HandleSSE)
	mux.HandleFunc("POST /mcp/messages", mcpHandler.HandleMessage)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	handler := middleware.CorrelationID(middleware.CORS(cfg.AllowedOrigins())(mux))

	return &App{
		Handler:          handler,
		Federator:        federator,
		Works:            worksService,
		Pipeline:         pipeline,
		EmbedderConsumer: worker.NewEmbedderConsumer(opts.Embedder, vecStore, worker.WithEmbedFailures(jobRepo)),
		DocumentConsumer: worker.NewDocumentConsumer(pipeline, jobRepo),
		port:             cfg.ServerPort,
	}, nil
}

// ParamsFromConfig maps the chunking settings onto corpus parameters.
func ParamsFromConfig(cfg *config.Config) corpus.Params {
	p := corpus.DefaultParams()
	if cfg.ChunkSearchTokens > 0 {
		p.TargetSize = cfg.ChunkSearchTokens
	}
	if cfg.ChunkOverlapTokens >= 0 && cfg.ChunkOverlapTokens < p.TargetSize {
		p.OverlapSize = cfg.ChunkOverlapTokens
	}
	if cfg.ChunkContextTokens > 0 {
		p.ContextSize = cfg.ChunkContextTokens
	}
	return p
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the ingest worker pool.
func (a *App) Close() {
	if a.Pipeline != nil {
		a.Pipeline.Release()
	}
}
