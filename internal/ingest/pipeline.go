// Package ingest turns archive files into indexed chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"unicode/utf8"

	"bunko/internal/corpus"
	"bunko/internal/text"

	"github.com/panjf2000/ants/v2"
)

const DefaultMinBodyChars = 100

// Stages name the step a document failed in.
const (
	StageRead   = "read"
	StageDecode = "decode"
	StageParse  = "parse"
	StageSink   = "sink"
)

var (
	ErrSinkRequired = errors.New("chunk sink is required")
	ErrBodyTooShort = errors.New("body too short")
)

// ChunkSink receives the chunks of one work.
type ChunkSink interface {
	WriteChunks(ctx context.Context, work corpus.WorkInfo, chunks []corpus.Chunk) error
}

// Catalog records processed works.
type Catalog interface {
	UpsertWork(ctx context.Context, work corpus.WorkInfo, chunkCount int) error
}

// FailureRecorder persists documents that could not be ingested.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, path, stage string, cause error) error
}

// StageError ties an ingestion failure to its stage.
type StageError struct {
	Path  string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ManifestEntry describes one ingested work.
type ManifestEntry struct {
	WorkID     string `json:"work_id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	SourcePath string `json:"source_path"`
	ChunkCount int    `json:"chunk_count"`
}

// Report summarises a run.
type Report struct {
	Processed int
	Skipped   int
	Failed    int
	Chunks    int
	Entries   []ManifestEntry
}

type Pipeline struct {
	root         string
	sink         ChunkSink
	catalog      Catalog
	failures     FailureRecorder
	params       corpus.Params
	minBodyChars int
	pool         *ants.Pool
	progress     func()
	logger       *slog.Logger
}

type Option func(*Pipeline) error

// WithPoolSize bounds the number of documents processed at once.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

func WithParams(params corpus.Params) Option {
	return func(p *Pipeline) error {
		p.params = params
		return nil
	}
}

func WithMinBodyChars(n int) Option {
	return func(p *Pipeline) error {
		p.minBodyChars = n
		return nil
	}
}

func WithCatalog(c Catalog) Option {
	return func(p *Pipeline) error {
		p.catalog = c
		return nil
	}
}

func WithFailureRecorder(r FailureRecorder) Option {
	return func(p *Pipeline) error {
		p.failures = r
		return nil
	}
}

// WithProgress registers a callback invoked once per finished document.
func WithProgress(fn func()) Option {
	return func(p *Pipeline) error {
		p.progress = fn
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline builds a pipeline reading files below root.
func NewPipeline(root string, sink ChunkSink, opts ...Option) (*Pipeline, error) {
	if sink == nil {
		return nil, ErrSinkRequired
	}

	p := &Pipeline{
		root:         root,
		sink:         sink,
		params:       corpus.DefaultParams(),
		minBodyChars: DefaultMinBodyChars,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}

	if p.pool == nil {
		size := runtime.NumCPU() / 2
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return nil, err
		}
		p.pool = pool
	}

	return p, nil
}

// Release frees the worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Run ingests docs concurrently. A failing document is recorded and skipped;
// only context cancellation stops the run.
func (p *Pipeline) Run(ctx context.Context, docs []corpus.Document) (*Report, error) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report = &Report{}
	)

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			break
		}

		path := doc.Path
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()

			entry, err := p.process(ctx, path)

			mu.Lock()
			switch {
			case err == nil:
				report.Processed++
				report.Chunks += entry.ChunkCount
				report.Entries = append(report.Entries, entry)
			case errors.Is(err, ErrBodyTooShort):
				report.Skipped++
			default:
				report.Failed++
			}
			mu.Unlock()

			if err != nil && !errors.Is(err, ErrBodyTooShort) {
				p.fail(ctx, err)
			}
			if p.progress != nil {
				p.progress()
			}
		})
		if submitErr != nil {
			wg.Done()
			return nil, fmt.Errorf("submit %s: %w", path, submitErr)
		}
	}

	wg.Wait()

	sortEntries(report.Entries)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// ProcessFile ingests a single file synchronously. Short bodies are not an
// error.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) error {
	_, err := p.process(ctx, path)
	if errors.Is(err, ErrBodyTooShort) {
		return nil
	}
	return err
}

func (p *Pipeline) process(ctx context.Context, path string) (ManifestEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ManifestEntry{}, &StageError{Path: path, Stage: StageRead, Err: err}
	}

	doc, err := text.Decode(raw)
	if err != nil {
		return ManifestEntry{}, &StageError{Path: path, Stage: StageDecode, Err: err}
	}

	work, err := corpus.ExtractWorkInfo(p.root, path, doc.Text)
	if err != nil {
		return ManifestEntry{}, &StageError{Path: path, Stage: StageParse, Err: err}
	}

	cleaned := text.Clean(doc.Text)
	if n := utf8.RuneCountInString(cleaned); n < p.minBodyChars {
		p.logger.InfoContext(ctx, "skipping short work", "work_id", work.WorkID, "path", path, "chars", n)
		return ManifestEntry{}, fmt.Errorf("%w: %s", ErrBodyTooShort, path)
	}

	chunks := corpus.BuildChunks(cleaned, work, p.params)
	if err := p.sink.WriteChunks(ctx, work, chunks); err != nil {
		return ManifestEntry{}, &StageError{Path: path, Stage: StageSink, Err: err}
	}

	if p.catalog != nil {
		if err := p.catalog.UpsertWork(ctx, work, len(chunks)); err != nil {
			// The chunks are already in the sink; a stale catalog row is recoverable.
			p.logger.WarnContext(ctx, "catalog upsert failed", "work_id", work.WorkID, "error", err)
		}
	}

	p.logger.InfoContext(ctx, "work ingested",
		"work_id", work.WorkID, "title", work.Title, "encoding", doc.Encoding, "chunks", len(chunks))

	return ManifestEntry{
		WorkID:     work.WorkID,
		Title:      work.Title,
		Author:     work.Author,
		SourcePath: work.SourcePath,
		ChunkCount: len(chunks),
	}, nil
}

func (p *Pipeline) fail(ctx context.Context, err error) {
	path, stage := "", "unknown"
	var se *StageError
	if errors.As(err, &se) {
		path, stage = se.Path, se.Stage
	}

	p.logger.ErrorContext(ctx, "ingestion failed", "path", path, "stage", stage, "error", err)

	if p.failures != nil {
		if recErr := p.failures.RecordFailure(context.WithoutCancel(ctx), path, stage, err); recErr != nil {
			p.logger.ErrorContext(ctx, "failed to record failure", "path", path, "error", recErr)
		}
	}
}
