package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"bunko/features/job"
	"bunko/features/works"
	"bunko/internal/adapter/exa"
	"bunko/internal/app"
	"bunko/internal/corpus"
	"bunko/internal/ingest"
	"bunko/internal/logger"
	"bunko/internal/text"
)

func setupLogger(c *cli.Context) error {
	slog.SetDefault(logger.New(os.Stderr, c.String("log-level")))
	return nil
}

func runCommand(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.IsSet("root") {
		cfg.AozoraRepoPath = c.String("root")
	}
	if n := c.Int("max-works"); n >= 0 {
		cfg.MaxWorks = n
	}
	if c.IsSet("concurrency") {
		cfg.IngestConcurrency = c.Int("concurrency")
	}
	if c.IsSet("manifest") {
		cfg.ManifestPath = c.String("manifest")
	}
	sinkKind := c.String("sink")
	if sinkKind != sinkQueue && sinkKind != sinkIndex {
		return fmt.Errorf("unknown sink %q, want %s or %s", sinkKind, sinkQueue, sinkIndex)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := corpus.Discover(cfg.AozoraRepoPath)
	if err != nil {
		return err
	}
	docs = limitDocs(docs, cfg.MaxWorks)
	color.Cyan("Discovered %d files under %s", len(docs), cfg.AozoraRepoPath)

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer deps.Close()

	var sink ingest.ChunkSink
	switch sinkKind {
	case sinkIndex:
		embedder, closer, err := app.NewEmbedder(ctx, cfg)
		if err != nil {
			return fmt.Errorf("embedder: %w", err)
		}
		defer closer.Close()
		sink = ingest.NewIndexSink(embedder, deps.VectorStore, cfg.EmbedBatchSize)
	default:
		sink = ingest.NewQueueSink(deps.NSQProducer)
	}

	bar := newProgressBar(len(docs), "Ingesting")
	catalog := works.NewService(works.NewPostgresRepo(deps.DB), deps.VectorStore, cfg.WorksCacheTTL())

	pipeline, err := ingest.NewPipeline(cfg.AozoraRepoPath, sink,
		ingest.WithPoolSize(cfg.IngestConcurrency),
		ingest.WithParams(app.ParamsFromConfig(cfg)),
		ingest.WithMinBodyChars(cfg.MinBodyChars),
		ingest.WithCatalog(catalog),
		ingest.WithFailureRecorder(job.NewPostgresRepo(deps.DB)),
		ingest.WithProgress(func() { _ = bar.Add(1) }),
	)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	start := time.Now()
	report, runErr := pipeline.Run(ctx, docs)
	_ = bar.Finish()
	fmt.Println()

	if report != nil {
		if err := ingest.WriteManifest(cfg.ManifestPath, report.Entries); err != nil {
			color.Red("Failed to write manifest: %v", err)
		} else {
			color.Blue("Manifest written to %s", cfg.ManifestPath)
		}
		printReport(report, time.Since(start))
	}
	return runErr
}

// limitDocs keeps the first n documents. n <= 0 keeps everything.
func limitDocs(docs []corpus.Document, n int) []corpus.Document {
	if n > 0 && len(docs) > n {
		return docs[:n]
	}
	return docs
}

func printReport(r *ingest.Report, elapsed time.Duration) {
	color.Green("✓ Processed %d works, %d chunks in %s", r.Processed, r.Chunks, elapsed.Round(time.Millisecond))
	if r.Skipped > 0 {
		color.Yellow("  Skipped %d short works", r.Skipped)
	}
	if r.Failed > 0 {
		color.Red("  Failed %d files (see GET /api/jobs/failed)", r.Failed)
	}
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetWriter(os.Stderr),
	)
}

func chunkCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("chunk takes exactly one file argument")
	}
	path := c.Args().First()
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's command line
	if err != nil {
		return err
	}
	doc, err := text.Decode(raw)
	if err != nil {
		return err
	}
	work, err := corpus.ExtractWorkInfo(root, path, doc.Text)
	if err != nil {
		return err
	}

	params := corpus.Params{
		TargetSize:  c.Int("target"),
		OverlapSize: c.Int("overlap"),
		ContextSize: c.Int("context"),
	}
	if params.TargetSize <= 0 || params.OverlapSize < 0 || params.OverlapSize >= params.TargetSize {
		return fmt.Errorf("invalid chunk sizes: target %d, overlap %d", params.TargetSize, params.OverlapSize)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetEscapeHTML(false)
	for _, ch := range corpus.BuildChunks(text.Clean(doc.Text), work, params) {
		if err := enc.Encode(ch); err != nil {
			return err
		}
	}
	return nil
}

func purgeCacheCommand(c *cli.Context) error {
	ttl := time.Duration(c.Int("ttl-days")) * 24 * time.Hour
	cache, err := exa.OpenCache(c.String("path"), ttl)
	if err != nil {
		return err
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(c.Context, time.Minute)
	defer cancel()
	n, err := cache.Purge(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "removed %d expired entries\n", n)
	return nil
}
