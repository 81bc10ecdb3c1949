package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bunko/internal/app"
	"bunko/internal/config"
	"bunko/internal/logger"

	"github.com/nsqio/go-nsq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. Infrastructure: Postgres, Weaviate, NSQ
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer deps.Close()

	// 2. Providers
	embedder, embedCloser, err := app.NewEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("embedder %s: %w", cfg.EmbeddingProvider, err)
	}
	defer embedCloser.Close()

	webSource, webCloser, err := app.NewWebSource(cfg)
	if err != nil {
		return fmt.Errorf("web search: %w", err)
	}
	defer webCloser.Close()

	// 3. Application
	application, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, log, &app.Options{
		Embedder:  embedder,
		WebSource: webSource,
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer application.Close()

	// 4. Workers
	// Retried documents are always handled by this process.
	var consumers []*nsq.Consumer
	defer func() {
		for _, c := range consumers {
			c.Stop()
			<-c.StopChan
		}
	}()

	docConsumer, err := app.StartConsumer(cfg, config.TopicIngestDocument, config.ChannelDocument, application.DocumentConsumer, 1)
	if err != nil {
		slog.Error("failed to start document consumer", "error", err)
	} else {
		consumers = append(consumers, docConsumer)
	}

	if cfg.EnableEmbedderWorker {
		embedConsumer, err := app.StartConsumer(cfg, config.TopicIngestEmbed, config.ChannelEmbedder, application.EmbedderConsumer, cfg.IngestConcurrency)
		if err != nil {
			slog.Error("failed to start embedder consumer", "error", err)
		} else {
			consumers = append(consumers, embedConsumer)
		}
	}

	// 5. Server
	if !cfg.EnableAPI {
		slog.Info("api disabled, running workers only")
		<-ctx.Done()
		return nil
	}
	return application.Run(ctx)
}
