package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	wstore "bunko/internal/adapter/weaviate"
	"bunko/internal/config"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

type Dependencies struct {
	DB          *sql.DB
	VectorStore *wstore.Store
	NSQProducer *nsq.Producer
}

// Close stops the producer and closes the database.
func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

// Bootstrap connects Postgres, applies migrations, ensures the Weaviate class
// exists and opens the NSQ producer. Nothing is left open when it fails.
func Bootstrap(ctx context.Context, cfg *config.Config) (deps *Dependencies, err error) {
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	if err := withRetry(ctx, "db ping", cfg.BootstrapRetryAttempts, retryDelay, db.PingContext); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	if err := migrateUp(db, cfg.MigrationPath); err != nil {
		return nil, err
	}

	wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
	if err != nil {
		return nil, fmt.Errorf("weaviate client error: %w", err)
	}
	vecStore := wstore.NewStore(wClient, cfg.WeaviateClass)
	if err := EnsureSchemaWithRetry(ctx, vecStore, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return nil, fmt.Errorf("weaviate schema error: %w", err)
	}

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}

	// Consumers querying lookupd fail with 404 until a topic exists.
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
			CreateTopics(ctx, cfg.NSQDHTTP, config.Topics)
		}
	}()

	return &Dependencies{DB: db, VectorStore: vecStore, NSQProducer: producer}, nil
}

func migrateUp(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	version, dirty, _ := m.Version()
	slog.Info("migrations applied", "version", version, "dirty", dirty)
	return nil
}

// withRetry calls fn until it succeeds, attempts run out or ctx ends.
func withRetry(ctx context.Context, what string, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	for i := 1; ; i++ {
		err := fn(ctx)
		if err == nil || i >= attempts {
			return err
		}
		slog.Warn(what+" failed, retrying", "attempt", i, "max_attempts", attempts, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// CreateTopics asks nsqd to create each topic. Failures are logged only.
func CreateTopics(ctx context.Context, nsqdHTTP string, topics []string) {
	for _, topic := range topics {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			slog.Warn("failed to build NSQ topic request", "topic", topic, "error", err)
			continue
		}
		resp, err := http.DefaultClient.Do(req) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
			slog.Info("NSQ topic pre-created", "topic", topic)
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}
}

type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// EnsureSchemaWithRetry retries the schema check until it succeeds or the
// attempts run out.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	return withRetry(ctx, "weaviate schema", attempts, delay, store.EnsureSchema)
}

// StartConsumer connects an NSQ consumer for topic/channel through lookupd.
func StartConsumer(cfg *config.Config, topic, channel string, handler nsq.Handler, concurrency int) (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(topic, channel, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq consumer %s/%s: %w", topic, channel, err)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	consumer.AddConcurrentHandlers(handler, concurrency)
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("nsq lookupd %s: %w", cfg.NSQLookupd, err)
	}
	slog.Info("NSQ consumer connected", "topic", topic, "channel", channel)
	return consumer, nil
}
