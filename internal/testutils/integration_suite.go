// Package testutils starts the Postgres, Weaviate and NSQ containers used by
// integration tests.
package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"bunko/internal/config"
)

const (
	postgresImage = "postgres:16-alpine"
	weaviateImage = "semitechnologies/weaviate:latest"
	nsqImage      = "nsqio/nsq:v1.3.0"

	startupTimeout = 90 * time.Second
)

type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Weaviate *weaviate.Client
	NSQ      *nsq.Producer

	cfg      *config.Config
	cleanups []func()
}

// NewIntegrationSuite also registers Teardown with t.Cleanup so containers
// are released when Setup aborts the test halfway.
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	s := &IntegrationSuite{T: t}
	t.Cleanup(s.Teardown)
	return s
}

// MigrationPath is the file:// URL of the repository's migrations directory.
func MigrationPath() string {
	_, file, _, _ := runtime.Caller(0)
	return "file://" + filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// Setup starts all three containers, migrates the database and connects
// clients. Any failure aborts the test.
func (s *IntegrationSuite) Setup() {
	ctx := context.Background()
	s.cfg = &config.Config{
		DBName:             "bunko_test",
		DBUser:             "test",
		DBPass:             "test",
		WeaviateScheme:     "http",
		WeaviateClass:      "AozoraChunk",
		EmbeddingProvider:  config.EmbeddingGemini,
		ChunkSearchTokens:  400,
		ChunkContextTokens: 2000,
		ChunkOverlapTokens: 50,
		SearchTimeoutMs:    8000,
		WebSearchCeilingMs: 2000,
		MigrationPath:      MigrationPath(),
	}

	s.startPostgres(ctx)
	s.startWeaviate(ctx)
	s.startNSQ(ctx)
}

func (s *IntegrationSuite) startPostgres(ctx context.Context) {
	c, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase(s.cfg.DBName),
		postgres.WithUsername(s.cfg.DBUser),
		postgres.WithPassword(s.cfg.DBPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout)),
	)
	if c != nil {
		s.track(c)
	}
	require.NoError(s.T, err)

	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.cfg.DBHost, s.cfg.DBPort = host, port.Int()

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)
	s.DB, err = sql.Open("postgres", dsn)
	require.NoError(s.T, err)
	s.onTeardown(func() { _ = s.DB.Close() })

	m, err := migrate.New(s.cfg.MigrationPath, dsn)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())
}

func (s *IntegrationSuite) startWeaviate(ctx context.Context) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        weaviateImage,
			ExposedPorts: []string{"8080/tcp", "50051/tcp"},
			Env: map[string]string{
				"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
				"DEFAULT_VECTORIZER_MODULE":               "none",
				"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
			},
			WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	s.track(c)
	require.NoError(s.T, err)

	s.cfg.WeaviateHost = s.endpoint(ctx, c, "8080")
	s.Weaviate, err = weaviate.NewClient(weaviate.Config{Host: s.cfg.WeaviateHost, Scheme: s.cfg.WeaviateScheme})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) startNSQ(ctx context.Context) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        nsqImage,
			ExposedPorts: []string{"4150/tcp", "4151/tcp"},
			Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
			WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	s.track(c)
	require.NoError(s.T, err)

	s.cfg.NSQDHost = s.endpoint(ctx, c, "4150")
	s.cfg.NSQDHTTP = s.endpoint(ctx, c, "4151")
	s.NSQ, err = nsq.NewProducer(s.cfg.NSQDHost, nsq.NewConfig())
	require.NoError(s.T, err)
	s.onTeardown(s.NSQ.Stop)
}

func (s *IntegrationSuite) endpoint(ctx context.Context, c testcontainers.Container, port string) string {
	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(s.T, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

// track schedules termination of a container, even one that failed to
// become ready.
func (s *IntegrationSuite) track(c testcontainers.Container) {
	if c == nil {
		return
	}
	s.onTeardown(func() { _ = c.Terminate(context.Background()) })
}

func (s *IntegrationSuite) onTeardown(fn func()) {
	s.cleanups = append(s.cleanups, fn)
}

// GetAppConfig returns a configuration pointing at the suite's containers.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	return s.cfg
}

// Teardown releases everything Setup acquired, last first.
func (s *IntegrationSuite) Teardown() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
}
