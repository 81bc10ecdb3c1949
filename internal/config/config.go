package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	EmbeddingGemini = "gemini"
	EmbeddingOllama = "ollama"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"bunko"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"bunko"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateClass  string `envconfig:"WEAVIATE_CLASS" default:"AozoraChunk"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	EnableAPI            bool   `envconfig:"ENABLE_API" default:"true"`
	EnableEmbedderWorker bool   `envconfig:"ENABLE_EMBEDDER_WORKER" default:"false"`
	MigrationPath        string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Embeddings
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"gemini"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL"`
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	OllamaURL         string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`

	// Web search
	ExaAPIKey       string  `envconfig:"EXA_API_KEY"`
	ExaBaseURL      string  `envconfig:"EXA_BASE_URL" default:"https://api.exa.ai"`
	ExaRateLimit    float64 `envconfig:"EXA_RATE_LIMIT" default:"5"` // requests per second
	ExaCachePath    string  `envconfig:"EXA_CACHE_PATH" default:"data/cache/exa.db"`
	ExaCacheTTLDays int     `envconfig:"EXA_CACHE_TTL_DAYS" default:"7"`

	// Search
	SearchTimeoutMs              int  `envconfig:"SEARCH_TIMEOUT_MS" default:"8000"`
	WebSearchCeilingMs           int  `envconfig:"WEB_SEARCH_CEILING_MS" default:"2000"`
	SearchKeepCompletedOnTimeout bool `envconfig:"SEARCH_KEEP_COMPLETED_ON_TIMEOUT" default:"false"`
	WorksCacheTTLSeconds         int  `envconfig:"WORKS_CACHE_TTL_SECONDS" default:"300"`

	// Ingestion
	AozoraRepoPath     string `envconfig:"AOZORA_REPO_PATH" default:"data/aozorabunko"`
	MaxWorks           int    `envconfig:"MAX_WORKS" default:"50"`
	IngestConcurrency  int    `envconfig:"INGEST_CONCURRENCY" default:"4"`
	ChunkSearchTokens  int    `envconfig:"CHUNK_SEARCH_TOKENS" default:"400"`
	ChunkContextTokens int    `envconfig:"CHUNK_CONTEXT_TOKENS" default:"2000"`
	ChunkOverlapTokens int    `envconfig:"CHUNK_OVERLAP_TOKENS" default:"50"`
	MinBodyChars       int    `envconfig:"MIN_BODY_CHARS" default:"100"`
	EmbedBatchSize     int    `envconfig:"EMBED_BATCH_SIZE" default:"100"`
	ManifestPath       string `envconfig:"MANIFEST_PATH" default:"data/manifest.jsonl"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8000"`
	CORSOrigins  string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.WeaviateHost == "" {
		return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
	}
	switch c.EmbeddingProvider {
	case EmbeddingGemini, EmbeddingOllama:
	default:
		return fmt.Errorf("%w: EMBEDDING_PROVIDER=%q", ErrInvalidValue, c.EmbeddingProvider)
	}
	if c.ChunkSearchTokens <= 0 {
		return fmt.Errorf("%w: CHUNK_SEARCH_TOKENS must be positive", ErrInvalidValue)
	}
	if c.ChunkContextTokens <= 0 {
		return fmt.Errorf("%w: CHUNK_CONTEXT_TOKENS must be positive", ErrInvalidValue)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkSearchTokens {
		return fmt.Errorf("%w: CHUNK_OVERLAP_TOKENS must be in [0, CHUNK_SEARCH_TOKENS)", ErrInvalidValue)
	}
	if c.SearchTimeoutMs <= 0 {
		return fmt.Errorf("%w: SEARCH_TIMEOUT_MS must be positive", ErrInvalidValue)
	}
	return nil
}

func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutMs) * time.Millisecond
}

func (c *Config) WebSearchCeiling() time.Duration {
	return time.Duration(c.WebSearchCeilingMs) * time.Millisecond
}

func (c *Config) ExaCacheTTL() time.Duration {
	return time.Duration(c.ExaCacheTTLDays) * 24 * time.Hour
}

func (c *Config) WorksCacheTTL() time.Duration {
	return time.Duration(c.WorksCacheTTLSeconds) * time.Second
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
