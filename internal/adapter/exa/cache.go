package exa

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bunko/internal/retrieval"

	_ "modernc.org/sqlite"
)

const DefaultCacheTTL = 7 * 24 * time.Hour

// Cache stores web results in a SQLite file keyed by query and count.
// Entries older than the TTL are ignored on read and overwritten on write.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenCache opens (creating if needed) the cache database at path. Use
// ":memory:" for a throwaway cache.
func OpenCache(path string, ttl time.Duration) (*Cache, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(query string, k int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", query, k)))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached hits and true on a fresh hit.
func (c *Cache) Get(ctx context.Context, query string, k int) ([]retrieval.WebHit, bool, error) {
	var value, createdAt string
	err := c.db.QueryRowContext(ctx, "SELECT value, created_at FROM cache WHERE key = ?", cacheKey(query, k)).
		Scan(&value, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil || c.now().Sub(created) >= c.ttl {
		return nil, false, nil
	}

	var hits []retrieval.WebHit
	if err := json.Unmarshal([]byte(value), &hits); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry: %w", err)
	}
	return hits, true, nil
}

func (c *Cache) Set(ctx context.Context, query string, k int, hits []retrieval.WebHit) error {
	value, err := json.Marshal(hits)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache (key, value, created_at) VALUES (?, ?, ?)",
		cacheKey(query, k), string(value), c.now().UTC().Format(time.RFC3339Nano))
	return err
}

// Purge removes expired entries.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.ttl).UTC().Format(time.RFC3339Nano)
	res, err := c.db.ExecContext(ctx, "DELETE FROM cache WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
