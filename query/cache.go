package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// sqlite driver, registered as "sqlite3"
	_ "github.com/mattn/go-sqlite3"
)

// Cache persists query results keyed by (topology digest, query key), so
// repeated questions against an unchanged network skip the traversal.
type Cache struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS query_results (
    topology_digest TEXT NOT NULL,
    query_key       TEXT NOT NULL,
    result          TEXT NOT NULL,
    created_at      TIMESTAMP NOT NULL,
    PRIMARY KEY (topology_digest, query_key)
);
`

// OpenCache opens (creating if needed) the cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open query cache: %w", err)
	}

	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize query cache: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get looks up a cached result. The second return value reports whether a
// cached entry exists.
func (c *Cache) Get(ctx context.Context, digest, key string) (*Result, bool, error) {
	var payload string

	err := c.db.QueryRowContext(ctx,
		`SELECT result FROM query_results WHERE topology_digest = ? AND query_key = ?`,
		digest, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("query cache lookup: %w", err)
	}

	var res Result
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, false, fmt.Errorf("query cache decode: %w", err)
	}

	return &res, true, nil
}

// Put stores a result, replacing any previous entry for the same key.
func (c *Cache) Put(ctx context.Context, digest, key string, res *Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("query cache encode: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO query_results (topology_digest, query_key, result, created_at)
		 VALUES (?, ?, ?, ?)`,
		digest, key, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("query cache store: %w", err)
	}

	return nil
}

// InvalidateTopology drops every entry cached under a topology digest.
func (c *Cache) InvalidateTopology(ctx context.Context, digest string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM query_results WHERE topology_digest = ?`, digest)
	if err != nil {
		return fmt.Errorf("query cache invalidate: %w", err)
	}

	return nil
}
