// Package cache implements the persistent, TTL-based cache backing the
// data-source fallback chain: cached fetches survive process restarts and
// reduce upstream API pressure, generalizing a SQLite-backed cache manager
// onto Postgres — the real consumer of the jackc/pgx/v5 dependency the
// teacher's own storage package declared but never used.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_store (
	cache_key   TEXT PRIMARY KEY,
	cache_value JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	data_type   TEXT,
	symbol      TEXT
);
CREATE INDEX IF NOT EXISTS idx_cache_store_expires ON cache_store(expires_at);
CREATE INDEX IF NOT EXISTS idx_cache_store_symbol ON cache_store(symbol);
`

// Cache is a Postgres-backed TTL cache for crawled/fetched market and
// reference data.
type Cache struct {
	db *sql.DB
}

// Open connects to Postgres via the pgx stdlib driver and ensures the
// cache_store schema exists.
func Open(ctx context.Context, databaseURL string) (*Cache, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: init schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.db.Close() }

// Entry is a stored cache row's metadata, returned by Stats/List-style
// queries when the caller needs more than the decoded value.
type Entry struct {
	Key       string
	DataType  string
	Symbol    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Get decodes the cached value for key into dst if present, not expired,
// and not older than maxAge. Returns found=false on any miss (absent,
// expired, or stale-by-maxAge) rather than an error — a cache miss is
// normal control flow, not a failure.
func (c *Cache) Get(ctx context.Context, key string, maxAge time.Duration, dst any) (found bool, err error) {
	var (
		raw       []byte
		createdAt time.Time
		expiresAt time.Time
	)
	row := c.db.QueryRowContext(ctx,
		`SELECT cache_value, created_at, expires_at FROM cache_store WHERE cache_key = $1`, key)
	if err := row.Scan(&raw, &createdAt, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}

	now := time.Now()
	if !expiresAt.After(now) {
		_ = c.Delete(ctx, key)
		return false, nil
	}
	if maxAge > 0 && now.Sub(createdAt) >= maxAge {
		return false, nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key with the given TTL, tagged with an optional
// dataType/symbol for bulk invalidation.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration, dataType, symbol string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	now := time.Now()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cache_store (cache_key, cache_value, created_at, expires_at, data_type, symbol)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cache_key) DO UPDATE SET
			cache_value = EXCLUDED.cache_value,
			created_at  = EXCLUDED.created_at,
			expires_at  = EXCLUDED.expires_at,
			data_type   = EXCLUDED.data_type,
			symbol      = EXCLUDED.symbol
	`, key, raw, now, now.Add(ttl), dataType, symbol)
	if err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Delete removes a single cache entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_store WHERE cache_key = $1`, key)
	if err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// InvalidateSymbol removes every entry tagged with the given symbol, e.g.
// after a corporate action invalidates cached fundamentals.
func (c *Cache) InvalidateSymbol(ctx context.Context, symbol string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_store WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("cache: invalidate symbol %s: %w", symbol, err)
	}
	return nil
}

// InvalidateDataType removes every entry of the given data type.
func (c *Cache) InvalidateDataType(ctx context.Context, dataType string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_store WHERE data_type = $1`, dataType)
	if err != nil {
		return fmt.Errorf("cache: invalidate data_type %s: %w", dataType, err)
	}
	return nil
}

// CleanupExpired deletes every entry past its expiry and reports how many
// rows were removed. The live engine's cache janitor calls it every ten
// minutes, mirroring the reference cache's cleanup_expired sweep.
func (c *Cache) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache_store WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("cache: cleanup expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: cleanup expired: rows affected: %w", err)
	}
	return n, nil
}

// Stats is the cache_store summary the dashboard/status command reports.
type Stats struct {
	TotalEntries   int64
	ExpiredEntries int64
	ByDataType     map[string]int64
}

// Stats reports current cache occupancy.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	out := Stats{ByDataType: make(map[string]int64)}

	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_store`).Scan(&out.TotalEntries); err != nil {
		return out, fmt.Errorf("cache: stats total: %w", err)
	}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_store WHERE expires_at <= now()`).Scan(&out.ExpiredEntries); err != nil {
		return out, fmt.Errorf("cache: stats expired: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT COALESCE(data_type, ''), COUNT(*) FROM cache_store GROUP BY data_type`)
	if err != nil {
		return out, fmt.Errorf("cache: stats by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dt string
		var n int64
		if err := rows.Scan(&dt, &n); err != nil {
			return out, fmt.Errorf("cache: stats by type scan: %w", err)
		}
		out.ByDataType[dt] = n
	}
	return out, rows.Err()
}
