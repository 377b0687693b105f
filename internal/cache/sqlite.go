package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kjstillabower/mintemp-dashboard/internal/models"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS responses (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);`

// SQLiteCache implements Cache on a local sqlite file, so responses survive
// restarts. expires_at of 0 never expires.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (or creates) the cache database at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent and avoids
	// sqlite writer contention
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite cache wal: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite cache schema: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

// Name implements Cache.Name.
func (c *SQLiteCache) Name() string { return "sqlite" }

// Get implements Cache.Get.
func (c *SQLiteCache) Get(ctx context.Context, key string) (models.ProviderResponse, bool, error) {
	var raw []byte
	var expiresAt int64
	err := c.db.QueryRowContext(ctx, `SELECT value, expires_at FROM responses WHERE key = ?`, key).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProviderResponse{}, false, nil
	}
	if err != nil {
		return models.ProviderResponse{}, false, err
	}
	if expiresAt != 0 && time.Now().Unix() >= expiresAt {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM responses WHERE key = ?`, key); err != nil {
			return models.ProviderResponse{}, false, err
		}
		return models.ProviderResponse{}, false, nil
	}
	var data models.ProviderResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		return models.ProviderResponse{}, false, err
	}
	return data, true, nil
}

// Set implements Cache.Set.
func (c *SQLiteCache) Set(ctx context.Context, key string, value models.ProviderResponse, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	now := time.Now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).Unix()
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO responses(key, value, created_at, expires_at) VALUES(?,?,?,?)`,
		key, raw, now.Unix(), expiresAt)
	return err
}

// Ping checks the database handle. Used for health checks.
func (c *SQLiteCache) Ping() error {
	return c.db.Ping()
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
