// Package store is the persisted key-value store shared by every lunexa
// process: the browser daemon writes operation status into it, and the HTTP
// API and CLI read it back. Values are JSON documents in a single SQLite
// table; each Set commits atomically.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/lunexa/internal/dbopen"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// Change is delivered to subscribers after a write. External changes come
// from another process and carry no key list.
type Change struct {
	Keys     []string `json:"keys,omitempty"`
	External bool     `json:"external,omitempty"`
}

// Config for a Store.
type Config struct {
	DB            *sql.DB
	Logger        *slog.Logger
	WatchInterval time.Duration // Watch polling. Default: 1s.
	WatchDebounce time.Duration // Watch quiet period. Default: 0.
	Now           func() time.Time
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.WatchInterval <= 0 {
		c.WatchInterval = time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Store wraps the kv table.
type Store struct {
	db     *sql.DB
	owned  bool
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan Change
	nextID int
}

// New applies the schema on cfg.DB and returns a Store. The caller keeps
// ownership of the handle.
func New(cfg Config) (*Store, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("store: DB is required")
	}
	cfg.defaults()
	if _, err := cfg.DB.Exec(schema); err != nil {
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{
		db:     cfg.DB,
		cfg:    cfg,
		logger: cfg.Logger,
		subs:   make(map[int]chan Change),
	}, nil
}

// Open opens (creating if needed) the database file at path. The pool is
// pinned to one connection so PRAGMA data_version only moves on commits
// from other processes.
func Open(path string, cfg Config) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	db.SetMaxOpenConns(1)
	cfg.DB = db
	s, err := New(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes subscriber channels and, when the Store opened the database
// itself, the handle.
func (s *Store) Close() error {
	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// Set writes every entry of values in one transaction. A nil value is
// stored as JSON null.
func (s *Store) Set(ctx context.Context, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	encoded := make(map[string]string, len(values))
	keys := make([]string, 0, len(values))
	for k, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("store: set %s: %w", k, err)
		}
		encoded[k] = string(b)
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := s.cfg.Now().UnixMilli()
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				k, encoded[k], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: set: %w", err)
	}
	s.publish(Change{Keys: keys})
	return nil
}

// Get decodes the value at key into dst. It reports false when the key is
// absent; dst is left untouched in that case.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

// Remove deletes keys. Missing keys are ignored.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: remove: %w", err)
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	s.publish(Change{Keys: sorted})
	return nil
}

// All returns every stored value, raw.
func (s *Store) All(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("store: all: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: all: scan: %w", err)
		}
		out[k] = json.RawMessage(v)
	}
	return out, rows.Err()
}
