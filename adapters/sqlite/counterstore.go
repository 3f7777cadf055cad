package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

// maxBatch stays below SQLite's default host parameter limit.
const maxBatch = 500

// CounterStore implements ports.CounterStore using SQLite.
type CounterStore struct {
	db *DB
}

// NewCounterStore creates a new SQLite counter store.
func NewCounterStore(db *DB) *CounterStore {
	return &CounterStore{db: db}
}

// Increment atomically adds by to key, creating it at 0 first.
func (s *CounterStore) Increment(ctx context.Context, key string, by int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO counters (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = value + excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, by)
	if err != nil {
		return &ports.StoreError{Op: "incrby", Err: err}
	}
	return nil
}

// Get returns the value for key, or 0 if it was never set.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM counters WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, &ports.StoreError{Op: "get", Err: err}
	}
	return v, nil
}

// GetMany returns a value for every requested key.
func (s *CounterStore) GetMany(ctx context.Context, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		out[k] = 0
	}

	for start := 0; start < len(keys); start += maxBatch {
		end := min(start+maxBatch, len(keys))
		if err := s.readBatch(ctx, keys[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *CounterStore) readBatch(ctx context.Context, keys []string, out map[string]int64) error {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM counters WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return &ports.StoreError{Op: "mget", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var v int64
		if err := rows.Scan(&k, &v); err != nil {
			return &ports.StoreError{Op: "mget", Err: err}
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return &ports.StoreError{Op: "mget", Err: err}
	}
	return nil
}

// Ping checks the database connection.
func (s *CounterStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &ports.StoreError{Op: "ping", Err: err}
	}
	return nil
}

var (
	_ ports.CounterStore = (*CounterStore)(nil)
	_ ports.Pinger       = (*CounterStore)(nil)
)
