// Package redis provides a Redis-backed ports.CounterStore.
//
// Each counter is a plain Redis string manipulated with INCRBY, so several
// instances can share one set of counters.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

// DefaultKeyPrefix namespaces counters inside a shared database.
const DefaultKeyPrefix = "hookstudio:"

// Store is a Redis-backed CounterStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
}

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "hookstudio:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a Redis-backed CounterStore.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(k string) string {
	return s.keyPrefix + k
}

// Increment atomically adds by to key.
func (s *Store) Increment(ctx context.Context, key string, by int64) error {
	if err := s.client.IncrBy(ctx, s.key(key), by).Err(); err != nil {
		return &ports.StoreError{Op: "incrby", Err: err}
	}
	return nil
}

// Get returns the value for key, or 0 if it was never set.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, &ports.StoreError{Op: "get", Err: err}
	}
	return parse(v), nil
}

// GetMany reads all keys with a single MGET.
func (s *Store) GetMany(ctx context.Context, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}

	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, &ports.StoreError{Op: "mget", Err: err}
	}
	if len(vals) != len(keys) {
		return nil, &ports.StoreError{Op: "mget", Err: fmt.Errorf("got %d values for %d keys", len(vals), len(keys))}
	}

	for i, k := range keys {
		if str, ok := vals[i].(string); ok {
			out[k] = parse(str)
		} else {
			out[k] = 0
		}
	}
	return out, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return &ports.StoreError{Op: "ping", Err: err}
	}
	return nil
}

// parse treats a value that is not an integer as 0.
func parse(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var (
	_ ports.CounterStore = (*Store)(nil)
	_ ports.Pinger       = (*Store)(nil)
)
