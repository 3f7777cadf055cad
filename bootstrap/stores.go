package bootstrap

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/adapters/kvrest"
	"github.com/aveeno350-ctrl/hook-script-studio/adapters/memory"
	"github.com/aveeno350-ctrl/hook-script-studio/adapters/redis"
	"github.com/aveeno350-ctrl/hook-script-studio/adapters/sqlite"
	"github.com/aveeno350-ctrl/hook-script-studio/config"
	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

// NewCounterStore builds the configured counter store. The returned func
// releases its resources.
func NewCounterStore(ctx context.Context, cfg config.CountersConfig, logger zerolog.Logger) (ports.CounterStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendMemory, "":
		logger.Warn().Msg("using in-memory counter store; counters reset on restart")
		return memory.NewCounterStore(), noop, nil

	case config.BackendKVRest:
		logger.Info().Msg("using REST counter store")
		return kvrest.New(kvrest.Config{
			URL:     cfg.KVRest.URL,
			Token:   cfg.KVRest.Token,
			Timeout: cfg.KVRest.Timeout,
		}), noop, nil

	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		var opts []redis.Option
		if cfg.Redis.KeyPrefix != "" {
			opts = append(opts, redis.WithKeyPrefix(cfg.Redis.KeyPrefix))
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis counter store")
		return redis.New(client, opts...), client.Close, nil

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLite.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.Info().Str("dsn", cfg.SQLite.DSN).Msg("using sqlite counter store")
		return sqlite.NewCounterStore(db), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown counter backend %q", cfg.Backend)
	}
}
