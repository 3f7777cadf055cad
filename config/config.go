// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Counter store backends.
const (
	BackendMemory = "memory"
	BackendKVRest = "kvrest"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gate      GateConfig      `yaml:"gate"`
	Admin     AdminConfig     `yaml:"admin"`
	Provider  ProviderConfig  `yaml:"provider"`
	Counters  CountersConfig  `yaml:"counters"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// CookieSecure sets the Secure attribute on every cookie. Defaults to true.
	CookieSecure *bool `yaml:"cookie_secure"`
}

// SecureCookies reports whether cookies carry the Secure attribute.
func (s ServerConfig) SecureCookies() bool {
	return s.CookieSecure == nil || *s.CookieSecure
}

// GateConfig configures the anonymous free-tier gate.
type GateConfig struct {
	// Secret signs usage tokens. When empty, generation answers 500.
	Secret string `yaml:"secret"`
}

// AdminConfig configures the admin read path.
type AdminConfig struct {
	Key        string        `yaml:"key"` // empty disables admin access
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// ProviderConfig configures the text generation provider.
type ProviderConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CountersConfig selects and configures the counter store.
type CountersConfig struct {
	Backend string       `yaml:"backend"` // memory, kvrest, redis, sqlite
	KVRest  KVRestConfig `yaml:"kvrest"`
	Redis   RedisConfig  `yaml:"redis"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
}

// KVRestConfig configures a Redis-compatible REST service.
type KVRestConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig configures a native Redis connection.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// SQLiteConfig configures the embedded counter store.
type SQLiteConfig struct {
	DSN string `yaml:"dsn"`
}

// MetricsConfig configures Prometheus metrics and the analytics pipeline.
type MetricsConfig struct {
	Enabled       bool     `yaml:"enabled"` // Enable /metrics endpoint
	Path          string   `yaml:"path"`    // Custom path (default: /metrics)
	DashboardKeys []string `yaml:"dashboard_keys"`
	QueueSize     int      `yaml:"queue_size"` // async event queue capacity
}

// RateLimitConfig throttles the public analytics write endpoint per client IP.
type RateLimitConfig struct {
	MetricsWritePerSec float64 `yaml:"metrics_write_per_sec"` // 0 disables
	MetricsWriteBurst  int     `yaml:"metrics_write_burst"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables (HOOKSTUDIO_* wins over the legacy name):
//
//	HOOKSTUDIO_GATE_SECRET       / HSS_SECRET
//	HOOKSTUDIO_ADMIN_KEY         / ADMIN_KEY, NEXT_PUBLIC_ADMIN_KEY
//	HOOKSTUDIO_PROVIDER_API_KEY  / OPENAI_API_KEY
//	HOOKSTUDIO_KVREST_URL        / KV_REST_API_URL, VERCEL_KV_REST_URL, UPSTASH_REDIS_REST_URL
//	HOOKSTUDIO_KVREST_TOKEN      / KV_REST_API_TOKEN, VERCEL_KV_REST_TOKEN, UPSTASH_REDIS_REST_TOKEN
//	HOOKSTUDIO_COUNTERS_BACKEND  - memory, kvrest, redis or sqlite
//	HOOKSTUDIO_SERVER_HOST       - Server host (default: 0.0.0.0)
//	HOOKSTUDIO_SERVER_PORT       - Server port (default: 8080)
//	HOOKSTUDIO_LOG_LEVEL         - debug, info, warn, error (default: info)
//	HOOKSTUDIO_LOG_FORMAT        - json or console (default: json)
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

// LoadWithFallback loads path when it exists, otherwise the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// firstEnv returns the first non-empty variable among names.
func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// applyEnvOverrides applies environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("HOOKSTUDIO_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := firstEnv("HOOKSTUDIO_SERVER_PORT", "PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HOOKSTUDIO_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("HOOKSTUDIO_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("HOOKSTUDIO_COOKIE_SECURE"); v != "" {
		b := parseBool(v)
		cfg.Server.CookieSecure = &b
	}

	// Secrets
	if v := firstEnv("HOOKSTUDIO_GATE_SECRET", "HSS_SECRET"); v != "" {
		cfg.Gate.Secret = v
	}
	if v := firstEnv("HOOKSTUDIO_ADMIN_KEY", "ADMIN_KEY", "NEXT_PUBLIC_ADMIN_KEY"); v != "" {
		cfg.Admin.Key = v
	}
	if v := firstEnv("HOOKSTUDIO_PROVIDER_API_KEY", "OPENAI_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}

	// Provider configuration
	if v := os.Getenv("HOOKSTUDIO_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("HOOKSTUDIO_PROVIDER_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("HOOKSTUDIO_PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Provider.Timeout = d
		}
	}

	// Counter store configuration
	if v := os.Getenv("HOOKSTUDIO_COUNTERS_BACKEND"); v != "" {
		cfg.Counters.Backend = v
	}
	if v := firstEnv("HOOKSTUDIO_KVREST_URL", "KV_REST_API_URL", "VERCEL_KV_REST_URL", "UPSTASH_REDIS_REST_URL"); v != "" {
		cfg.Counters.KVRest.URL = v
	}
	if v := firstEnv("HOOKSTUDIO_KVREST_TOKEN", "KV_REST_API_TOKEN", "VERCEL_KV_REST_TOKEN", "UPSTASH_REDIS_REST_TOKEN"); v != "" {
		cfg.Counters.KVRest.Token = v
	}
	if v := os.Getenv("HOOKSTUDIO_REDIS_ADDR"); v != "" {
		cfg.Counters.Redis.Addr = v
	}
	if v := os.Getenv("HOOKSTUDIO_REDIS_PASSWORD"); v != "" {
		cfg.Counters.Redis.Password = v
	}
	if v := os.Getenv("HOOKSTUDIO_SQLITE_DSN"); v != "" {
		cfg.Counters.SQLite.DSN = v
	}

	// Logging configuration
	if v := os.Getenv("HOOKSTUDIO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HOOKSTUDIO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("HOOKSTUDIO_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("HOOKSTUDIO_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Admin.SessionTTL == 0 {
		cfg.Admin.SessionTTL = 8 * time.Hour
	}

	if cfg.Provider.Model == "" {
		cfg.Provider.Model = "gpt-4o-mini"
	}
	if cfg.Provider.Temperature == 0 {
		cfg.Provider.Temperature = 0.8
	}
	if cfg.Provider.MaxTokens == 0 {
		cfg.Provider.MaxTokens = 800
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 30 * time.Second
	}

	// A configured REST endpoint selects that backend unless told otherwise.
	if cfg.Counters.Backend == "" {
		if cfg.Counters.KVRest.URL != "" {
			cfg.Counters.Backend = BackendKVRest
		} else {
			cfg.Counters.Backend = BackendMemory
		}
	}
	if cfg.Counters.KVRest.Timeout == 0 {
		cfg.Counters.KVRest.Timeout = 10 * time.Second
	}
	if cfg.Counters.SQLite.DSN == "" {
		cfg.Counters.SQLite.DSN = "hookstudio.db"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.QueueSize == 0 {
		cfg.Metrics.QueueSize = 1024
	}

	if cfg.RateLimit.MetricsWriteBurst == 0 && cfg.RateLimit.MetricsWritePerSec > 0 {
		cfg.RateLimit.MetricsWriteBurst = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// RequestTimeout is the per-request handler deadline. It leaves the
// provider its full timeout and expires before the server's write deadline
// so the client still receives a response.
func (c *Config) RequestTimeout() time.Duration {
	d := c.Provider.Timeout + 30*time.Second
	if limit := c.Server.WriteTimeout - time.Second; d > limit {
		d = limit
	}
	if d <= c.Provider.Timeout {
		d = c.Provider.Timeout + (c.Server.WriteTimeout-c.Provider.Timeout)/2
	}
	return d
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Counters.Backend {
	case BackendMemory, BackendSQLite:
	case BackendKVRest:
		if cfg.Counters.KVRest.URL == "" || cfg.Counters.KVRest.Token == "" {
			return fmt.Errorf("counters.kvrest.url and counters.kvrest.token are required when counters.backend is 'kvrest'")
		}
	case BackendRedis:
		if cfg.Counters.Redis.Addr == "" {
			return fmt.Errorf("counters.redis.addr is required when counters.backend is 'redis'")
		}
	default:
		return fmt.Errorf("counters.backend must be one of: memory, kvrest, redis, sqlite, got %q", cfg.Counters.Backend)
	}

	if cfg.Provider.MaxTokens < 0 {
		return fmt.Errorf("provider.max_tokens must not be negative")
	}
	if cfg.Provider.Timeout < 0 || cfg.Server.WriteTimeout < 0 || cfg.Server.ReadTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	// The response for a generation has to be written after the provider
	// call returns.
	if cfg.Server.WriteTimeout <= cfg.Provider.Timeout {
		return fmt.Errorf("server.write_timeout (%s) must be longer than provider.timeout (%s)",
			cfg.Server.WriteTimeout, cfg.Provider.Timeout)
	}
	if cfg.Provider.Temperature < 0 || cfg.Provider.Temperature > 2 {
		return fmt.Errorf("provider.temperature must be between 0 and 2, got %v", cfg.Provider.Temperature)
	}

	if cfg.RateLimit.MetricsWritePerSec < 0 || cfg.RateLimit.MetricsWriteBurst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if cfg.Metrics.QueueSize < 0 {
		return fmt.Errorf("metrics.queue_size must not be negative")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}

// String renders the configuration with secrets reduced to their presence.
func (c *Config) String() string {
	return fmt.Sprintf(
		"server=%s:%d backend=%s provider=%s/%s has_secret=%t has_admin_key=%t has_provider_key=%t has_kv_token=%t metrics=%t log=%s/%s",
		c.Server.Host, c.Server.Port,
		c.Counters.Backend,
		c.Provider.BaseURL, c.Provider.Model,
		c.Gate.Secret != "", c.Admin.Key != "", c.Provider.APIKey != "", c.Counters.KVRest.Token != "",
		c.Metrics.Enabled,
		c.Logging.Level, c.Logging.Format,
	)
}
