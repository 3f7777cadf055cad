// Package kvrest provides a ports.CounterStore backed by a Redis-compatible
// REST service (Upstash / Vercel KV).
//
// API Contract:
//
//	POST /incrby/{key}/{n}    -> {"result": 42}
//	GET  /get/{key}           -> {"result": "42"} | {"result": null}
//	GET  /mget/{k1}/{k2}/...  -> {"result": ["42", null]}
//	GET  /ping                -> {"result": "PONG"}
//
// Every request carries "Authorization: Bearer {token}". Keys are path
// escaped so namespaced keys such as "evt:x:platform:y" survive intact.
package kvrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

// Config configures the REST counter store.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration // whole-request timeout (default 10s)

	// KeyTimeout bounds each per-key read when GetMany falls back to
	// sequential gets (default 2s).
	KeyTimeout time.Duration

	HTTPClient *http.Client
}

// Store talks to the REST service.
type Store struct {
	httpClient *http.Client
	baseURL    string
	token      string
	keyTimeout time.Duration

	// mgetUnsupported is latched once the service rejects the batched form.
	mgetUnsupported atomic.Bool
}

// New creates a REST counter store.
func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	keyTimeout := cfg.KeyTimeout
	if keyTimeout == 0 {
		keyTimeout = 2 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Store{
		httpClient: client,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		keyTimeout: keyTimeout,
	}
}

// envelope is the REST response body.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// Increment atomically adds by to key.
func (s *Store) Increment(ctx context.Context, key string, by int64) error {
	_, err := s.command(ctx, http.MethodPost, "incrby", key, strconv.FormatInt(by, 10))
	return err
}

// Get returns the value for key, or 0 if it was never set or cannot be parsed.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	raw, err := s.command(ctx, http.MethodGet, "get", key)
	if err != nil {
		return 0, err
	}
	return parseValue(raw), nil
}

// GetMany reads keys with one batched call. If the service does not support
// the batched form it falls back to one get per key.
func (s *Store) GetMany(ctx context.Context, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	if !s.mgetUnsupported.Load() {
		raw, err := s.command(ctx, http.MethodGet, append([]string{"mget"}, keys...)...)
		if err == nil {
			var values []json.RawMessage
			if json.Unmarshal(raw, &values) == nil && len(values) == len(keys) {
				for i, k := range keys {
					out[k] = parseValue(values[i])
				}
				return out, nil
			}
			// Malformed batch reply: read keys individually.
		} else if !unsupported(err) {
			return nil, err
		} else {
			s.mgetUnsupported.Store(true)
		}
	}

	return s.getSequential(ctx, keys)
}

// getSequential reads each key under its own timeout. A key that fails reads
// as 0 without affecting its siblings; the call only fails if every key did.
func (s *Store) getSequential(ctx context.Context, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	var firstErr error
	failed := 0

	for _, k := range keys {
		keyCtx, cancel := context.WithTimeout(ctx, s.keyTimeout)
		v, err := s.Get(keyCtx, k)
		cancel()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed++
		}
		out[k] = v
	}

	if failed == len(keys) {
		return nil, firstErr
	}
	return out, nil
}

// Ping checks that the service is reachable and the token is accepted.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.command(ctx, http.MethodGet, "ping")
	return err
}

// command sends one REST command and returns the raw "result" field.
func (s *Store) command(ctx context.Context, method string, segments ...string) (json.RawMessage, error) {
	op := segments[0]

	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/"+strings.Join(escaped, "/"), nil)
	if err != nil {
		return nil, &ports.StoreError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &ports.StoreError{Op: op, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ports.StoreError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ports.StoreError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 512),
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ports.StoreError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), 512), Err: err}
	}
	if env.Error != "" {
		return nil, &ports.StoreError{Op: op, StatusCode: resp.StatusCode, Body: env.Error}
	}

	return env.Result, nil
}

// unsupported reports whether err means the service lacks the command.
func unsupported(err error) bool {
	var se *ports.StoreError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	}
	return false
}

// parseValue accepts a JSON number, a numeric string, or null.
func parseValue(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return v
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ensure interface compliance.
var (
	_ ports.CounterStore = (*Store)(nil)
	_ ports.Pinger       = (*Store)(nil)
)
