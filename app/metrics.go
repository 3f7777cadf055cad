package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/domain/metric"
	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

var (
	// ErrUnauthorized is returned when an admin credential does not match.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidEvent is returned for an empty or oversized event name.
	ErrInvalidEvent = errors.New("invalid event name")
)

// MetricsService records analytics events and serves the admin snapshot.
type MetricsService struct {
	store        ports.CounterStore
	logger       zerolog.Logger
	onStoreError func(op string)

	// Static configuration (requires restart)
	adminKey string

	// Dynamic configuration (hot-reloadable)
	dashboardKeys atomic.Pointer[[]string]
}

// MetricsDeps contains dependencies for MetricsService.
type MetricsDeps struct {
	Store  ports.CounterStore
	Logger zerolog.Logger

	// OnStoreError is called with the store operation whenever the store
	// fails (optional).
	OnStoreError func(op string)
}

// MetricsConfig contains configuration for MetricsService.
type MetricsConfig struct {
	AdminKey      string
	DashboardKeys []string // defaults to metric.DefaultDashboardKeys()
}

// NewMetricsService creates a new metrics service.
func NewMetricsService(deps MetricsDeps, cfg MetricsConfig) *MetricsService {
	s := &MetricsService{
		store:        deps.Store,
		logger:       deps.Logger,
		onStoreError: deps.OnStoreError,
		adminKey:     cfg.AdminKey,
	}
	s.UpdateDashboardKeys(cfg.DashboardKeys)
	return s
}

// UpdateDashboardKeys replaces the enumerated snapshot keys.
// This is thread-safe and can be called while handling requests.
func (s *MetricsService) UpdateDashboardKeys(keys []string) {
	if len(keys) == 0 {
		keys = metric.DefaultDashboardKeys()
	}
	cp := append([]string(nil), keys...)
	s.dashboardKeys.Store(&cp)
}

// DashboardKeys returns the current snapshot key list.
func (s *MetricsService) DashboardKeys() []string {
	return append([]string(nil), (*s.dashboardKeys.Load())...)
}

// Authorize reports whether credential matches the configured admin key.
// An unset admin key never authorizes.
func (s *MetricsService) Authorize(credential string) bool {
	if s.adminKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(s.adminKey)) == 1
}

// AdminConfigured reports whether an admin key is set.
func (s *MetricsService) AdminConfigured() bool {
	return s.adminKey != ""
}

// Snapshot returns the dashboard counters sorted by key.
func (s *MetricsService) Snapshot(ctx context.Context, credential string) ([]metric.Counter, error) {
	if !s.Authorize(credential) {
		return nil, ErrUnauthorized
	}
	return s.Read(ctx)
}

// Read returns the dashboard counters without a credential check. Callers
// must have authenticated the request some other way (admin session).
func (s *MetricsService) Read(ctx context.Context) ([]metric.Counter, error) {
	values, err := s.store.GetMany(ctx, s.DashboardKeys())
	if err != nil {
		s.storeFailed("mget", err)
		return nil, fmt.Errorf("read dashboard counters: %w", err)
	}
	return metric.Sorted(values), nil
}

// RecordEvent applies every counter increment derived from e, in order,
// stopping at the first store failure.
func (s *MetricsService) RecordEvent(ctx context.Context, e metric.Event) error {
	if !metric.ValidName(e.Name) {
		return ErrInvalidEvent
	}

	for _, inc := range metric.Increments(e) {
		if err := s.store.Increment(ctx, inc.Key, inc.By); err != nil {
			s.storeFailed("incrby", err)
			return fmt.Errorf("record %s: %w", e.Name, err)
		}
	}
	return nil
}

// Increment bumps a single named counter by one.
func (s *MetricsService) Increment(ctx context.Context, key string) error {
	if !metric.ValidName(key) {
		return ErrInvalidEvent
	}
	if err := s.store.Increment(ctx, key, 1); err != nil {
		s.storeFailed("incrby", err)
		return fmt.Errorf("increment %s: %w", key, err)
	}
	return nil
}

// Ping checks the counter store when it supports it.
func (s *MetricsService) Ping(ctx context.Context) error {
	if p, ok := s.store.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *MetricsService) storeFailed(op string, err error) {
	if s.onStoreError != nil {
		s.onStoreError(op)
	}
	s.logger.Warn().Err(err).Str("op", op).Msg("counter store failure")
}
