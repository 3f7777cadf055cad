// Package http provides the HTTP handlers and router for the service.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/adapters/metrics"
)

// DefaultRequestTimeout bounds a whole request when RouterConfig leaves it unset.
const DefaultRequestTimeout = 60 * time.Second

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Service string `json:"service"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checker HealthChecker
	logger  zerolog.Logger
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler creates a new health handler. checker may be nil.
func NewHealthHandler(checker HealthChecker, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{checker: checker, logger: logger}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readiness pings the counter store.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.checker != nil {
		if err := h.checker.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "unhealthy",
				Error:  "counter store unreachable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// VersionHandler returns a handler serving the build info.
func VersionHandler(info VersionResponse) http.HandlerFunc {
	if info.Service == "" {
		info.Service = "hookstudio"
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, info)
	}
}

// RouterConfig holds the handlers and options for the router.
type RouterConfig struct {
	Generate *GenerateHandler
	Metrics  *MetricsHandler
	Health   *HealthHandler
	Admin    http.Handler // optional, mounted at /admin

	// Collector enables request metrics; MetricsPath exposes them (default /metrics).
	Collector       *metrics.Collector
	MetricsPath     string
	MetricsExporter http.Handler // exporter for Collector's registry (default promhttp.Handler())

	// MetricsWriteLimiter throttles POST /api/metrics/write per client IP.
	MetricsWriteLimiter *RateLimiter

	Version        VersionResponse
	RequestTimeout time.Duration
}

// NewRouter creates the main HTTP router.
func NewRouter(logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger, metricsPath))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	if cfg.Collector != nil {
		r.Use(NewMetricsMiddleware(cfg.Collector, metricsPath))
	}

	// Health endpoints
	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(nil, logger)
	}
	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Metrics endpoint (prefer the app's exporter, fall back to promhttp)
	if cfg.MetricsExporter != nil {
		r.Handle(metricsPath, cfg.MetricsExporter)
	} else if cfg.Collector != nil {
		r.Handle(metricsPath, promhttp.Handler())
	}

	r.Get("/version", VersionHandler(cfg.Version))

	r.Route("/api", func(r chi.Router) {
		if cfg.Generate != nil {
			r.Post("/generate", cfg.Generate.ServeHTTP)
		}
		if cfg.Metrics != nil {
			r.Get("/metrics", cfg.Metrics.Increment)
			r.Get("/metrics/read", cfg.Metrics.Read)
			r.Group(func(r chi.Router) {
				if cfg.MetricsWriteLimiter != nil {
					r.Use(cfg.MetricsWriteLimiter.Middleware)
				}
				r.Post("/metrics/write", cfg.Metrics.Write)
			})
		}
	})

	if cfg.Admin != nil {
		r.Mount("/admin", cfg.Admin)
	}

	return r
}

// skipInstrumentation reports whether path is an internal endpoint.
func skipInstrumentation(path, metricsPath string) bool {
	return strings.HasPrefix(path, "/health") || path == metricsPath
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipInstrumentation(r.URL.Path, metricsPath) {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// Label by route pattern so unmatched paths share one series.
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := metrics.StatusClass(ww.Status())

			m.RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if skipInstrumentation(r.URL.Path, metricsPath) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
