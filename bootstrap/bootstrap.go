// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aveeno350-ctrl/hook-script-studio/adapters/auth"
	"github.com/aveeno350-ctrl/hook-script-studio/adapters/clock"
	apihttp "github.com/aveeno350-ctrl/hook-script-studio/adapters/http"
	"github.com/aveeno350-ctrl/hook-script-studio/adapters/http/admin"
	"github.com/aveeno350-ctrl/hook-script-studio/adapters/metrics"
	"github.com/aveeno350-ctrl/hook-script-studio/adapters/openai"
	"github.com/aveeno350-ctrl/hook-script-studio/app"
	"github.com/aveeno350-ctrl/hook-script-studio/config"
	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	HTTPServer *http.Server
	Metrics    *metrics.Collector // nil when metrics are disabled
	Store      ports.CounterStore

	// Services
	generateService *app.GenerateService
	metricsService  *app.MetricsService

	// Adapters (for cleanup)
	recorder   *app.EventRecorder
	limiter    *apihttp.RateLimiter
	closeStore func() error
	hotReload  bool
}

// Options provides optional configuration for application initialization.
type Options struct {
	// ConfigPath is a YAML file; when missing, configuration comes from the
	// environment only.
	ConfigPath string

	// HotReload watches ConfigPath and SIGHUP for reloadable changes.
	HotReload bool

	Version apihttp.VersionResponse

	// LogOutput defaults to os.Stdout.
	LogOutput io.Writer

	// Overrides for tests.
	Clock     ports.Clock
	Generator ports.Generator
	Store     ports.CounterStore
}

// New creates and initializes the application.
func New(opts Options) (*App, error) {
	holder, err := config.NewHolder(opts.ConfigPath, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	cfg := holder.Get()

	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := setupLogger(cfg.Logging, out)
	holder.SetLogger(logger)

	logger.Info().Str("config", cfg.String()).Msg("initializing hookstudio")
	if cfg.Gate.Secret == "" {
		logger.Warn().Msg("gate secret is not set; generation will answer 500")
	}
	if cfg.Provider.APIKey == "" && opts.Generator == nil {
		logger.Warn().Msg("provider api key is not set; generation will fail")
	}

	a := &App{
		Logger:    logger,
		Config:    holder,
		hotReload: opts.HotReload,
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	// Counter store
	if opts.Store != nil {
		a.Store = opts.Store
		a.closeStore = func() error { return nil }
	} else {
		store, closer, err := NewCounterStore(context.Background(), cfg.Counters, logger)
		if err != nil {
			return nil, fmt.Errorf("init counter store: %w", err)
		}
		a.Store, a.closeStore = store, closer
	}

	// Prometheus (own registry so several apps can coexist in one process)
	var exporter http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(reg)
		exporter = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	// Services
	a.metricsService = app.NewMetricsService(app.MetricsDeps{
		Store:        a.Store,
		Logger:       logger,
		OnStoreError: a.onStoreError,
	}, app.MetricsConfig{
		AdminKey:      cfg.Admin.Key,
		DashboardKeys: cfg.Metrics.DashboardKeys,
	})

	a.recorder = app.NewEventRecorder(a.metricsService, logger, app.EventRecorderConfig{
		QueueSize: cfg.Metrics.QueueSize,
		OnDropped: a.onEventDropped,
	})

	generator := opts.Generator
	if generator == nil {
		generator = openai.New(openai.Config{
			BaseURL: cfg.Provider.BaseURL,
			APIKey:  cfg.Provider.APIKey,
			Model:   cfg.Provider.Model,
		})
	}

	a.generateService = app.NewGenerateService(app.GenerateDeps{
		Generator: generator,
		Clock:     clk,
		Events:    a.recorder,
		Logger:    logger,
	}, app.GenerateConfig{
		Secret:      cfg.Gate.Secret,
		Timeout:     cfg.Provider.Timeout,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
	})

	// Admin session (disabled without an admin key)
	var sessions *auth.SessionService
	if cfg.Admin.Key != "" {
		sessions, err = auth.NewSessionService(cfg.Admin.Key, cfg.Admin.SessionTTL, clk)
		if err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("init admin sessions: %w", err)
		}
	} else {
		logger.Info().Msg("admin key not set; admin endpoints will reject every request")
	}

	a.limiter = apihttp.NewRateLimiter(cfg.RateLimit.MetricsWritePerSec, cfg.RateLimit.MetricsWriteBurst)

	secure := cfg.Server.SecureCookies()
	router := apihttp.NewRouter(logger, apihttp.RouterConfig{
		Generate: apihttp.NewGenerateHandler(a.generateService, a.Metrics, secure, logger),
		Metrics:  apihttp.NewMetricsHandler(a.metricsService, logger),
		Health:   apihttp.NewHealthHandler(a.metricsService, a.Logger),
		Admin: admin.NewHandler(admin.Deps{
			Metrics:      a.metricsService,
			Sessions:     sessions,
			SecureCookie: secure,
			Logger:       logger,
		}).Router(),
		Collector:           a.Metrics,
		MetricsPath:         cfg.Metrics.Path,
		MetricsExporter:     exporter,
		MetricsWriteLimiter: a.limiter,
		Version:             opts.Version,
		RequestTimeout:      cfg.RequestTimeout(),
	})

	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	holder.OnChange(a.applyConfig)
	holder.OnReloadError(func(error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloadErrors.Inc()
		}
	})

	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.HTTPServer.Handler
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	if a.hotReload {
		if a.Config.Path() != "" {
			if err := a.Config.WatchFile(); err != nil {
				a.Logger.Warn().Err(err).Msg("config file watch disabled")
			}
		}
		a.Config.WatchSignals()
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.Config != nil {
		a.Config.Stop()
	}

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Drain queued analytics events before the store goes away
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("event recorder close error")
		}
	}

	if a.limiter != nil {
		a.limiter.Close()
	}

	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			a.Logger.Error().Err(err).Msg("counter store close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// applyConfig pushes the reloadable fields into the running services.
func (a *App) applyConfig(cfg *config.Config) {
	setLogLevel(cfg.Logging.Level)
	a.metricsService.UpdateDashboardKeys(cfg.Metrics.DashboardKeys)
	a.limiter.UpdateLimits(cfg.RateLimit.MetricsWritePerSec, cfg.RateLimit.MetricsWriteBurst)

	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
		a.Metrics.ConfigLastReload.SetToCurrentTime()
	}
}

func (a *App) onStoreError(op string) {
	if a.Metrics != nil {
		a.Metrics.CounterErrors.WithLabelValues(op).Inc()
	}
}

func (a *App) onEventDropped() {
	if a.Metrics != nil {
		a.Metrics.EventsDropped.Inc()
	}
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	setLogLevel(cfg.Level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}

func setLogLevel(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
