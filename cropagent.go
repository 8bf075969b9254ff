// Package cropagent is the public API for embedding the CropAgent server.
//
//	app, err := cropagent.New(
//	    cropagent.WithVersion(version),
//	    cropagent.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*; internal/* never imports the root.
package cropagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/agrisense/cropagent/api"
	"github.com/agrisense/cropagent/internal/collector"
	"github.com/agrisense/cropagent/internal/config"
	"github.com/agrisense/cropagent/internal/history"
	"github.com/agrisense/cropagent/internal/mcp"
	"github.com/agrisense/cropagent/internal/noise"
	"github.com/agrisense/cropagent/internal/reference"
	"github.com/agrisense/cropagent/internal/server"
	"github.com/agrisense/cropagent/internal/service/alerts"
	"github.com/agrisense/cropagent/internal/service/fusion"
	"github.com/agrisense/cropagent/internal/service/pipeline"
	"github.com/agrisense/cropagent/internal/service/render"
	"github.com/agrisense/cropagent/internal/storage"
	"github.com/agrisense/cropagent/internal/telemetry"
)

// App is the CropAgent server lifecycle. Construct with New, run with Run.
type App struct {
	cfg          config.Config
	store        storage.Store
	buf          *history.Buffer // nil under strict persistence
	pipeline     *pipeline.Pipeline
	broker       *server.Broker
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	now          func() time.Time
	version      string
}

// New loads configuration, opens the history store and wires the
// pipeline and its surfaces. It starts no goroutines; call Run.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := o.clock
	if now == nil {
		now = time.Now
	}

	// .env is optional; production sets the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.policy != "" {
		cfg.FanoutPolicy = o.policy
	}
	if !pipeline.FanoutPolicy(cfg.FanoutPolicy).Valid() {
		return nil, fmt.Errorf("fanout policy %q: want fail_fast or partial", cfg.FanoutPolicy)
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("cropagent starting",
		"version", version,
		"port", cfg.Port,
		"fanout_policy", cfg.FanoutPolicy,
		"live_weather", cfg.WeatherConfigured(),
	)

	ctx := context.Background()
	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	tables, err := reference.Load()
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("reference data: %w", err)
	}

	pcfg := pipeline.Config{
		Policy:            pipeline.FanoutPolicy(cfg.FanoutPolicy),
		DefaultRegion:     cfg.DefaultRegion,
		DefaultCrop:       cfg.DefaultCrop,
		DefaultLanguage:   cfg.DefaultLanguage,
		StrictPersistence: cfg.StrictPersistence,
	}
	if err := pcfg.Validate(tables); err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("config: %w", err)
	}

	store := o.store
	if store == nil {
		store, err = storage.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("storage: %w", err)
		}
	}

	src := o.noise
	if src == nil {
		src = noise.NewSeeded(cfg.RandomSeed)
	}

	deps := collector.Deps{
		Tables: tables,
		Noise:  src,
		Clock:  now,
		Policy: collector.FetchPolicy{
			Timeout:    cfg.FetchTimeout,
			Retries:    cfg.FetchRetries,
			RetryDelay: cfg.FetchRetryDelay,
		},
		Logger: logger,
	}
	weatherSource := collector.WeatherSource(cfg.OpenWeatherAPIKey, cfg.OpenWeatherBaseURL,
		&http.Client{Timeout: cfg.FetchTimeout})

	var (
		recorder history.Recorder
		buf      *history.Buffer
	)
	if cfg.StrictPersistence {
		recorder = history.NewDirect(store)
	} else {
		buf = history.NewBuffer(store, logger, cfg.HistoryBufferSize, cfg.HistoryFlushInterval)
		recorder = buf
	}

	broker := server.NewBroker(logger)

	pipe := pipeline.New(pipeline.Deps{
		Tables:    tables,
		Weather:   collector.NewWeather(deps, weatherSource),
		Soil:      collector.NewSoil(deps, nil),
		Satellite: collector.NewSatellite(deps, nil),
		Fusion:    fusion.New(tables, src, now),
		Alerts:    alerts.New(tables, now),
		Renderer:  render.New(tables),
		Recorder:  recorder,
		Logger:    logger,
		Clock:     now,
		OnResult:  broker.Publish,
	}, pcfg)

	mcpSrv := mcp.New(pipe, store, logger, version)

	srv := server.New(server.ServerConfig{
		Pipeline:            pipe,
		Store:               store,
		Logger:              logger,
		Buffer:              buf,
		Broker:              broker,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CORSOrigins:         cfg.CORSOrigins,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		buf:          buf,
		pipeline:     pipe,
		broker:       broker,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		now:          now,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler. Useful for httptest.
func (a *App) Handler() http.Handler { return a.srv.Handler() }

// Pipeline returns the wired assessment pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Run starts the history buffer, the retention loop and the HTTP server,
// then blocks until ctx is cancelled or the server fails. It always
// shuts down before returning.
func (a *App) Run(ctx context.Context) error {
	if a.buf != nil {
		// Drain in Shutdown stops the buffer, not ctx.
		a.buf.Start(context.WithoutCancel(ctx))
	}
	if a.cfg.Retention > 0 {
		go a.retentionLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	// ctx is already done; give shutdown its own budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Shutdown stops the server, drains the history buffer and closes the
// store and telemetry providers, in that order.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("cropagent shutting down")

	var errs []error
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if a.buf != nil {
		a.buf.Drain(ctx)
		if n := a.buf.Len(); n > 0 {
			a.logger.Error("history buffer drain incomplete, unflushed entries will be lost",
				"remaining_entries", n)
			errs = append(errs, fmt.Errorf("history drain: %d entries not flushed", n))
		}
	}

	a.store.Close(ctx)
	if err := a.otelShutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown error", "error", err)
	}

	a.logger.Info("cropagent stopped")
	return errors.Join(errs...)
}

// retentionLoop deletes history older than the configured retention.
func (a *App) retentionLoop(ctx context.Context) {
	a.pruneHistory(ctx)

	ticker := time.NewTicker(a.cfg.RetentionCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pruneHistory(ctx)
		}
	}
}

func (a *App) pruneHistory(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cutoff := a.now().Add(-a.cfg.Retention)
	deleted, err := a.store.DeleteBefore(opCtx, cutoff)
	if err != nil {
		a.logger.Warn("history retention failed", "error", err)
		return
	}
	if deleted > 0 {
		a.logger.Info("history retention deleted rows", "deleted", deleted, "cutoff", cutoff)
	}
}
