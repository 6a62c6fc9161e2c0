package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"judgedescrow/config"
	"judgedescrow/core/events"
	"judgedescrow/core/state"
	"judgedescrow/gateway/middleware"
	"judgedescrow/gateway/routes"
	"judgedescrow/native/escrow"
	"judgedescrow/observability"
	"judgedescrow/observability/logging"
	"judgedescrow/observability/metrics"
	telemetry "judgedescrow/observability/otel"
	"judgedescrow/storage"
	"judgedescrow/storage/eventlog"
)

func main() {
	cfgPath := flag.String("config", "./escrowd.toml", "path to the daemon configuration (TOML or YAML)")
	listenOverride := flag.String("listen", "", "override the configured listen address")
	flag.Parse()

	if err := run(*cfgPath, *listenOverride); err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, listenOverride string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(listenOverride) != "" {
		cfg.ListenAddress = listenOverride
	}

	env := cfg.Logging.Env
	if value := strings.TrimSpace(os.Getenv("ESCROW_ENV")); value != "" {
		env = value
	}
	logger, logCloser := logging.Setup(cfg.Observability.ServiceName, env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	exporting := strings.TrimSpace(cfg.Observability.OTLPEndpoint) != ""
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: cfg.Observability.ServiceName,
		Environment: env,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    cfg.Observability.OTLPInsecure,
		Headers:     telemetry.ParseHeaders(cfg.Observability.OTLPHeaders),
		Metrics:     cfg.Observability.Metrics && exporting,
		Traces:      cfg.Observability.Tracing && exporting,
		SampleRatio: cfg.Observability.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()
	st := state.NewManager(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	escrowMetrics := metrics.NewEscrowMetrics()
	registry.MustRegister(escrowMetrics.Collectors()...)
	eventCounter := observability.NewEventCounter()
	registry.MustRegister(eventCounter.Collector())

	hub := routes.NewEventHub()
	emitters := events.Fanout{eventCounter, hub}
	var archive *eventlog.Log
	if path := cfg.EventLogPath(); path != "" {
		archive, err = eventlog.Open(path, logger)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer archive.Close()
		emitters = append(emitters, archive)
	}

	engine := escrow.NewEngine()
	engine.SetStore(st)
	engine.SetEmitter(emitters)
	engine.SetLogger(logger)
	engine.SetMetrics(escrowMetrics)

	if err := applyGenesis(context.Background(), cfg.Genesis, engine, st, logger); err != nil {
		return err
	}

	handler, err := newHandler(cfg, engine, archive, hub, registry, logger)
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
		IdleTimeout:  cfg.IdleTimeoutDuration(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("escrowd listening", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("escrowd shutting down")
	// Hijacked stream connections are not tracked by Shutdown.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

func newHandler(cfg *config.Config, engine *escrow.Engine, archive *eventlog.Log, hub *routes.EventHub, registry *prometheus.Registry, logger *slog.Logger) (http.Handler, error) {
	if !cfg.Auth.Enabled {
		logger.Warn("authentication disabled; callers are taken from the " + middleware.CallerHeader + " header")
	}

	routeCfg := routes.Config{
		Escrow: engine,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:             cfg.Auth.Enabled,
			HMACSecret:          cfg.Auth.HMACSecret,
			Issuer:              cfg.Auth.Issuer,
			Audience:            cfg.Auth.Audience,
			AllowAnonymousReads: cfg.Auth.AllowAnonymousReads,
			ClockSkew:           cfg.Auth.ClockSkew(),
		}, logger),
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}, logger),
		CORS: middleware.CORSConfig{
			AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader, middleware.CallerHeader},
		},
		Logger: logger,
		Stream: hub,
	}
	if archive != nil {
		routeCfg.Events = archive
	}
	if cfg.Observability.Metrics {
		routeCfg.Observability = middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: cfg.Observability.ServiceName,
			LogRequests: cfg.Observability.LogRequests,
			Registry:    registry,
		}, logger)
	}

	router, err := routes.New(routeCfg)
	if err != nil {
		return nil, err
	}
	if cfg.Observability.Tracing {
		return otelhttp.NewHandler(router, cfg.Observability.ServiceName), nil
	}
	return router, nil
}
