package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantgate/pkg/api"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/pipeline"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/storage"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tenantgate: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTel.ServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("tenantgate exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	// Telemetry
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	otelMetrics, err := observability.NewOTelMetrics(otel.Meter(observability.InstrumentationName))
	if err != nil {
		return fmt.Errorf("failed to create pipeline instruments: %w", err)
	}
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Storage
	db, err := postgres.NewConnectionManager(cfg.Database.ConnectionConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db.Primary(), logger); err != nil {
			db.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	db.StartHealthCheckRoutine(ctx, cfg.Database.HealthCheckInterval, metrics)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			db.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	// Identity
	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		db.Close()
		return err
	}
	resolver := auth.NewResolver(verifier, auth.NewStoreFunc(db.Replica), logger)

	// Grants and feature flags
	grants := rbac.NewStoreFunc(db.Replica)
	flags := tenancy.NewCachedStore(tenancy.NewStore(db.Primary()), redisClient, cfg.Features, metrics, logger)

	// Audit
	auditStore := audit.NewDBStore(db.Primary(), cfg.Audit.Config)
	var sink audit.Sink = auditStore
	var fileSink *audit.FileSink
	if cfg.Audit.FileSinkEnabled {
		fileSink, err = audit.NewFileSink(cfg.Audit.FileSink)
		if err != nil {
			db.Close()
			return fmt.Errorf("failed to open audit file sink: %w", err)
		}
		sink = audit.NewMultiSink(auditStore, fileSink)
	}
	recorder := audit.NewRecorder(sink, cfg.Audit.Config, logger, audit.WithMetrics(metrics))

	// Policies
	policies, err := pipeline.NewRegistry(api.DefaultPolicies()...)
	if err != nil {
		return fmt.Errorf("invalid built-in policies: %w", err)
	}
	var watcher *pipeline.PolicyWatcher
	if cfg.Policies.File != "" {
		watcher = pipeline.NewPolicyWatcher(cfg.Policies.File, policies, logger)
		if err := watcher.Load(); err != nil {
			return fmt.Errorf("failed to load policy file: %w", err)
		}
	}

	pipe, err := pipeline.New(pipeline.Dependencies{
		Resolver:    resolver,
		Permissions: rbac.NewEvaluator(grants),
		Features:    tenancy.NewFeatureGate(flags),
		Recorder:    recorder,
		Policies:    policies,
		Logger:      logger,
		Metrics:     otelMetrics,
		Tracer:      observability.Tracer(),
	})
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	// HTTP
	server := api.NewServer(api.Dependencies{
		Pipeline:    pipe,
		Permissions: grants,
		Features:    flags,
		Audit:       audit.NewHandlers(audit.NewDBStoreFunc(db.Replica, cfg.Audit.Config), cfg.Audit.Config, logger),
		Logger:      logger,
	})

	router := server.Router()
	router.Use(middleware.RequestID)
	if limiter := newLimiter(ctx, cfg.RateLimit, redisClient, logger); limiter != nil {
		router.Use(middleware.RateLimit(limiter, logger))
	}
	router.Use(
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	)
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(server, "tenantgate"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	checker := observability.NewHealthChecker(version)
	checker.AddCheck("postgres", true, db.HealthCheck)
	if redisClient != nil {
		checker.AddCheck("redis", false, observability.RedisCheck(redisClient))
	}
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Stages run in this order: stop taking requests, drain audit, flush
	// telemetry, then close connections.
	shutdown.Register("http", apiServer.Shutdown)
	shutdown.Register("health", healthServer.Shutdown)
	shutdown.Register("audit_recorder", func(ctx context.Context) error {
		return recorder.Close(remaining(ctx))
	})
	if fileSink != nil {
		shutdown.Register("audit_file_sink", func(context.Context) error { return fileSink.Close() })
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("postgres", func(context.Context) error { return db.Close() })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("Starting API server")
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		return serve(healthServer)
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	switch cfg.Mode {
	case config.AuthModeOIDC:
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDC)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OIDC verifier: %w", err)
		}
		return v, nil
	default:
		v, err := auth.NewJWTVerifier(cfg.JWT)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT verifier: %w", err)
		}
		return v, nil
	}
}

// newLimiter returns nil when rate limiting is disabled
func newLimiter(ctx context.Context, cfg config.RateLimitConfig, redisClient *redis.Client, logger *observability.Logger) middleware.Limiter {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Distributed && redisClient != nil {
		return middleware.NewDistributedRateLimiter(redisClient, cfg.RateLimitConfig, "")
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimitConfig)
	limiter.StartCleanup(ctx, logger)
	return limiter
}

// serve treats a graceful close as success
func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", srv.Addr, err)
	}
	return nil
}

func remaining(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return 10 * time.Second
}
