// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and ordered shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, nil)
//	logger.WithField("tenant_id", tenantID).Info("feature enabled")
//
// FromContext decorates the context logger with request id, user id, bound
// tenant and trace ids.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// Audit recorder outcomes, feature-flag cache lookups and DB pool stats are
// exported through the nil-safe Record* helpers.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// OTelMetrics carries the authorization decision instruments used by
// pkg/pipeline.
//
// # Health and Shutdown
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("database", true, observability.DatabaseCheck(db))
//	checker.AddCheck("redis", false, observability.RedisCheck(rdb))
//
// ShutdownManager runs named stages sequentially so the HTTP server stops
// before the audit queue drains and the database closes last.
package observability
