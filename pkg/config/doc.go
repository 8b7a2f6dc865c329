// Package config loads tenantgate configuration from environment variables.
//
// Every setting has a default; LoadConfig validates the result for the API
// server and ValidateArchive checks what the archiver needs.
//
// Server:
//
//	TENANTGATE_HOST="0.0.0.0"
//	TENANTGATE_PORT="8080"
//	TENANTGATE_HEALTH_PORT="9090"
//	TENANTGATE_SHUTDOWN_TIMEOUT="30s"
//
// Database and Redis:
//
//	TENANTGATE_POSTGRES_URL="postgres://localhost/tenantgate?sslmode=disable"
//	TENANTGATE_POSTGRES_REPLICA_URLS="postgres://replica-1/tenantgate,postgres://replica-2/tenantgate"
//	TENANTGATE_REDIS_URL="redis://localhost:6379/0"  # optional
//
// Authentication:
//
//	TENANTGATE_AUTH_MODE="jwt"  # jwt or oidc
//	TENANTGATE_JWT_SECRET="..."
//	TENANTGATE_OIDC_ISSUER_URL="https://accounts.example.com"
//	TENANTGATE_OIDC_CLIENT_ID="tenantgate"
//
// Audit:
//
//	TENANTGATE_AUDIT_DEFAULT_SINCE_DAYS="30"
//	TENANTGATE_AUDIT_DEFAULT_LIMIT="1000"
//	TENANTGATE_AUDIT_FILE_ENABLED="false"
//	TENANTGATE_S3_BUCKET="tenantgate-audit"
//	TENANTGATE_ARCHIVE_SCHEDULE="15 0 * * *"
//
// Observability:
//
//	TENANTGATE_LOG_LEVEL="info"  # debug, info, warn, error
//	TENANTGATE_OTEL_ENABLED="true"
//	TENANTGATE_OTEL_ENDPOINT="otel-collector:4317"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
