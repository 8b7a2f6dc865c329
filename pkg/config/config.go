package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
)

// Auth modes
const (
	AuthModeJWT  = "jwt"
	AuthModeOIDC = "oidc"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         storage.RedisConfig
	Auth          AuthConfig
	Features      tenancy.CacheConfig
	Audit         AuditConfig
	Archive       ArchiveConfig
	RateLimit     RateLimitConfig
	Policies      PoliciesConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	postgres.ConnectionConfig
	HealthCheckInterval time.Duration
	AutoMigrate         bool
}

// AuthConfig selects how bearer credentials are verified
type AuthConfig struct {
	Mode string // jwt or oidc
	JWT  auth.JWTConfig
	OIDC auth.OIDCConfig
}

// AuditConfig extends the query defaults with sink settings
type AuditConfig struct {
	audit.Config
	FileSinkEnabled bool
	FileSink        audit.FileSinkConfig
}

// ArchiveConfig holds the archiver settings
type ArchiveConfig struct {
	S3       storage.S3Config
	Archive  audit.ArchiveConfig
	Schedule string // Cron spec, UTC
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled bool
	middleware.RateLimitConfig
	// Distributed shares counters through Redis when Redis is configured
	Distributed bool
}

// PoliciesConfig points at the optional endpoint policy file
type PoliciesConfig struct {
	File string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	OTel           observability.OTelConfig
}

// LoadConfig loads configuration from environment variables and validates it
// for the API server
func LoadConfig() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Load reads configuration from environment variables without validating it
func Load() *Config {
	return &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Features:      loadFeaturesConfig(),
		Audit:         loadAuditConfig(),
		Archive:       loadArchiveConfig(),
		RateLimit:     loadRateLimitConfig(),
		Policies:      PoliciesConfig{File: getEnv("TENANTGATE_POLICY_FILE", "")},
		Observability: loadObservabilityConfig(),
	}
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TENANTGATE_HOST", "0.0.0.0"),
		Port:            getEnv("TENANTGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TENANTGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TENANTGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TENANTGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TENANTGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("TENANTGATE_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("TENANTGATE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		ConnectionConfig: postgres.ConnectionConfig{
			PrimaryURL:  getEnv("TENANTGATE_POSTGRES_URL", ""),
			ReplicaURLs: postgres.ParseReplicaURLs(getEnv("TENANTGATE_POSTGRES_REPLICA_URLS", "")),
			MaxConns:    getEnvInt("TENANTGATE_POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("TENANTGATE_POSTGRES_MIN_CONNS", 2),
			Timeout:     getEnvDuration("TENANTGATE_POSTGRES_TIMEOUT", 5*time.Second),
			MaxLifetime: getEnvDuration("TENANTGATE_POSTGRES_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: getEnvDuration("TENANTGATE_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
		},
		HealthCheckInterval: getEnvDuration("TENANTGATE_POSTGRES_HEALTH_INTERVAL", 30*time.Second),
		AutoMigrate:         getEnvBool("TENANTGATE_POSTGRES_AUTO_MIGRATE", true),
	}
}

// loadRedisConfig returns an empty URL when Redis is not configured; callers
// treat that as "run without Redis"
func loadRedisConfig() storage.RedisConfig {
	return storage.RedisConfig{
		URL:        getEnv("TENANTGATE_REDIS_URL", ""),
		Password:   getEnv("TENANTGATE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("TENANTGATE_REDIS_DB", -1),
		MaxRetries: getEnvInt("TENANTGATE_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("TENANTGATE_REDIS_POOL_SIZE", 10),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		Mode: strings.ToLower(getEnv("TENANTGATE_AUTH_MODE", AuthModeJWT)),
		JWT: auth.JWTConfig{
			Secret:   []byte(getEnv("TENANTGATE_JWT_SECRET", "")),
			Issuer:   getEnv("TENANTGATE_JWT_ISSUER", ""),
			Audience: getEnv("TENANTGATE_JWT_AUDIENCE", ""),
			Leeway:   getEnvDuration("TENANTGATE_JWT_LEEWAY", 30*time.Second),
		},
		OIDC: auth.OIDCConfig{
			IssuerURL: getEnv("TENANTGATE_OIDC_ISSUER_URL", ""),
			ClientID:  getEnv("TENANTGATE_OIDC_CLIENT_ID", ""),
		},
	}
}

func loadFeaturesConfig() tenancy.CacheConfig {
	cfg := tenancy.DefaultCacheConfig()
	cfg.Size = getEnvInt("TENANTGATE_FEATURE_CACHE_SIZE", cfg.Size)
	cfg.TTL = getEnvDuration("TENANTGATE_FEATURE_CACHE_TTL", cfg.TTL)
	cfg.KeyPrefix = getEnv("TENANTGATE_FEATURE_CACHE_PREFIX", cfg.KeyPrefix)
	cfg.LookupTimeout = getEnvDuration("TENANTGATE_FEATURE_LOOKUP_TIMEOUT", cfg.LookupTimeout)
	return cfg
}

func loadAuditConfig() AuditConfig {
	base := audit.DefaultConfig()
	base.DefaultSinceDays = getEnvInt("TENANTGATE_AUDIT_DEFAULT_SINCE_DAYS", base.DefaultSinceDays)
	base.DefaultLimit = getEnvInt("TENANTGATE_AUDIT_DEFAULT_LIMIT", base.DefaultLimit)
	base.MaxLimit = getEnvInt("TENANTGATE_AUDIT_MAX_LIMIT", base.MaxLimit)
	base.QueueSize = getEnvInt("TENANTGATE_AUDIT_QUEUE_SIZE", base.QueueSize)
	base.Workers = getEnvInt("TENANTGATE_AUDIT_WORKERS", base.Workers)
	base.WriteTimeout = getEnvDuration("TENANTGATE_AUDIT_WRITE_TIMEOUT", base.WriteTimeout)

	fileSink := audit.DefaultFileSinkConfig()
	fileSink.BasePath = getEnv("TENANTGATE_AUDIT_FILE_PATH", fileSink.BasePath)
	fileSink.Rotate = getEnvBool("TENANTGATE_AUDIT_FILE_ROTATE", fileSink.Rotate)
	fileSink.MaxSize = getEnvInt64("TENANTGATE_AUDIT_FILE_MAX_SIZE", fileSink.MaxSize)
	fileSink.MaxFiles = getEnvInt("TENANTGATE_AUDIT_FILE_MAX_FILES", fileSink.MaxFiles)

	return AuditConfig{
		Config:          base,
		FileSinkEnabled: getEnvBool("TENANTGATE_AUDIT_FILE_ENABLED", false),
		FileSink:        fileSink,
	}
}

func loadArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		S3: storage.S3Config{
			Endpoint:     getEnv("TENANTGATE_S3_ENDPOINT", ""),
			Region:       getEnv("TENANTGATE_S3_REGION", "us-east-1"),
			Bucket:       getEnv("TENANTGATE_S3_BUCKET", ""),
			AccessKey:    getEnv("TENANTGATE_S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("TENANTGATE_S3_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("TENANTGATE_S3_USE_PATH_STYLE", false),
			CreateBucket: getEnvBool("TENANTGATE_S3_CREATE_BUCKET", false),
		},
		Archive: audit.ArchiveConfig{
			Prefix:   getEnv("TENANTGATE_ARCHIVE_PREFIX", "audit"),
			PageSize: getEnvInt("TENANTGATE_ARCHIVE_PAGE_SIZE", 5000),
		},
		Schedule: getEnv("TENANTGATE_ARCHIVE_SCHEDULE", "15 0 * * *"),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	defaults := middleware.DefaultRateLimitConfig()
	return RateLimitConfig{
		Enabled: getEnvBool("TENANTGATE_RATE_LIMIT_ENABLED", true),
		RateLimitConfig: middleware.RateLimitConfig{
			RequestsPerWindow: getEnvInt("TENANTGATE_RATE_LIMIT_REQUESTS", defaults.RequestsPerWindow),
			WindowDuration:    getEnvDuration("TENANTGATE_RATE_LIMIT_WINDOW", defaults.WindowDuration),
			BurstSize:         getEnvInt("TENANTGATE_RATE_LIMIT_BURST", defaults.BurstSize),
		},
		Distributed: getEnvBool("TENANTGATE_RATE_LIMIT_DISTRIBUTED", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLevel(getEnv("TENANTGATE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("TENANTGATE_METRICS_ENABLED", true),
		OTel: observability.OTelConfig{
			Enabled:        getEnvBool("TENANTGATE_OTEL_ENABLED", false),
			Endpoint:       getEnv("TENANTGATE_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:    getEnv("TENANTGATE_OTEL_SERVICE_NAME", "tenantgate"),
			ServiceVersion: getEnv("TENANTGATE_OTEL_SERVICE_VERSION", "1.0.0"),
			Insecure:       getEnvBool("TENANTGATE_OTEL_INSECURE", true),
			SampleRatio:    getEnvFloat("TENANTGATE_OTEL_SAMPLE_RATIO", 1),
		},
	}
}

// Validate checks if the configuration is valid for the API server
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.PrimaryURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Auth.Mode {
	case AuthModeJWT:
		if len(c.Auth.JWT.Secret) == 0 {
			return fmt.Errorf("JWT secret is required for jwt auth mode")
		}
	case AuthModeOIDC:
		if c.Auth.OIDC.IssuerURL == "" || c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC issuer URL and client ID are required for oidc auth mode")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be jwt or oidc)", c.Auth.Mode)
	}

	if c.Audit.DefaultSinceDays <= 0 {
		return fmt.Errorf("audit default since days must be positive")
	}
	if c.Audit.DefaultLimit <= 0 || c.Audit.DefaultLimit > c.Audit.MaxLimit {
		return fmt.Errorf("audit default limit must be between 1 and %d", c.Audit.MaxLimit)
	}
	if c.Audit.FileSinkEnabled && c.Audit.FileSink.BasePath == "" {
		return fmt.Errorf("audit file path is required when the file sink is enabled")
	}

	if c.RateLimit.Distributed && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required for distributed rate limiting")
	}

	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ValidateArchive checks the settings the archiver needs
func (c *Config) ValidateArchive() error {
	if c.Database.PrimaryURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Archive.S3.Bucket == "" {
		return fmt.Errorf("S3 bucket is required for archiving")
	}
	if c.Archive.Archive.PageSize <= 0 || c.Archive.Archive.PageSize > c.Audit.MaxLimit {
		return fmt.Errorf("archive page size must be between 1 and %d", c.Audit.MaxLimit)
	}
	if c.Archive.Schedule == "" {
		return fmt.Errorf("archive schedule is required")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
