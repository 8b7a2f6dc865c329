package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TG_TEST_STRING", "custom")
	t.Setenv("TG_TEST_BOOL", "1")
	t.Setenv("TG_TEST_BOOL_UPPER", "TRUE")
	t.Setenv("TG_TEST_BOOL_NO", "yes")
	t.Setenv("TG_TEST_INT", "42")
	t.Setenv("TG_TEST_INT_BAD", "forty")
	t.Setenv("TG_TEST_INT64", "9000000000")
	t.Setenv("TG_TEST_FLOAT", "0.25")
	t.Setenv("TG_TEST_DURATION", "90s")
	t.Setenv("TG_TEST_DURATION_BAD", "90")

	assert.Equal(t, "custom", getEnv("TG_TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("TG_TEST_UNSET", "default"))

	assert.True(t, getEnvBool("TG_TEST_BOOL", false))
	assert.True(t, getEnvBool("TG_TEST_BOOL_UPPER", false))
	assert.False(t, getEnvBool("TG_TEST_BOOL_NO", true), "only true and 1 are truthy")
	assert.True(t, getEnvBool("TG_TEST_UNSET", true))

	assert.Equal(t, 42, getEnvInt("TG_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("TG_TEST_INT_BAD", 1))
	assert.Equal(t, int64(9000000000), getEnvInt64("TG_TEST_INT64", 0))
	assert.Equal(t, 0.25, getEnvFloat("TG_TEST_FLOAT", 1))

	assert.Equal(t, 90*time.Second, getEnvDuration("TG_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TG_TEST_DURATION_BAD", time.Second))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TENANTGATE_POSTGRES_URL", "postgres://localhost/tenantgate")
	t.Setenv("TENANTGATE_JWT_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Empty(t, cfg.Database.ReplicaURLs)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, -1, cfg.Redis.DB)

	assert.Equal(t, AuthModeJWT, cfg.Auth.Mode)
	assert.Equal(t, []byte("s3cret"), cfg.Auth.JWT.Secret)

	assert.Equal(t, 30, cfg.Audit.DefaultSinceDays)
	assert.Equal(t, 1000, cfg.Audit.DefaultLimit)
	assert.False(t, cfg.Audit.FileSinkEnabled)

	assert.Equal(t, "audit", cfg.Archive.Archive.Prefix)
	assert.Equal(t, "15 0 * * *", cfg.Archive.Schedule)

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 600, cfg.RateLimit.RequestsPerWindow)
	assert.False(t, cfg.RateLimit.Distributed)

	assert.Empty(t, cfg.Policies.File)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.OTel.Enabled)
	assert.Equal(t, "tenantgate", cfg.Observability.OTel.ServiceName)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("TENANTGATE_POSTGRES_URL", "postgres://primary/tenantgate")
	t.Setenv("TENANTGATE_POSTGRES_REPLICA_URLS", "postgres://r1/tenantgate, postgres://r2/tenantgate")
	t.Setenv("TENANTGATE_AUTH_MODE", "OIDC")
	t.Setenv("TENANTGATE_OIDC_ISSUER_URL", "https://issuer.example.com")
	t.Setenv("TENANTGATE_OIDC_CLIENT_ID", "tenantgate")
	t.Setenv("TENANTGATE_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("TENANTGATE_RATE_LIMIT_DISTRIBUTED", "true")
	t.Setenv("TENANTGATE_AUDIT_DEFAULT_SINCE_DAYS", "7")
	t.Setenv("TENANTGATE_AUDIT_FILE_ENABLED", "true")
	t.Setenv("TENANTGATE_AUDIT_FILE_PATH", "/tmp/audit")
	t.Setenv("TENANTGATE_FEATURE_CACHE_TTL", "5s")
	t.Setenv("TENANTGATE_FEATURE_LOOKUP_TIMEOUT", "750ms")
	t.Setenv("TENANTGATE_POLICY_FILE", "/etc/tenantgate/policies.yaml")
	t.Setenv("TENANTGATE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"postgres://r1/tenantgate", "postgres://r2/tenantgate"}, cfg.Database.ReplicaURLs)
	assert.Equal(t, AuthModeOIDC, cfg.Auth.Mode)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.True(t, cfg.RateLimit.Distributed)
	assert.Equal(t, 7, cfg.Audit.DefaultSinceDays)
	assert.True(t, cfg.Audit.FileSinkEnabled)
	assert.Equal(t, "/tmp/audit", cfg.Audit.FileSink.BasePath)
	assert.Equal(t, 5*time.Second, cfg.Features.TTL)
	assert.Equal(t, 750*time.Millisecond, cfg.Features.LookupTimeout)
	assert.Equal(t, "/etc/tenantgate/policies.yaml", cfg.Policies.File)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("TENANTGATE_JWT_SECRET", "s3cret")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres URL is required")
}

func validConfig() *Config {
	cfg := &Config{
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		Auth:     loadAuthConfig(),
		Audit:    loadAuditConfig(),
		Archive:  loadArchiveConfig(),
	}
	cfg.Database.PrimaryURL = "postgres://localhost/tenantgate"
	cfg.Auth.JWT.Secret = []byte("s3cret")
	cfg.Archive.S3.Bucket = "audit"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"missing health port", func(c *Config) { c.Server.HealthPort = "" }, "health port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"missing database", func(c *Config) { c.Database.PrimaryURL = "" }, "postgres URL is required"},
		{"missing jwt secret", func(c *Config) { c.Auth.JWT.Secret = nil }, "JWT secret is required"},
		{"oidc without issuer", func(c *Config) { c.Auth.Mode = AuthModeOIDC }, "OIDC issuer URL and client ID"},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "basic" }, "invalid auth mode"},
		{"zero since days", func(c *Config) { c.Audit.DefaultSinceDays = 0 }, "since days"},
		{"limit above max", func(c *Config) { c.Audit.DefaultLimit = c.Audit.MaxLimit + 1 }, "default limit"},
		{"file sink without path", func(c *Config) {
			c.Audit.FileSinkEnabled = true
			c.Audit.FileSink.BasePath = ""
		}, "audit file path"},
		{"distributed without redis", func(c *Config) { c.RateLimit.Distributed = true }, "redis URL is required"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTel = observability.OTelConfig{Enabled: true, ServiceName: "tenantgate"}
		}, "endpoint is required"},
		{"otel without service name", func(c *Config) {
			c.Observability.OTel = observability.OTelConfig{Enabled: true, Endpoint: "collector:4317"}
		}, "service name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigValidateArchive(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ValidateArchive())

	cfg.Archive.S3.Bucket = ""
	assert.ErrorContains(t, cfg.ValidateArchive(), "S3 bucket")

	cfg = validConfig()
	cfg.Archive.Archive.PageSize = cfg.Audit.MaxLimit + 1
	assert.ErrorContains(t, cfg.ValidateArchive(), "page size")

	cfg = validConfig()
	cfg.Archive.Schedule = ""
	assert.ErrorContains(t, cfg.ValidateArchive(), "schedule")
}
