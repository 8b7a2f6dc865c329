// Package contextkeys provides centralized context key definitions
//
// All context keys shared across packages are defined here so that the
// producer and every consumer agree on the key and the stored type.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithTenantID(ctx, tenantID)
//	tenantID := contextkeys.GetTenantID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: pipeline.Protect after identity resolution
	// Used by: handlers that need the caller identity
	PrincipalKey Key = "principal"

	// TenantIDKey contains the bound tenant id string ("" for platform callers)
	// Set by: pipeline.Protect after tenant binding
	// Used by: audit handlers, tenant-filtered queries, logger
	TenantIDKey Key = "tenant_id"

	// RequestContextKey contains *pipeline.RequestContext
	// Set by: pipeline.Protect
	// Used by: pipeline.FromContext
	RequestContextKey Key = "request_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, audit provenance, tracing
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user id string
	// Set by: pipeline.Protect
	// Used by: Logger
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"
)

// WithPrincipal adds the resolved principal to the context
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// WithTenantID adds the bound tenant id to the context
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// WithRequestContext adds the pipeline request context to the context
func WithRequestContext(ctx context.Context, rc interface{}) context.Context {
	return context.WithValue(ctx, RequestContextKey, rc)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetTenantID retrieves the bound tenant id. The second result reports
// whether the pipeline bound the request at all.
func GetTenantID(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(TenantIDKey).(string)
	return tenantID, ok
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
