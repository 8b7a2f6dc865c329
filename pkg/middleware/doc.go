// Package middleware provides the HTTP middleware that runs in front of the
// authorization pipeline.
//
// RequestID assigns or propagates X-Request-ID so logs, spans and audit
// records of one request can be joined:
//
//	router.Use(middleware.RequestID)
//
// RateLimit throttles by client IP before any credential is looked at.
// Two limiters are available: the in-process token bucket
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//
// and a fixed-window limiter shared across instances through Redis
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "")
//
// Limiter errors fail open.
package middleware
