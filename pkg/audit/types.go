package audit

import (
	"context"
	"strings"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/auth"
)

// Record is one persisted audit fact. Records are append-only.
type Record struct {
	ID          int64                  `json:"id"`
	TenantID    string                 `json:"tenant_id,omitempty"` // Empty for platform actions without a tenant
	ActorUserID string                 `json:"actor_user_id"`
	ActorEmail  string                 `json:"actor_email,omitempty"` // Populated on the read path only
	Action      string                 `json:"action"`
	Resource    string                 `json:"resource"`
	ResourceID  string                 `json:"resource_id,omitempty"`
	Details     map[string]interface{} `json:"details"`
	IPAddress   string                 `json:"ip_address,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Entry is what callers hand to the Recorder
type Entry struct {
	Action     string
	Resource   string
	ResourceID string
	Details    map[string]interface{}

	Actor     *auth.Principal
	IPAddress string
	UserAgent string
	RequestID string

	// TenantOverride attributes the record to another tenant. Honoured for
	// platform actors only.
	TenantOverride string
}

// Filter selects records on the read path
type Filter struct {
	SinceDays int       // Window size in days; <= 0 uses Config.DefaultSinceDays
	Since     time.Time // Explicit window start; overrides SinceDays
	Until     time.Time // Zero means now
	Action    string
	Resource  string
	UserID    string
	UserEmail string // Case-insensitive substring
	TenantID  string
	Limit     int // <= 0 uses Config.DefaultLimit, capped at Config.MaxLimit
	Offset    int
}

// ActionCount is one row of the per-action summary
type ActionCount struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Count    int64  `json:"count"`
}

// Sink persists records. Implementations write a record completely or not at all.
type Sink interface {
	Append(ctx context.Context, rec *Record) error
}

// Querier is the operator read path
type Querier interface {
	Query(ctx context.Context, f Filter) ([]*Record, error)
	Summary(ctx context.Context, f Filter) ([]ActionCount, error)
}

// Config holds audit defaults
type Config struct {
	DefaultSinceDays int
	DefaultLimit     int
	MaxLimit         int

	QueueSize    int           // Recorder backlog before records are dropped
	Workers      int           // Concurrent sink writers
	WriteTimeout time.Duration // Per-record sink deadline
}

// DefaultConfig returns the documented defaults: a 30 day window and 1000 rows
func DefaultConfig() Config {
	return Config{
		DefaultSinceDays: 30,
		DefaultLimit:     1000,
		MaxLimit:         10000,
		QueueSize:        1024,
		Workers:          4,
		WriteTimeout:     5 * time.Second,
	}
}

// resolve applies defaults and normalization to f
func (c Config) resolve(f Filter, now time.Time) (Filter, time.Time, time.Time) {
	if f.SinceDays <= 0 {
		f.SinceDays = c.DefaultSinceDays
	}
	if f.Limit <= 0 {
		f.Limit = c.DefaultLimit
	}
	if c.MaxLimit > 0 && f.Limit > c.MaxLimit {
		f.Limit = c.MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Action = normalizeName(f.Action)
	f.Resource = normalizeName(f.Resource)
	f.UserEmail = strings.TrimSpace(f.UserEmail)

	until := now
	if !f.Until.IsZero() {
		until = f.Until.UTC()
	}
	since := until.Add(-time.Duration(f.SinceDays) * 24 * time.Hour)
	if !f.Since.IsZero() {
		since = f.Since.UTC()
	}
	return f, since, until
}

func normalizeName(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
