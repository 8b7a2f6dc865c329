package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/authz"
)

var errNoModule = errors.New("no module declared")

// FlagLookup answers whether a module is enabled for a tenant.
// A missing flag is reported as disabled.
type FlagLookup interface {
	IsEnabled(ctx context.Context, tenantID, module string) (bool, error)
}

// FlagStore is a FlagLookup that can also change flags
type FlagStore interface {
	FlagLookup
	SetEnabled(ctx context.Context, tenantID, module string, enabled bool) error
}

// Store reads and writes tenant feature flags
type Store struct {
	db *sql.DB
}

// NewStore creates a new feature flag store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// IsEnabled returns the flag for (tenantID, module); absence is false
func (s *Store) IsEnabled(ctx context.Context, tenantID, module string) (bool, error) {
	query := `
		SELECT enabled FROM tenant_features
		WHERE tenant_id = $1 AND module_name = $2
	`

	var enabled bool
	err := s.db.QueryRowContext(ctx, query, tenantID, module).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get feature flag: %w", err)
	}

	return enabled, nil
}

// SetEnabled creates or updates the flag for (tenantID, module)
func (s *Store) SetEnabled(ctx context.Context, tenantID, module string, enabled bool) error {
	query := `
		INSERT INTO tenant_features (tenant_id, module_name, enabled, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (tenant_id, module_name)
		DO UPDATE SET enabled = excluded.enabled, updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query, tenantID, module, enabled); err != nil {
		return fmt.Errorf("failed to set feature flag: %w", err)
	}

	return nil
}

// FeatureGate decides whether a tenant may use a module
type FeatureGate struct {
	flags FlagLookup
}

// NewFeatureGate creates a new feature gate
func NewFeatureGate(flags FlagLookup) *FeatureGate {
	return &FeatureGate{flags: flags}
}

// Check returns nil when module is enabled for boundTenant.
// Platform principals bypass the gate without a lookup.
func (g *FeatureGate) Check(ctx context.Context, p *auth.Principal, boundTenant, module string) error {
	if p == nil {
		return authz.Unauthenticated()
	}
	if p.IsPlatform() {
		return nil
	}
	if boundTenant == "" {
		return authz.NoTenantAssociation()
	}
	if module == "" {
		return authz.Internal("invalid module requirement", errNoModule)
	}

	enabled, err := g.flags.IsEnabled(ctx, boundTenant, module)
	if err != nil {
		return authz.Internal("feature flag lookup failed", err)
	}
	if !enabled {
		return authz.ModuleNotEnabled(module)
	}

	return nil
}
