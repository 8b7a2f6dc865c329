package tenancy

import (
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/authz"
)

// Bind returns the tenant the request is bound to.
//
// Platform principals are not isolated and bind to no tenant (""). Every
// other principal binds to exactly its own tenant, or is rejected with
// NoTenantAssociation. Bind performs no I/O.
func Bind(p *auth.Principal) (string, error) {
	if p == nil {
		return "", authz.Unauthenticated()
	}
	if p.IsPlatform() {
		return "", nil
	}
	if !p.HasTenant() {
		return "", authz.NoTenantAssociation()
	}
	return p.TenantID, nil
}

// EffectiveTenant returns the tenant a downstream lookup must be filtered by.
// A bound tenant always wins; only unbound (platform) requests may pick one.
func EffectiveTenant(boundTenant, requested string) string {
	if boundTenant != "" {
		return boundTenant
	}
	return requested
}
