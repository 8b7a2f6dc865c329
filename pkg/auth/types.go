package auth

import "time"

// RoleScope classifies a role as cross-tenant or tenant-restricted
type RoleScope string

const (
	ScopePlatform RoleScope = "platform" // Cross-tenant operator
	ScopeTenant   RoleScope = "tenant"   // Restricted to one tenant
)

// Valid reports whether s is a known scope
func (s RoleScope) Valid() bool {
	return s == ScopePlatform || s == ScopeTenant
}

// Principal is the resolved identity for one request.
// It is built once by the Resolver and must not be modified afterwards.
type Principal struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	TenantID  string    `json:"tenant_id,omitempty"` // Empty when the user has no tenant
	RoleID    string    `json:"role_id"`
	RoleName  string    `json:"role_name"`
	RoleScope RoleScope `json:"role_scope"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
}

// IsPlatform reports whether the principal holds a platform-scope role
func (p *Principal) IsPlatform() bool {
	return p != nil && p.RoleScope == ScopePlatform
}

// HasTenant reports whether the principal is associated with a tenant
func (p *Principal) HasTenant() bool {
	return p != nil && p.TenantID != ""
}

// DisplayName returns "First Last", falling back to the email
func (p *Principal) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	}
	return p.Email
}

// Verification is the result of a successful credential check
type Verification struct {
	SubjectID string
	ExpiresAt time.Time
}
