package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/authz"
)

var errNoPermissions = errors.New("no permissions declared")

// Evaluator decides whether a principal's role grants a permission.
// Results are never cached beyond the call.
type Evaluator struct {
	grants GrantLookup
	now    func() time.Time
}

// NewEvaluator creates a new permission evaluator
func NewEvaluator(grants GrantLookup) *Evaluator {
	return &Evaluator{
		grants: grants,
		now:    time.Now,
	}
}

// CheckPermission evaluates a single permission and explains the decision.
// Platform principals are allowed before any lookup is made.
func (e *Evaluator) CheckPermission(ctx context.Context, p *auth.Principal, permission string) (*PermissionCheckResult, error) {
	result := &PermissionCheckResult{
		Permission: permission,
		CheckedAt:  e.now(),
	}

	if p == nil {
		return nil, authz.Unauthenticated()
	}

	if p.IsPlatform() {
		result.Allowed = true
		result.Reason = "platform scope"
		return result, nil
	}

	granted, err := e.grants.HasGrant(ctx, p.RoleID, permission)
	if err != nil {
		return nil, authz.Internal("permission lookup failed", err)
	}

	result.Allowed = granted
	if granted {
		result.Reason = fmt.Sprintf("granted to role %s", p.RoleID)
	} else {
		result.Reason = fmt.Sprintf("role %s has no grant for %s", p.RoleID, permission)
	}

	return result, nil
}

// Check returns nil when permission is granted, or InsufficientPermission
func (e *Evaluator) Check(ctx context.Context, p *auth.Principal, permission string) error {
	result, err := e.CheckPermission(ctx, p, permission)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return authz.InsufficientPermission(permission)
	}
	return nil
}

// CheckAny allows when at least one of permissions is granted.
// Permissions are tried in order and evaluation stops at the first grant.
func (e *Evaluator) CheckAny(ctx context.Context, p *auth.Principal, permissions ...string) error {
	if len(permissions) == 0 {
		return authz.Internal("invalid permission requirement", errNoPermissions)
	}

	for _, permission := range permissions {
		result, err := e.CheckPermission(ctx, p, permission)
		if err != nil {
			return err
		}
		if result.Allowed {
			return nil
		}
	}

	return authz.InsufficientPermission(strings.Join(permissions, " or "))
}

// CheckAll allows only when every permission is granted.
// The first missing permission is named in the rejection.
func (e *Evaluator) CheckAll(ctx context.Context, p *auth.Principal, permissions ...string) error {
	if len(permissions) == 0 {
		return authz.Internal("invalid permission requirement", errNoPermissions)
	}

	for _, permission := range permissions {
		if err := e.Check(ctx, p, permission); err != nil {
			return err
		}
	}

	return nil
}

// CheckScope compares the principal's role scope with the required scope.
// There is no precedence between scopes: platform does not satisfy tenant.
func CheckScope(p *auth.Principal, required auth.RoleScope) error {
	if p == nil {
		return authz.Unauthenticated()
	}
	if p.RoleScope != required {
		return authz.ScopeMismatch(string(required), string(p.RoleScope))
	}
	return nil
}
