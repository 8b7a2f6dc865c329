package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/authz"
)

// countingGrants records lookups so tests can assert the platform bypass
type countingGrants struct {
	inner GrantLookup
	err   error
	calls int
}

func (c *countingGrants) HasGrant(ctx context.Context, roleID, permission string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return c.inner.HasGrant(ctx, roleID, permission)
}

func tenantPrincipal(roleID string) *auth.Principal {
	return &auth.Principal{ID: "u1", TenantID: "T1", RoleID: roleID, RoleScope: auth.ScopeTenant}
}

func platformPrincipal() *auth.Principal {
	return &auth.Principal{ID: "ops", RoleID: "R0", RoleScope: auth.ScopePlatform}
}

func TestEvaluator_Check(t *testing.T) {
	grants := &countingGrants{inner: NewStore(setupTestDB(t))}
	e := NewEvaluator(grants)
	ctx := context.Background()

	if err := e.Check(ctx, tenantPrincipal("R1"), "view_customer"); err != nil {
		t.Errorf("Check(view_customer) error = %v, want nil", err)
	}

	err := e.Check(ctx, tenantPrincipal("R1"), "delete_customer")
	if !errors.Is(err, authz.ErrInsufficientPermission) {
		t.Fatalf("Check(delete_customer) error = %v, want InsufficientPermission", err)
	}
	ae, _ := authz.As(err)
	if ae.Permission != "delete_customer" {
		t.Errorf("rejection names %q, want delete_customer", ae.Permission)
	}
}

func TestEvaluator_PlatformBypass(t *testing.T) {
	grants := &countingGrants{inner: NewStore(setupTestDB(t))}
	e := NewEvaluator(grants)
	ctx := context.Background()

	for _, perm := range []string{"view_customer", "delete_everything", ""} {
		if err := e.Check(ctx, platformPrincipal(), perm); err != nil {
			t.Errorf("platform Check(%q) error = %v, want nil", perm, err)
		}
	}
	if grants.calls != 0 {
		t.Errorf("platform checks made %d lookups, want 0", grants.calls)
	}
}

func TestEvaluator_CheckPermission_Reason(t *testing.T) {
	e := NewEvaluator(NewStore(setupTestDB(t)))
	ctx := context.Background()

	result, err := e.CheckPermission(ctx, tenantPrincipal("R1"), "view_customer")
	if err != nil {
		t.Fatalf("CheckPermission() error = %v", err)
	}
	if !result.Allowed || result.Reason == "" || result.CheckedAt.IsZero() {
		t.Errorf("unexpected result %+v", result)
	}

	result, err = e.CheckPermission(ctx, platformPrincipal(), "anything")
	if err != nil {
		t.Fatalf("CheckPermission() error = %v", err)
	}
	if result.Reason != "platform scope" {
		t.Errorf("Reason = %q, want platform scope", result.Reason)
	}
}

func TestEvaluator_LookupFailureFailsClosed(t *testing.T) {
	grants := &countingGrants{err: errors.New("db down")}
	e := NewEvaluator(grants)

	err := e.Check(context.Background(), tenantPrincipal("R1"), "view_customer")
	if !errors.Is(err, authz.ErrInternal) {
		t.Errorf("Check() error = %v, want Internal", err)
	}
}

func TestEvaluator_NilPrincipal(t *testing.T) {
	e := NewEvaluator(NewStore(setupTestDB(t)))

	err := e.Check(context.Background(), nil, "view_customer")
	if !errors.Is(err, authz.ErrUnauthenticated) {
		t.Errorf("Check(nil) error = %v, want Unauthenticated", err)
	}
}

func TestEvaluator_CheckAny(t *testing.T) {
	e := NewEvaluator(NewStore(setupTestDB(t)))
	ctx := context.Background()

	// manage_customer is accepted for updates only because the endpoint says so
	if err := e.CheckAny(ctx, tenantPrincipal("R2"), "update_customer", "manage_customer"); err != nil {
		t.Errorf("CheckAny() error = %v, want nil", err)
	}

	err := e.CheckAny(ctx, tenantPrincipal("R1"), "update_customer", "manage_customer")
	if !errors.Is(err, authz.ErrInsufficientPermission) {
		t.Fatalf("CheckAny() error = %v, want InsufficientPermission", err)
	}
	ae, _ := authz.As(err)
	if ae.Permission != "update_customer or manage_customer" {
		t.Errorf("rejection names %q", ae.Permission)
	}

	if err := e.CheckAny(ctx, tenantPrincipal("R1")); !errors.Is(err, authz.ErrInternal) {
		t.Errorf("CheckAny() with no permissions error = %v, want Internal", err)
	}
}

func TestEvaluator_CheckAll(t *testing.T) {
	e := NewEvaluator(NewStore(setupTestDB(t)))
	ctx := context.Background()

	if err := e.CheckAll(ctx, tenantPrincipal("R2"), "view_customer", "manage_customer"); err != nil {
		t.Errorf("CheckAll() error = %v, want nil", err)
	}

	err := e.CheckAll(ctx, tenantPrincipal("R2"), "view_customer", "delete_customer", "update_customer")
	ae, ok := authz.As(err)
	if !ok || ae.Permission != "delete_customer" {
		t.Errorf("CheckAll() error = %v, want first missing permission delete_customer", err)
	}
}

func TestCheckScope(t *testing.T) {
	if err := CheckScope(platformPrincipal(), auth.ScopePlatform); err != nil {
		t.Errorf("CheckScope(platform, platform) error = %v", err)
	}

	err := CheckScope(tenantPrincipal("R1"), auth.ScopePlatform)
	ae, ok := authz.As(err)
	if !ok || ae.Code != authz.CodeScopeMismatch {
		t.Fatalf("CheckScope(tenant, platform) error = %v, want ScopeMismatch", err)
	}
	if ae.RequiredScope != "platform" || ae.ActualScope != "tenant" {
		t.Errorf("ScopeMismatch names %q/%q", ae.RequiredScope, ae.ActualScope)
	}

	// platform does not satisfy a tenant requirement
	if err := CheckScope(platformPrincipal(), auth.ScopeTenant); !errors.Is(err, authz.ErrScopeMismatch) {
		t.Errorf("CheckScope(platform, tenant) error = %v, want ScopeMismatch", err)
	}

	if err := CheckScope(nil, auth.ScopeTenant); !errors.Is(err, authz.ErrUnauthenticated) {
		t.Errorf("CheckScope(nil) error = %v, want Unauthenticated", err)
	}
}
