// Package rbac evaluates role grants for a resolved Principal.
//
// # Overview
//
// Permissions are opaque, exact-match names that follow the {verb}_{resource}
// convention (create_customer, view_audit_log). A role either holds a grant
// for a name or it does not; there are no wildcards, prefixes, or implied
// permissions.
//
//	evaluator := rbac.NewEvaluator(rbac.NewStore(db))
//	if err := evaluator.Check(ctx, principal, "delete_customer"); err != nil {
//		// *authz.Error with Code INSUFFICIENT_PERMISSION
//	}
//
// Platform-scope principals are granted every permission and no lookup is
// made for them.
//
// # Broader grants
//
// A broader permission such as manage_customer is never expanded by the
// evaluator. Endpoints that accept it declare so explicitly:
//
//	evaluator.CheckAny(ctx, principal, "update_customer", "manage_customer")
//
// # Scopes
//
// CheckScope compares the role scope of a principal with a required scope by
// plain equality.
package rbac
