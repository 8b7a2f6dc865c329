// Package tenancy binds requests to a tenant and gates optional modules per tenant.
//
// Bind enforces tenant isolation: a tenant-scope principal is bound to its own
// tenant and nothing else, while platform principals are not bound at all.
// Downstream lookups filter by the bound tenant; EffectiveTenant lets
// unbound platform requests choose one explicitly.
//
// FeatureGate checks the (tenant, module) flag. A missing flag means disabled.
// CachedStore may front the flag store with an in-process LRU and Redis.
package tenancy
