package rbac

import (
	"strings"
	"time"
)

// PermissionName builds a permission name following the {verb}_{resource}
// convention, e.g. PermissionName("create", "customer") == "create_customer".
func PermissionName(verb, resource string) string {
	return strings.ToLower(verb) + "_" + strings.ToLower(resource)
}

// PermissionCheckResult represents the result of a permission check
type PermissionCheckResult struct {
	Allowed    bool      `json:"allowed"`
	Permission string    `json:"permission"`
	Reason     string    `json:"reason,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}
