package api

import (
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/pipeline"
)

// Policy names used by the built-in routes
const (
	MePolicy             = "me"
	FeaturesReadPolicy   = "features.read"
	FeaturesUpdatePolicy = "features.update"
)

// DefaultPolicies returns the built-in endpoint policies. A policy file may
// override any of them by name.
func DefaultPolicies() []pipeline.Policy {
	return []pipeline.Policy{
		{Name: MePolicy},
		{Name: FeaturesReadPolicy},
		{
			Name:     FeaturesUpdatePolicy,
			Requires: []pipeline.Requirement{pipeline.RequireScope(auth.ScopePlatform)},
		},
		{
			Name:     audit.ReadPolicy,
			Requires: []pipeline.Requirement{pipeline.RequirePermission("view_audit_log")},
		},
	}
}
