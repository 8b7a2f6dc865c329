package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tenantgate/pkg/auth"
)

// Kind identifies what a Requirement checks
type Kind string

const (
	KindPermission     Kind = "permission"
	KindAnyPermission  Kind = "any_permission"
	KindAllPermissions Kind = "all_permissions"
	KindScope          Kind = "scope"
	KindModule         Kind = "module"
)

// Requirement is one check applied after tenant binding. Requirements run in
// the order they are declared and the first failure rejects the request.
type Requirement struct {
	Kind        Kind
	Permissions []string
	Scope       auth.RoleScope
	Module      string
}

// RequirePermission requires one exact permission
func RequirePermission(permission string) Requirement {
	return Requirement{Kind: KindPermission, Permissions: []string{permission}}
}

// RequireAnyPermission requires at least one of permissions
func RequireAnyPermission(permissions ...string) Requirement {
	return Requirement{Kind: KindAnyPermission, Permissions: permissions}
}

// RequireAllPermissions requires every one of permissions
func RequireAllPermissions(permissions ...string) Requirement {
	return Requirement{Kind: KindAllPermissions, Permissions: permissions}
}

// RequireScope requires the principal's role scope to equal scope
func RequireScope(scope auth.RoleScope) Requirement {
	return Requirement{Kind: KindScope, Scope: scope}
}

// RequireModule requires module to be enabled for the bound tenant
func RequireModule(module string) Requirement {
	return Requirement{Kind: KindModule, Module: module}
}

// Validate checks that the requirement is complete
func (r Requirement) Validate() error {
	switch r.Kind {
	case KindPermission:
		if len(r.Permissions) != 1 || r.Permissions[0] == "" {
			return errors.New("permission requirement needs exactly one permission")
		}
	case KindAnyPermission, KindAllPermissions:
		if len(r.Permissions) == 0 {
			return fmt.Errorf("%s requirement needs at least one permission", r.Kind)
		}
		for _, p := range r.Permissions {
			if p == "" {
				return fmt.Errorf("%s requirement has an empty permission", r.Kind)
			}
		}
	case KindScope:
		if !r.Scope.Valid() {
			return fmt.Errorf("unknown scope %q", r.Scope)
		}
	case KindModule:
		if r.Module == "" {
			return errors.New("module requirement needs a module name")
		}
	default:
		return fmt.Errorf("unknown requirement kind %q", r.Kind)
	}
	return nil
}

func (r Requirement) String() string {
	switch r.Kind {
	case KindScope:
		return "scope:" + string(r.Scope)
	case KindModule:
		return "module:" + r.Module
	case KindAnyPermission:
		return "any:" + strings.Join(r.Permissions, "|")
	case KindAllPermissions:
		return "all:" + strings.Join(r.Permissions, "+")
	}
	return strings.Join(r.Permissions, "")
}

// UnmarshalYAML reads the single-key form used in policy files:
//
//	- permission: delete_customer
//	- any_permission: [update_customer, manage_customer]
//	- scope: platform
//	- module: money-loan
func (r *Requirement) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return fmt.Errorf("line %d: requirement must be a single key mapping", value.Line)
	}

	key, val := value.Content[0], value.Content[1]
	kind := Kind(key.Value)

	var out Requirement
	switch kind {
	case KindPermission:
		var p string
		if err := val.Decode(&p); err != nil {
			return fmt.Errorf("line %d: %w", val.Line, err)
		}
		out = RequirePermission(p)
	case KindAnyPermission, KindAllPermissions:
		var ps []string
		if err := val.Decode(&ps); err != nil {
			return fmt.Errorf("line %d: %w", val.Line, err)
		}
		out = Requirement{Kind: kind, Permissions: ps}
	case KindScope:
		out = RequireScope(auth.RoleScope(val.Value))
	case KindModule:
		out = RequireModule(val.Value)
	default:
		return fmt.Errorf("line %d: unknown requirement kind %q", key.Line, key.Value)
	}

	if err := out.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", key.Line, err)
	}
	*r = out
	return nil
}

// MarshalYAML writes the single-key form read by UnmarshalYAML
func (r Requirement) MarshalYAML() (interface{}, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	switch r.Kind {
	case KindPermission:
		return map[string]string{string(r.Kind): r.Permissions[0]}, nil
	case KindAnyPermission, KindAllPermissions:
		return map[string][]string{string(r.Kind): r.Permissions}, nil
	case KindScope:
		return map[string]string{string(r.Kind): string(r.Scope)}, nil
	default:
		return map[string]string{string(r.Kind): r.Module}, nil
	}
}
