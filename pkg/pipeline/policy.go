package pipeline

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// AuditSpec declares the audit entry emitted after a protected handler runs
type AuditSpec struct {
	Action   string `yaml:"action"`
	Resource string `yaml:"resource"`

	// ResourceIDVar names the route variable holding the resource id
	ResourceIDVar string `yaml:"resource_id_var,omitempty"`

	// TenantVar names the route variable holding the tenant a platform
	// caller acted on. Ignored for tenant-bound callers.
	TenantVar string `yaml:"tenant_var,omitempty"`
}

// Policy is the authorization declaration of one endpoint
type Policy struct {
	Name     string        `yaml:"name"`
	Requires []Requirement `yaml:"requires,omitempty"`
	Audit    *AuditSpec    `yaml:"audit,omitempty"`
}

// Validate checks the policy and all of its requirements
func (p Policy) Validate() error {
	if p.Name == "" {
		return errors.New("policy name is required")
	}
	for i, req := range p.Requires {
		if err := req.Validate(); err != nil {
			return fmt.Errorf("policy %s: requirement %d: %w", p.Name, i, err)
		}
	}
	if p.Audit != nil && (p.Audit.Action == "" || p.Audit.Resource == "") {
		return fmt.Errorf("policy %s: audit needs action and resource", p.Name)
	}
	return nil
}

// PolicyFile is the on-disk policy document
type PolicyFile struct {
	Policies []Policy `yaml:"policies"`
}

// ParsePolicies decodes and validates a policy document. Duplicate names
// are rejected.
func ParsePolicies(data []byte) ([]Policy, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}

	seen := make(map[string]bool, len(file.Policies))
	for _, p := range file.Policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate policy %s", p.Name)
		}
		seen[p.Name] = true
	}
	return file.Policies, nil
}

// LoadPolicyFile reads policies from path
func LoadPolicyFile(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicies(data)
}

// Registry holds the active policies. Defaults compiled into the binary are
// always present; file policies override them by name.
type Registry struct {
	mu       sync.RWMutex
	defaults map[string]Policy
	active   map[string]Policy
}

// NewRegistry creates a registry seeded with defaults
func NewRegistry(defaults ...Policy) (*Registry, error) {
	r := &Registry{defaults: make(map[string]Policy, len(defaults))}
	for _, p := range defaults {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		r.defaults[p.Name] = p
	}
	r.active = r.merge(nil)
	return r, nil
}

func (r *Registry) merge(overrides []Policy) map[string]Policy {
	merged := make(map[string]Policy, len(r.defaults)+len(overrides))
	for name, p := range r.defaults {
		merged[name] = p
	}
	for _, p := range overrides {
		merged[p.Name] = p
	}
	return merged
}

// Get returns the active policy called name
func (r *Registry) Get(name string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.active[name]
	return p, ok
}

// Replace swaps in a new set of overrides. Policies removed from the
// overrides fall back to their defaults.
func (r *Registry) Replace(overrides []Policy) error {
	for _, p := range overrides {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	merged := r.merge(overrides)

	r.mu.Lock()
	r.active = merged
	r.mu.Unlock()
	return nil
}

// Names returns the active policy names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
