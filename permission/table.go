package permission

import (
	"errors"
	"net/http"
	"strings"
	"sync"
)

// Policy is the authorization declared for one route.
type Policy struct {
	Roles []Role
	Scope *Requirement
}

// Table maps (method, route template) to a Policy.
type Table struct {
	mu       sync.RWMutex
	policies map[string]Policy
	frozen   bool
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{policies: make(map[string]Policy)}
}

func routeKey(method, template string) string {
	return strings.ToUpper(method) + " " + template
}

// Register declares the policy for method and template. It must be called before
// Freeze.
func (t *Table) Register(method, template string, policy Policy) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return errors.New("route table frozen")
	}
	if template == "" {
		return errors.New("route template cannot be empty")
	}
	if method == "" {
		method = http.MethodGet
	}
	key := routeKey(method, template)
	if _, exists := t.policies[key]; exists {
		return errors.New("route already registered: " + key)
	}
	for _, r := range policy.Roles {
		if !r.Valid() {
			return errors.New("unknown role in policy: " + string(r))
		}
	}
	if policy.Scope != nil {
		if policy.Scope.Kind != ScopeBranch && policy.Scope.Kind != ScopeDepartment {
			return errors.New("unknown scope kind: " + string(policy.Scope.Kind))
		}
		if policy.Scope.Param == "" {
			return errors.New("scope requirement needs a parameter name")
		}
	}

	t.policies[key] = policy
	return nil
}

// MustRegister is Register that panics on error. Intended for static tables.
func (t *Table) MustRegister(method, template string, policy Policy) {
	if err := t.Register(method, template, policy); err != nil {
		panic(err)
	}
}

// Lookup returns the policy for method and template.
func (t *Table) Lookup(method, template string) (Policy, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.policies[routeKey(method, template)]
	return p, ok
}

// Freeze prevents further registrations.
func (t *Table) Freeze() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frozen = true
}

// Count returns the number of registered routes.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.policies)
}
