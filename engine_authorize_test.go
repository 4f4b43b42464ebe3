package orgauth

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/orgauth/permission"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAuthorizeScopeScenarios(t *testing.T) {
	engine, _, done := newEngineTest(t)
	defer done()

	ctx := context.Background()
	dept := &permission.Requirement{Kind: permission.ScopeDepartment, Param: "departmentId"}
	branch := &permission.Requirement{Kind: permission.ScopeBranch, Param: "branchId"}

	owner := &Identity{UserID: "o", Role: permission.RoleOwner}
	manager := &Identity{UserID: "m", Role: permission.RoleManager, AssignedDepartments: []string{"D1"}}
	leader := &Identity{UserID: "l", Role: permission.RoleLeader, AssignedBranches: []string{"B1"}}

	tests := []struct {
		name     string
		identity *Identity
		req      *permission.Requirement
		target   string
		allowed  bool
	}{
		{"owner any department", owner, dept, "D2", true},
		{"manager assigned department", manager, dept, "D1", true},
		{"manager other department", manager, dept, "D2", false},
		{"manager missing target", manager, dept, "", true},
		{"manager branch", manager, branch, "B1", false},
		{"leader assigned branch", leader, branch, "B1", true},
		{"leader other branch", leader, branch, "B2", false},
		{"leader department without resolver", leader, dept, "D9", true},
		{"no requirement", manager, nil, "X", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.AuthorizeScope(ctx, tt.identity, tt.req, tt.target)
			if tt.allowed && err != nil {
				t.Fatalf("expected allow, got %v", err)
			}
			if !tt.allowed {
				if !errors.Is(err, permission.ErrForbidden) {
					t.Fatalf("expected ErrForbidden, got %v", err)
				}
				if Classify(err).HTTPStatus() != 403 {
					t.Fatalf("expected 403, got %d", Classify(err).HTTPStatus())
				}
			}
		})
	}

	if got := testutil.ToFloat64(engine.Metrics().ScopeDeniedTotal.WithLabelValues(string(permission.ScopeDepartment))); got != 1 {
		t.Fatalf("expected 1 department denial, got %v", got)
	}
}

func TestAuthorizeChecksRolesFirst(t *testing.T) {
	engine, _, done := newEngineTest(t)
	defer done()

	ctx := context.Background()
	policy := permission.Policy{
		Roles: []permission.Role{permission.RoleOwner, permission.RoleLeader},
		Scope: &permission.Requirement{Kind: permission.ScopeBranch, Param: "branchId"},
	}

	manager := &Identity{UserID: "m", Role: permission.RoleManager}
	err := engine.Authorize(ctx, manager, policy, "")
	if !errors.Is(err, permission.ErrForbidden) {
		t.Fatalf("expected role rejection, got %v", err)
	}
	if msg := ClientMessage(err); msg == "Forbidden" {
		t.Fatalf("expected a specific reason, got %q", msg)
	}

	leader := &Identity{UserID: "l", Role: permission.RoleLeader, AssignedBranches: []string{"B1"}}
	if err := engine.Authorize(ctx, leader, policy, "B1"); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if err := engine.Authorize(ctx, nil, policy, "B1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for missing identity, got %v", err)
	}
}

type staticResolver map[string]string

func (r staticResolver) BranchOfDepartment(_ context.Context, _, departmentID string) (string, error) {
	return r[departmentID], nil
}

func TestAuthorizeLeaderDepartmentWithResolver(t *testing.T) {
	engine, _, done := newEngineTest(t)
	defer done()
	engine.evaluator = permission.NewEvaluator(staticResolver{"D1": "B1", "D2": "B2"})

	ctx := context.Background()
	dept := &permission.Requirement{Kind: permission.ScopeDepartment, Param: "departmentId"}
	leader := &Identity{UserID: "l", Role: permission.RoleLeader, AssignedBranches: []string{"B1"}}

	if err := engine.AuthorizeScope(ctx, leader, dept, "D1"); err != nil {
		t.Fatalf("expected department in assigned branch to be allowed, got %v", err)
	}
	if err := engine.AuthorizeScope(ctx, leader, dept, "D2"); !errors.Is(err, permission.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
