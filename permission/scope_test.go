package permission

import (
	"context"
	"errors"
	"testing"
)

type staticResolver map[string]string

func (r staticResolver) BranchOfDepartment(_ context.Context, _ string, departmentID string) (string, error) {
	b, ok := r[departmentID]
	if !ok {
		return "", errors.New("unknown department")
	}
	return b, nil
}

func TestEvaluate(t *testing.T) {
	branch := &Requirement{Kind: ScopeBranch, Param: "branchId"}
	dept := &Requirement{Kind: ScopeDepartment, Param: "departmentId"}

	owner := Subject{Role: RoleOwner}
	leader := Subject{Role: RoleLeader, AssignedBranches: []string{"B1"}}
	manager := Subject{Role: RoleManager, AssignedDepartments: []string{"D1"}}

	tests := []struct {
		name    string
		subject Subject
		req     *Requirement
		target  string
		allowed bool
	}{
		{"no requirement", manager, nil, "D9", true},
		{"owner bypasses department", owner, dept, "D2", true},
		{"owner bypasses branch", owner, branch, "B9", true},
		{"missing target allowed", manager, dept, "", true},
		{"leader assigned branch", leader, branch, "B1", true},
		{"leader unassigned branch", leader, branch, "B2", false},
		{"manager assigned department", manager, dept, "D1", true},
		{"manager unassigned department", manager, dept, "D2", false},
		{"leader any department without resolver", leader, dept, "D7", true},
		{"manager branch scope denied", manager, branch, "B1", false},
		{"unknown role denied", Subject{Role: "GUEST"}, dept, "D1", false},
	}

	e := NewEvaluator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Evaluate(context.Background(), tt.subject, tt.req, tt.target)
			if tt.allowed && err != nil {
				t.Fatalf("expected allow, got %v", err)
			}
			if !tt.allowed {
				var fe *ForbiddenError
				if !errors.As(err, &fe) || !errors.Is(err, ErrForbidden) {
					t.Fatalf("expected ForbiddenError, got %v", err)
				}
				if fe.Reason == "" {
					t.Fatal("expected a reason")
				}
			}
		})
	}
}

func TestEvaluateLeaderDepartmentWithResolver(t *testing.T) {
	e := NewEvaluator(staticResolver{"D1": "B1", "D2": "B2"})
	leader := Subject{Role: RoleLeader, OrganizationID: "org-1", AssignedBranches: []string{"B1"}}
	dept := &Requirement{Kind: ScopeDepartment, Param: "departmentId"}

	if err := e.Evaluate(context.Background(), leader, dept, "D1"); err != nil {
		t.Fatalf("expected allow for department in assigned branch, got %v", err)
	}
	if err := e.Evaluate(context.Background(), leader, dept, "D2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for department outside branches, got %v", err)
	}

	err := e.Evaluate(context.Background(), leader, dept, "D404")
	if err == nil || errors.Is(err, ErrForbidden) {
		t.Fatalf("expected resolver error, got %v", err)
	}
}

func TestCheckRoles(t *testing.T) {
	if err := CheckRoles(Subject{Role: RoleManager}, nil); err != nil {
		t.Fatalf("empty role set should admit any valid role: %v", err)
	}
	if err := CheckRoles(Subject{Role: RoleManager}, []Role{RoleOwner, RoleLeader}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := CheckRoles(Subject{Role: RoleLeader}, []Role{RoleOwner, RoleLeader}); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestRoleOrdering(t *testing.T) {
	if !RoleOwner.AtLeast(RoleLeader) || !RoleLeader.AtLeast(RoleManager) {
		t.Fatal("unexpected role ordering")
	}
	if RoleManager.AtLeast(RoleLeader) {
		t.Fatal("manager must not outrank leader")
	}
	if r, ok := ParseRole(" leader "); !ok || r != RoleLeader {
		t.Fatalf("ParseRole failed: %q %v", r, ok)
	}
	if _, ok := ParseRole("admin"); ok {
		t.Fatal("expected unknown role")
	}
}
