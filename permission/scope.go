package permission

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrForbidden is the sentinel every authorization denial unwraps to.
var ErrForbidden = errors.New("forbidden")

// ScopeKind names the level a requirement applies to.
type ScopeKind string

const (
	ScopeBranch     ScopeKind = "BRANCH"
	ScopeDepartment ScopeKind = "DEPARTMENT"
)

// Requirement declares that an operation targets a scope identified by the
// request parameter Param.
type Requirement struct {
	Kind  ScopeKind
	Param string
}

// Subject is the authenticated caller as seen by scope evaluation.
type Subject struct {
	UserID              string
	Role                Role
	OrganizationID      string
	AssignedBranches    []string
	AssignedDepartments []string
}

// ForbiddenError carries a reason that is safe to return to an authenticated
// caller.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Reason
}

// Unwrap returns ErrForbidden.
func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

func forbidden(format string, args ...any) error {
	return &ForbiddenError{Reason: fmt.Sprintf(format, args...)}
}

// DepartmentBranchResolver maps a department to the branch that contains it.
type DepartmentBranchResolver interface {
	BranchOfDepartment(ctx context.Context, organizationID, departmentID string) (string, error)
}

// Evaluator decides scope requirements.
type Evaluator struct {
	resolver DepartmentBranchResolver
}

// NewEvaluator returns an Evaluator. A nil resolver lets leaders reach any
// department in their organization.
func NewEvaluator(resolver DepartmentBranchResolver) *Evaluator {
	return &Evaluator{resolver: resolver}
}

// CheckRoles returns a ForbiddenError unless subject's role is in allowed. An
// empty allowed set admits every valid role.
func CheckRoles(subject Subject, allowed []Role) error {
	if !subject.Role.Valid() {
		return forbidden("unknown role %q", subject.Role)
	}
	if len(allowed) == 0 || slices.Contains(allowed, subject.Role) {
		return nil
	}
	return forbidden("role %s not permitted", subject.Role)
}

// Evaluate decides req for subject against targetID, the scope id extracted from
// the request. A nil requirement or an empty targetID is allowed.
func (e *Evaluator) Evaluate(ctx context.Context, subject Subject, req *Requirement, targetID string) error {
	if req == nil {
		return nil
	}
	if subject.Role == RoleOwner {
		return nil
	}
	if targetID == "" {
		return nil
	}

	switch req.Kind {
	case ScopeBranch:
		if subject.Role == RoleLeader {
			if slices.Contains(subject.AssignedBranches, targetID) {
				return nil
			}
			return forbidden("branch %s not assigned", targetID)
		}
		return forbidden("role %s cannot access branch scope", subject.Role)

	case ScopeDepartment:
		switch subject.Role {
		case RoleManager:
			if slices.Contains(subject.AssignedDepartments, targetID) {
				return nil
			}
			return forbidden("department %s not assigned", targetID)
		case RoleLeader:
			return e.leaderDepartment(ctx, subject, targetID)
		}
		return forbidden("role %s cannot access department scope", subject.Role)
	}

	return forbidden("unknown scope kind %q", req.Kind)
}

func (e *Evaluator) leaderDepartment(ctx context.Context, subject Subject, departmentID string) error {
	if e == nil || e.resolver == nil {
		return nil
	}
	branchID, err := e.resolver.BranchOfDepartment(ctx, subject.OrganizationID, departmentID)
	if err != nil {
		return fmt.Errorf("resolve department %s: %w", departmentID, err)
	}
	if branchID != "" && slices.Contains(subject.AssignedBranches, branchID) {
		return nil
	}
	return forbidden("department %s is outside assigned branches", departmentID)
}
