package permission

import "strings"

// Role is a position in the organization hierarchy.
type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleLeader  Role = "LEADER"
	RoleManager Role = "MANAGER"
)

// Rank orders roles; higher outranks lower. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleLeader:
		return 2
	case RoleManager:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// ParseRole normalizes s to a Role. It returns false for unknown roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}
