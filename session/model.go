package session

import "time"

// Session is the ephemeral record of one login. It lives only in the store.
type Session struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"userId"`
	OrganizationID      string    `json:"organizationId"`
	Role                string    `json:"role"`
	AssignedBranches    []string  `json:"assignedBranches,omitempty"`
	AssignedDepartments []string  `json:"assignedDepartments,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	LastActivityAt      time.Time `json:"lastActivityAt"`
	IP                  string    `json:"ip"`
	UserAgent           string    `json:"userAgent"`
}

// ExpiresAt returns the absolute expiry for lifetime, or the zero time when
// lifetime is disabled.
func (s *Session) ExpiresAt(lifetime time.Duration) time.Time {
	if lifetime <= 0 {
		return time.Time{}
	}
	return s.CreatedAt.Add(lifetime)
}
