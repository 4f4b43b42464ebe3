package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEthical07/orgauth"
)

// OrganizationStore implements orgauth.OrganizationProvider.
type OrganizationStore struct {
	db *sql.DB
}

// NewOrganizationStore wraps db.
func NewOrganizationStore(db *sql.DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

// Create implements orgauth.OrganizationProvider.
func (s *OrganizationStore) Create(ctx context.Context, org *orgauth.Organization) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, owner_id, created_at) VALUES ($1, $2, $3, $4)`,
		org.ID, org.Name, org.OwnerID, org.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// FindByID implements orgauth.OrganizationProvider.
func (s *OrganizationStore) FindByID(ctx context.Context, organizationID string) (*orgauth.Organization, error) {
	org := &orgauth.Organization{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at FROM organizations WHERE id = $1`,
		organizationID,
	).Scan(&org.ID, &org.Name, &org.OwnerID, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orgauth.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	return org, nil
}

// Delete implements orgauth.OrganizationProvider. Deleting a missing
// organization is not an error.
func (s *OrganizationStore) Delete(ctx context.Context, organizationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, organizationID); err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return nil
}

// DepartmentResolver implements permission.DepartmentBranchResolver from the
// departments table.
type DepartmentResolver struct {
	db *sql.DB
}

// NewDepartmentResolver wraps db.
func NewDepartmentResolver(db *sql.DB) *DepartmentResolver {
	return &DepartmentResolver{db: db}
}

// BranchOfDepartment returns the branch of departmentID, or "" when the
// department does not belong to organizationID.
func (r *DepartmentResolver) BranchOfDepartment(ctx context.Context, organizationID, departmentID string) (string, error) {
	var branchID string
	err := r.db.QueryRowContext(ctx,
		`SELECT branch_id FROM departments WHERE id = $1 AND organization_id = $2`,
		departmentID, organizationID,
	).Scan(&branchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve department: %w", err)
	}
	return branchID, nil
}
