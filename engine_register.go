package orgauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/orgauth/internal/audit"
	"github.com/MrEthical07/orgauth/permission"
	"github.com/google/uuid"
)

const maxNameLength = 200

// Register creates an organization together with its active OWNER and signs the
// owner in. There is no verification step for the initial owner.
func (e *Engine) Register(ctx context.Context, in RegisterInput, client Client) (*RegisterResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.orgs == nil {
		return nil, ErrEngineNotReady
	}
	ctx = WithClient(ctx, client)

	email := normalizeEmail(in.Email)
	orgName := strings.TrimSpace(in.OrganizationName)
	name := strings.TrimSpace(in.Name)
	switch {
	case !validEmail(email):
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	case orgName == "" || len(orgName) > maxNameLength:
		return nil, fmt.Errorf("%w: invalid organization name", ErrInvalidInput)
	case name == "" || len(name) > maxNameLength:
		return nil, fmt.Errorf("%w: invalid name", ErrInvalidInput)
	}
	if err := checkStrength(in.Password); err != nil {
		return nil, err
	}

	if _, err := e.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !isNotFound(err) {
		return nil, backendError(err)
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := e.now()
	org := &Organization{
		ID:        uuid.NewString(),
		Name:      orgName,
		CreatedAt: now,
	}
	user := &User{
		ID:             uuid.NewString(),
		Email:          email,
		Name:           name,
		Role:           permission.RoleOwner,
		OrganizationID: org.ID,
		PasswordHash:   hash,
		Status:         AccountActive,
		CreatedAt:      now,
	}
	org.OwnerID = user.ID

	if err := e.orgs.Create(ctx, org); err != nil {
		return nil, backendError(err)
	}
	if err := e.users.Create(ctx, user); err != nil {
		if delErr := e.orgs.Delete(ctx, org.ID); delErr != nil {
			e.warn("register_rollback", user.ID, delErr)
		}
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, backendError(err)
	}

	tokens, err := e.issueSession(ctx, user, client)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, audit.EventRegister, true, user.ID, org.ID, tokens.SessionID, nil, nil)

	return &RegisterResult{User: user, Organization: org, Tokens: tokens}, nil
}
