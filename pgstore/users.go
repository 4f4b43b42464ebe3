package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/orgauth"
	"github.com/MrEthical07/orgauth/permission"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// UserStore implements orgauth.UserProvider.
type UserStore struct {
	db *sql.DB
}

// NewUserStore wraps db.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const selectUserSQL = `
	SELECT id, email, name, role, organization_id, assigned_branches, assigned_departments,
	       password_hash, password_history, status, failed_login_attempts,
	       locked_until, last_login_at, created_at
	FROM users
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*orgauth.User, error) {
	var (
		u                              orgauth.User
		role, status                   string
		branches, departments, history string
		lockedUntil, lastLogin         sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &role, &u.OrganizationID, &branches, &departments,
		&u.PasswordHash, &history, &status, &u.FailedLoginAttempts,
		&lockedUntil, &lastLogin, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orgauth.ErrUserNotFound
		}
		return nil, err
	}

	u.Role = permission.Role(role)
	u.Status = orgauth.AccountStatus(status)
	if lockedUntil.Valid {
		u.LockedUntil = lockedUntil.Time
	}
	if lastLogin.Valid {
		u.LastLoginAt = lastLogin.Time
	}
	for _, f := range []struct {
		raw string
		dst *[]string
	}{
		{branches, &u.AssignedBranches},
		{departments, &u.AssignedDepartments},
		{history, &u.PasswordHistory},
	} {
		if err := decodeList(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("corrupt user %s: %w", u.ID, err)
		}
	}
	return &u, nil
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// FindByEmail implements orgauth.UserProvider.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*orgauth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUserSQL+` WHERE email = $1`, email))
}

// FindByID implements orgauth.UserProvider.
func (s *UserStore) FindByID(ctx context.Context, userID string) (*orgauth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUserSQL+` WHERE id = $1`, userID))
}

// Create implements orgauth.UserProvider.
func (s *UserStore) Create(ctx context.Context, u *orgauth.User) error {
	query := `
		INSERT INTO users (id, email, name, role, organization_id, assigned_branches,
			assigned_departments, password_hash, password_history, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Email, u.Name, string(u.Role), u.OrganizationID,
		encodeList(u.AssignedBranches), encodeList(u.AssignedDepartments),
		u.PasswordHash, encodeList(u.PasswordHistory), string(u.Status), u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return orgauth.ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// IncrementFailedAttempts implements orgauth.UserProvider.
func (s *UserStore) IncrementFailedAttempts(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE users SET failed_login_attempts = failed_login_attempts + 1
		WHERE id = $1
		RETURNING failed_login_attempts
	`
	var n int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, orgauth.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	return n, nil
}

func (s *UserStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return orgauth.ErrUserNotFound
	}
	return nil
}

// LockAccount implements orgauth.UserProvider.
func (s *UserStore) LockAccount(ctx context.Context, userID string, until time.Time) error {
	return s.exec(ctx, "lock account",
		`UPDATE users SET locked_until = $1 WHERE id = $2`, until, userID)
}

// ResetFailedAttempts implements orgauth.UserProvider.
func (s *UserStore) ResetFailedAttempts(ctx context.Context, userID string) error {
	return s.exec(ctx, "reset attempts",
		`UPDATE users SET failed_login_attempts = 0, locked_until = NULL WHERE id = $1`, userID)
}

// UpdateLastLogin implements orgauth.UserProvider.
func (s *UserStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.exec(ctx, "update last login",
		`UPDATE users SET last_login_at = $1 WHERE id = $2`, nullTime(at), userID)
}

// UpdatePassword implements orgauth.UserProvider.
func (s *UserStore) UpdatePassword(ctx context.Context, userID, hash string, history []string) error {
	return s.exec(ctx, "update password",
		`UPDATE users SET password_hash = $1, password_history = $2 WHERE id = $3`,
		hash, encodeList(history), userID)
}
