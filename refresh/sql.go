package refresh

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Schema creates the refresh_tokens table used by SQLStore.
const Schema = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
	id              TEXT PRIMARY KEY,
	token_hash      TEXT NOT NULL UNIQUE,
	user_id         TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	session_id      TEXT NOT NULL DEFAULT '',
	expires_at      TIMESTAMPTZ NOT NULL,
	revoked_at      TIMESTAMPTZ,
	replaced_by     TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	created_by_ip   TEXT NOT NULL DEFAULT ''
);
ALTER TABLE refresh_tokens ADD COLUMN IF NOT EXISTS session_id TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS refresh_tokens_user_id_idx ON refresh_tokens (user_id);
`

// SQLStore implements Store on a Postgres database opened with the pgx driver.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate applies Schema.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate refresh_tokens: %w", err)
	}
	return nil
}

const insertRecordSQL = `INSERT INTO refresh_tokens
	(id, token_hash, user_id, organization_id, session_id, expires_at, created_at, created_by_ip)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, rec *Record) error {
	_, err := db.ExecContext(ctx, insertRecordSQL,
		rec.ID, rec.TokenHash, rec.UserID, rec.OrganizationID, rec.SessionID,
		rec.ExpiresAt, rec.CreatedAt, rec.CreatedByIP,
	)
	return err
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, rec *Record) error {
	if err := insertRecord(ctx, s.db, rec); err != nil {
		return fmt.Errorf("%w: insert: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// FindByHash implements Store.
func (s *SQLStore) FindByHash(ctx context.Context, tokenHash string) (*Record, error) {
	query := `
		SELECT id, token_hash, user_id, organization_id, session_id, expires_at,
		       revoked_at, replaced_by, created_at, created_by_ip
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	rec := &Record{}
	var revokedAt sql.NullTime
	var replacedBy sql.NullString
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&rec.ID, &rec.TokenHash, &rec.UserID, &rec.OrganizationID, &rec.SessionID,
		&rec.ExpiresAt, &revokedAt, &replacedBy, &rec.CreatedAt, &rec.CreatedByIP,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select: %v", ErrStoreUnavailable, err)
	}
	if revokedAt.Valid {
		rec.RevokedAt = revokedAt.Time
	}
	if replacedBy.Valid {
		rec.ReplacedBy = replacedBy.String
	}
	return rec, nil
}

// Rotate implements Store. The revoke is conditioned on revoked_at IS NULL so a
// concurrent rotation of the same token affects zero rows and loses.
func (s *SQLStore) Rotate(ctx context.Context, oldHash string, next *Record, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1, replaced_by = $2
		WHERE token_hash = $3 AND revoked_at IS NULL`,
		now, next.ID, oldHash,
	)
	if err != nil {
		return fmt.Errorf("%w: revoke: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrStoreUnavailable, err)
	}
	if n == 0 {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`, oldHash,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("%w: select: %v", ErrStoreUnavailable, err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAlreadyRevoked
	}

	if err := insertRecord(ctx, tx, next); err != nil {
		return fmt.Errorf("%w: insert: %v", ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAllForUser implements Store.
func (s *SQLStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`,
		now, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: revoke all: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// DeleteExpired removes records whose expiry is before cutoff and returns how many
// were removed.
func (s *SQLStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}
