package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the token digest.
	ErrNotFound = errors.New("refresh record not found")
	// ErrAlreadyRevoked is returned by Rotate when the record was revoked first,
	// either earlier or by a concurrent rotation.
	ErrAlreadyRevoked = errors.New("refresh record already revoked")
	// ErrStoreUnavailable wraps backend I/O failures.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
)

// Record is the durable state of one issued refresh token. SessionID names the
// session the token was issued alongside.
type Record struct {
	ID             string
	TokenHash      string
	UserID         string
	OrganizationID string
	SessionID      string
	ExpiresAt      time.Time
	RevokedAt      time.Time
	ReplacedBy     string
	CreatedAt      time.Time
	CreatedByIP    string
}

// Revoked reports whether the record has been revoked.
func (r *Record) Revoked() bool {
	return !r.RevokedAt.IsZero()
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Usable reports whether the record may still be exchanged at now.
func (r *Record) Usable(now time.Time) bool {
	return !r.Revoked() && !r.Expired(now)
}

// Store is the durable refresh-token record store.
type Store interface {
	// Save persists a new record.
	Save(ctx context.Context, rec *Record) error
	// FindByHash returns the record for a token digest or ErrNotFound.
	FindByHash(ctx context.Context, tokenHash string) (*Record, error)
	// Rotate revokes the record identified by oldHash at now, chains it to next and
	// persists next. It fails with ErrAlreadyRevoked if the old record was already
	// revoked and ErrNotFound if it does not exist.
	Rotate(ctx context.Context, oldHash string, next *Record, now time.Time) error
	// RevokeAllForUser revokes every unrevoked record of userID and returns how many
	// were revoked.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error)
}
