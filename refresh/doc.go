// Package refresh persists durable refresh-token records.
//
// A refresh token string is never stored. Records are keyed by the SHA-256 digest
// of the token and carry the owning user, organization, expiry, revocation time and
// a pointer to the record that replaced it.
//
// # Rotation
//
// [Store.Rotate] revokes the presented record only if it is not already revoked,
// chains it to its successor and persists the successor in the same step. Of two
// concurrent rotations of the same record exactly one succeeds; the other receives
// [ErrAlreadyRevoked].
//
// Two implementations are provided: [SQLStore] over database/sql (Postgres via the
// pgx driver) and [RedisStore] for deployments without a relational database.
package refresh
