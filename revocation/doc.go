// Package revocation records revoked access-token identifiers in Redis.
//
// Each entry lives under revoked:{jti} with a TTL equal to the token's remaining
// lifetime, so the store never holds an entry past the point where the token would
// be rejected as expired anyway.
package revocation
