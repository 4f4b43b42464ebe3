// Package stores provides short-lived Redis record stores for security-sensitive
// flows.
//
// # Password reset
//
// Reset tokens are stored only as their SHA-256 digest, keyed by that digest, with
// the owning user id as value and a one-hour TTL. Consumption is an atomic
// read-and-delete, so a token works at most once. Issuing a new token for a user
// invalidates the previous one.
//
// # What this package must NOT do
//
//   - Generate or hash tokens; callers pass digests.
//   - Import orgauth or any sibling internal package.
//   - Store raw tokens.
package stores
