// Package session provides the Redis-backed session store: one key per
// (userID, sessionID) holding the session record with a sliding TTL, and a per-user
// sorted-set index scored by last activity.
//
// # Concurrency cap
//
// [Store.Create] writes the new session first and then calls [Store.EnforceLimit],
// which evicts the least-recently-active sessions beyond the per-user cap. The two
// steps are not atomic; a transient overshoot by one is corrected by the next
// create.
//
// # What this package must NOT do
//
//   - Interpret JWTs or evaluate scopes.
//   - Persist derived state such as "expired"; expiry is the key TTL plus an
//     optional absolute lifetime computed at read time.
package session
