// Package orgauth manages the authenticated-session lifecycle for a multi-tenant,
// role-scoped backend.
//
// # Components
//
//   - [Engine]: registration, login, logout, refresh, password change and reset,
//     and the two guard entry points [Engine.Authenticate] and
//     [Engine.AuthorizeScope].
//   - [Builder]: explicit dependency injection for stores, collaborators,
//     logging, metrics and audit sinks.
//   - Sub-packages: password (credential verifier), jwt (token service), session
//     (Redis session store), revocation (access-token denylist), refresh (durable
//     refresh-token records), permission (role and scope rules), middleware
//     (net/http guard chain).
//
// # Shared state
//
// Sessions, revocations, reset tokens and refresh records live in Redis or the
// database, never in process memory, so any number of Engine instances can serve
// the same users.
package orgauth
