// Package middleware is the net/http guard chain in front of protected handlers.
//
// # Guards
//
//   - [Authenticate] verifies the bearer access token through the engine
//     (signature, expiry, revocation, session and client fingerprint) and
//     attaches the identity to the request context.
//   - [AuthorizeScope] checks one declared scope requirement.
//   - [Authorize] looks the matched gorilla/mux route up in a
//     [permission.Table] and applies its role set and scope requirement.
//
// Guards run in the order token first, then scope; [Chain] composes them.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into engine calls. It never parses
// tokens or touches Redis itself. Authentication failures are answered with a
// generic 401 body; the internal reason is logged at debug level only.
package middleware
