// Package jwt is the token service: it signs and verifies access tokens and refresh
// tokens with separate HMAC secrets.
//
// Signing and verification are pure. Nothing here touches the session store, the
// revocation store or the refresh-token table; the engine composes those.
package jwt
