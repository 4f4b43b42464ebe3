// Package password is the credential verifier: one-way password hashing, strength
// policy, reuse history and opaque reset tokens.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt hashes ($2a$, $2b$, $2y$) imported from older credential stores still verify,
// and [Hasher.NeedsUpgrade] reports them so the caller can re-hash after a successful
// login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other orgauth package.
//   - Log plaintext passwords, raw reset tokens or hash parameters.
package password
