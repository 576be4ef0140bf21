// Package password verifies login passwords against stored hashes.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Verifier] also accepts bcrypt hashes ($2a$, $2b$, $2y$) so accounts created by
// earlier services keep working; [Verifier.NeedsUpgrade] reports them so the caller
// can re-hash after a successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length, reuse
// history, reset) belongs to the account service, not to invauth.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other invauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
