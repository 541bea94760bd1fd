// Package password implements password hashing and verification with
// Argon2id defaults.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// This package owns hashing and verification only. Password complexity
// policy is a caller concern, and plaintext is never stored or logged.
package password
