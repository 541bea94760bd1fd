package vigil

import "errors"

// Stable, user-presentable error kinds. Transport layers branch on these
// with errors.Is instead of parsing message text. Messages deliberately
// never reveal whether a username or a password was wrong, or whether an
// account exists.
var (
	// ErrNoCredentials is returned when nothing usable was supplied:
	// no certificate serial, no token uuid, and no complete
	// username/password pair.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials is returned when credential lookup or
	// verification failed, including logins against locked accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMaxAttemptsExceeded is returned when the identity or origin
	// cooldown has tripped; credential verification is skipped entirely.
	ErrMaxAttemptsExceeded = errors.New("maximum login attempts exceeded")

	// ErrInvalidOrExpiredToken is returned when a renewal or token
	// login references a token that is absent, expired, or revoked.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired login token")
)
