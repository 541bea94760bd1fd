package vigil

import (
	"context"
	"time"

	"github.com/vigil-auth/vigil/audit"
)

// User is the account representation consumed by the core. Persistent
// storage of users, roles, and permissions lives behind [UserStore].
type User struct {
	UUID  string
	Login string

	// PasswordHash is present only on records returned by a UserStore;
	// it is stripped before a user is embedded in a [Token].
	PasswordHash string

	Name        string
	DisplayName string

	// SerialNumber is the certificate serial for PKI logins.
	SerialNumber      string
	DistinguishedName string

	Created time.Time
	Active  bool
	Locked  bool

	Roles []string
}

// WithoutPasswordHash returns a copy of the user with the hash removed.
func (u User) WithoutPasswordHash() User {
	u.PasswordHash = ""
	return u
}

// UserStore is the persistent account collaborator. Implementations
// verify password hashes internally; the core never sees a hash
// comparison. Lookup methods return (nil, nil) when no match exists.
type UserStore interface {
	// UserBySerial resolves a user by certificate serial number.
	UserBySerial(ctx context.Context, serial string) (*User, error)

	// UserByLoginAndPassword resolves a user only when the password
	// verifies against the stored hash.
	UserByLoginAndPassword(ctx context.Context, login, password string) (*User, error)

	// UserByUUID resolves a user by uuid.
	UserByUUID(ctx context.Context, uuid string) (*User, error)

	// UUIDForKey resolves a login or certificate serial to a user
	// uuid, or "" when no such user exists.
	UUIDForKey(ctx context.Context, key string) (string, error)

	// PermissionsFor returns the deduplicated, non-blank permissions
	// granted by the named roles.
	PermissionsFor(ctx context.Context, roleNames []string) ([]string, error)

	// SetLocked locks or unlocks the account identified by a login or
	// certificate serial.
	SetLocked(ctx context.Context, key string, locked bool) error

	// IsLocked reports the lock flag for a user uuid.
	IsLocked(ctx context.Context, uuid string) (bool, error)
}

// Credentials is the immutable authentication input. Exactly one
// modality is used, selected by priority: certificate serial, then
// bearer token, then username/password. Use the constructors to make
// the chosen modality explicit.
type Credentials struct {
	// Origin is the caller's network address. It keys the origin
	// cooldown and is recorded on every audit event.
	Origin string

	CertificateSerial string
	TokenUUID         string
	Username          string
	Password          string

	// ProxyUUID identifies a trusted system authenticating on behalf
	// of the user.
	ProxyUUID string
}

// PasswordCredentials builds username/password credentials.
func PasswordCredentials(origin, username, password string) Credentials {
	return Credentials{Origin: origin, Username: username, Password: password}
}

// CertificateCredentials builds certificate-serial credentials.
func CertificateCredentials(origin, serial string) Credentials {
	return Credentials{Origin: origin, CertificateSerial: serial}
}

// TokenCredentials builds bearer-token credentials from a previously
// issued token uuid.
func TokenCredentials(origin, tokenUUID string) Credentials {
	return Credentials{Origin: origin, TokenUUID: tokenUUID}
}

// Modality resolves the login mechanism by priority.
func (c Credentials) Modality() audit.LoginType {
	switch {
	case c.CertificateSerial != "":
		return audit.LoginPKI
	case c.TokenUUID != "":
		return audit.LoginToken
	default:
		return audit.LoginUsernamePassword
	}
}

// identityKey is the best-effort key correlating this attempt to an
// account for cooldown and audit bookkeeping: serial, else username.
// It must never fail, even for a nonexistent user.
func (c Credentials) identityKey() string {
	if c.CertificateSerial != "" {
		return c.CertificateSerial
	}
	return c.Username
}

func (c Credentials) empty() bool {
	if c.CertificateSerial != "" || c.TokenUUID != "" {
		return false
	}
	return c.Username == "" || c.Password == ""
}
