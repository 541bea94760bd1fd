package vigil

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/vigil-auth/vigil/audit"
	"github.com/vigil-auth/vigil/clock"
	"github.com/vigil-auth/vigil/internal/cooldown"
)

// LoginManager is the authentication state machine. It resolves the
// credential modality, gates the attempt through two independent
// cooldowns, delegates identity resolution to the user store, issues
// and validates session tokens, and emits exactly one audit record per
// decision (two on lockout).
//
// All methods are safe for concurrent use. The only intentional
// blocking point is the origin cooldown's backoff delay, bounded at 15
// seconds and cancellable through the context.
type LoginManager struct {
	cfg     Config
	users   UserStore
	audits  audit.Store
	tokens  TokenStore
	clk     clock.Clock
	metrics *Metrics

	identityCooldown *cooldown.Cooldown
	originCooldown   *cooldown.Cooldown
}

// Option configures a LoginManager.
type Option func(*LoginManager)

// WithAuditStore sets the audit collaborator. Defaults to
// audit.NoOpStore. Wrap slow stores in an audit.Dispatcher.
func WithAuditStore(store audit.Store) Option {
	return func(m *LoginManager) { m.audits = store }
}

// WithTokenStore sets the session registry. Defaults to an in-memory
// store; the session package provides Redis- and PostgreSQL-backed
// implementations.
func WithTokenStore(store TokenStore) Option {
	return func(m *LoginManager) { m.tokens = store }
}

// WithClock injects the time source, for deterministic tests.
func WithClock(clk clock.Clock) Option {
	return func(m *LoginManager) { m.clk = clk }
}

// WithMetrics attaches outcome counters.
func WithMetrics(metrics *Metrics) Option {
	return func(m *LoginManager) { m.metrics = metrics }
}

// NewLoginManager builds a manager around the user store. Zero-valued
// Config fields take the documented defaults.
func NewLoginManager(cfg Config, users UserStore, opts ...Option) *LoginManager {
	m := &LoginManager{
		cfg:    cfg.withDefaults(),
		users:  users,
		audits: audit.NoOpStore{},
		clk:    clock.System{},
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.tokens == nil {
		m.tokens = NewMemoryTokenStore(m.clk)
	}

	m.identityCooldown = cooldown.New(cooldown.Config{
		MaxUnhindered: m.cfg.IdentityMaxUnhindered,
		MaxFailed:     m.cfg.IdentityMaxFailed,
		Window:        m.cfg.AttemptWindow,
		SleepEnabled:  !m.cfg.DisableThrottle,
	}, m.clk)
	m.originCooldown = cooldown.New(cooldown.Config{
		MaxUnhindered: m.cfg.OriginMaxUnhindered,
		MaxFailed:     m.cfg.OriginMaxFailed,
		Window:        m.cfg.AttemptWindow,
		SleepEnabled:  !m.cfg.DisableThrottle,
	}, m.clk)

	return m
}

// Authenticate resolves the credentials to a new session token.
// Failures surface as ErrNoCredentials, ErrMaxAttemptsExceeded,
// ErrInvalidCredentials, or, for token logins referencing a dead token,
// ErrInvalidOrExpiredToken; every outcome past the no-credentials check
// is audited before it is returned.
func (m *LoginManager) Authenticate(ctx context.Context, creds Credentials) (*Token, error) {
	if creds.empty() {
		return nil, ErrNoCredentials
	}

	// The backoff delay is paid up front, before identity is known,
	// so repeated failures from one origin get slower regardless of
	// which account they target.
	if err := m.originCooldown.Throttle(ctx, creds.Origin); err != nil {
		return nil, err
	}

	loginType := creds.Modality()
	identityKey := creds.identityKey()
	userUUID := m.bestEffortUUID(ctx, identityKey)

	if m.identityCooldown.Exceeded(identityKey) || m.originCooldown.Exceeded(creds.Origin) {
		m.loginFailed(ctx, loginType, creds, userUUID, identityKey)
		m.metrics.incLoginThrottled()
		return nil, ErrMaxAttemptsExceeded
	}

	user, err := m.resolveUser(ctx, loginType, creds)
	if errors.Is(err, ErrInvalidOrExpiredToken) {
		m.loginFailed(ctx, loginType, creds, userUUID, identityKey)
		m.metrics.incLoginFailure()
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		m.loginFailed(ctx, loginType, creds, userUUID, identityKey)
		m.metrics.incLoginFailure()
		return nil, ErrInvalidCredentials
	}

	return m.loginSucceeded(ctx, loginType, creds, identityKey, *user)
}

// Renew pushes a token's expiry forward by its lifespan (sliding
// expiration) and returns the refreshed token. The origin is recorded
// on the audit event; the token keeps the origin it was issued to.
func (m *LoginManager) Renew(ctx context.Context, tokenUUID, origin string) (*Token, error) {
	token, err := m.tokens.Lookup(ctx, tokenUUID)
	if err != nil {
		log.Printf("vigil: token lookup failed during renew: %v", err)
	}
	if token == nil {
		m.record(ctx, m.accessInfo(ctx, audit.LoginToken, "", origin, "", "", false, audit.AccessLogin))
		m.metrics.incRenewFailures()
		return nil, ErrInvalidOrExpiredToken
	}

	now := m.clk.Now()
	renewed := &Token{
		UUID:        token.UUID,
		Origin:      token.Origin,
		Lifespan:    token.Lifespan,
		IssuedAt:    now,
		ExpiresAt:   now.Add(token.Lifespan),
		User:        token.User,
		Username:    token.Username,
		Permissions: token.Permissions,
		LoginType:   token.LoginType,
		ProxyUUID:   token.ProxyUUID,
	}
	if err := m.tokens.Put(ctx, renewed); err != nil {
		return nil, fmt.Errorf("store renewed token: %w", err)
	}

	m.record(ctx, m.accessInfo(ctx, audit.LoginToken, renewed.ProxyUUID, origin,
		renewed.User.UUID, renewed.Username, true, audit.AccessLogin))
	m.metrics.incRenewals()

	return renewed, nil
}

// Logout revokes the token and removes it from the store. It is
// idempotent: an unknown uuid is deleted without an audit event.
func (m *LoginManager) Logout(ctx context.Context, tokenUUID string) error {
	token, err := m.tokens.Lookup(ctx, tokenUUID)
	if err != nil {
		log.Printf("vigil: token lookup failed during logout: %v", err)
	}
	if token != nil {
		token.Revoke()
		m.record(ctx, m.accessInfo(ctx, token.LoginType, token.ProxyUUID, token.Origin,
			token.User.UUID, token.Username, true, audit.AccessLogout))
		m.metrics.incLogouts()
	}

	return m.tokens.Delete(ctx, tokenUUID)
}

// Metrics returns the attached counters, or nil when none were set.
func (m *LoginManager) Metrics() *Metrics { return m.metrics }

func (m *LoginManager) loginFailed(ctx context.Context, loginType audit.LoginType, creds Credentials, userUUID, identityKey string) {
	m.identityCooldown.Fail(identityKey)
	m.originCooldown.Fail(creds.Origin)

	m.record(ctx, m.accessInfo(ctx, loginType, creds.ProxyUUID, creds.Origin,
		userUUID, identityKey, false, audit.AccessLogin))

	if m.identityCooldown.Exceeded(identityKey) {
		if err := m.users.SetLocked(ctx, identityKey, true); err != nil {
			log.Printf("vigil: failed to lock account %q: %v", identityKey, err)
		}
		m.record(ctx, m.accessInfo(ctx, loginType, creds.ProxyUUID, creds.Origin,
			userUUID, identityKey, true, audit.AccessLocked))
		m.metrics.incLockouts()
	}
}

func (m *LoginManager) loginSucceeded(ctx context.Context, loginType audit.LoginType, creds Credentials, identityKey string, user User) (*Token, error) {
	m.identityCooldown.Succeed(identityKey)
	m.originCooldown.Succeed(creds.Origin)

	m.record(ctx, m.accessInfo(ctx, loginType, creds.ProxyUUID, creds.Origin,
		user.UUID, user.Login, true, audit.AccessLogin))
	m.metrics.incLoginSuccess()

	sanitized := user.WithoutPasswordHash()
	permissions, err := m.users.PermissionsFor(ctx, sanitized.Roles)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}

	now := m.clk.Now()
	token := &Token{
		UUID:        uuid.NewString(),
		Origin:      creds.Origin,
		Lifespan:    m.cfg.TokenLifespan,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.cfg.TokenLifespan),
		User:        sanitized,
		Username:    sanitized.Login,
		Permissions: permissions,
		LoginType:   loginType,
		ProxyUUID:   creds.ProxyUUID,
	}
	if err := m.tokens.Put(ctx, token); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	if m.cfg.SingleSessionPerUser {
		if err := m.tokens.EvictOthers(ctx, creds.Origin, sanitized.UUID); err != nil {
			return nil, fmt.Errorf("evict other sessions: %w", err)
		}
	}

	return token, nil
}

// resolveUser delegates identity resolution to the user store per
// modality. A nil user with a nil error is a credential failure; a
// token login referencing an absent, expired, or revoked token is
// ErrInvalidOrExpiredToken; any other error is an infrastructure
// failure and is not audited as a decision.
func (m *LoginManager) resolveUser(ctx context.Context, loginType audit.LoginType, creds Credentials) (*User, error) {
	switch loginType {
	case audit.LoginPKI:
		return m.users.UserBySerial(ctx, creds.CertificateSerial)

	case audit.LoginToken:
		token, err := m.tokens.Lookup(ctx, creds.TokenUUID)
		if err != nil {
			return nil, fmt.Errorf("token lookup: %w", err)
		}
		if token == nil {
			return nil, ErrInvalidOrExpiredToken
		}
		return m.users.UserByUUID(ctx, token.User.UUID)

	default:
		return m.users.UserByLoginAndPassword(ctx, creds.Username, creds.Password)
	}
}

// bestEffortUUID resolves the uuid behind an identity key for audit
// bookkeeping. It never fails: any store error or missing user
// normalizes to "".
func (m *LoginManager) bestEffortUUID(ctx context.Context, identityKey string) string {
	if identityKey == "" {
		return ""
	}
	id, err := m.users.UUIDForKey(ctx, identityKey)
	if err != nil {
		return ""
	}
	return id
}

// accessInfo derives one audit record for a decision, pulling the
// classification context from the audit store and substituting an
// unclassified placeholder when none is registered.
func (m *LoginManager) accessInfo(ctx context.Context, loginType audit.LoginType, proxyUUID, origin, userUUID, username string, granted bool, accessType audit.AccessType) audit.AccessInfo {
	system, err := m.audits.CurrentSystemInfo(ctx)
	if err != nil || system == nil {
		placeholder := audit.PlaceholderSystemInfo()
		system = &placeholder
	}

	// The initiating identity stays empty on denied attempts so the
	// record never asserts an unverified identity.
	initiating := ""
	if granted {
		initiating = userUUID
	}

	return audit.AccessInfo{
		UUID:           audit.NewUUID(),
		UserUUID:       initiating,
		LoginType:      loginType,
		ProxyUUID:      proxyUUID,
		Origin:         origin,
		Timestamp:      m.clk.Now(),
		ResourceUUID:   userUUID,
		ResourceName:   username,
		ResourceType:   audit.ResourceTypeUserAccount,
		Classification: system.MaximumClassification,
		AccessType:     accessType,
		Granted:        granted,
		SystemInfoUUID: system.UUID,
	}
}

// record persists the audit event. Failures are logged, never
// propagated: an audit-write failure must not alter an authentication
// verdict, and no verdict is returned before its audit attempt.
func (m *LoginManager) record(ctx context.Context, info audit.AccessInfo) {
	if err := m.audits.Record(ctx, info); err != nil {
		log.Printf("vigil: audit record failed: %v", err)
	}
}
