package vigil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vigil-auth/vigil/audit"
	"github.com/vigil-auth/vigil/clock"
)

// Token is an opaque, time-bounded, revocable session credential issued
// on successful authentication. All fields are immutable after
// construction except the revocation flag, so fields may be read
// without holding any store lock.
type Token struct {
	UUID string

	// Origin is the network address the session was issued to.
	Origin   string
	Lifespan time.Duration
	IssuedAt time.Time

	// ExpiresAt is IssuedAt plus Lifespan; renewal issues a fresh
	// token under the same uuid with both pushed forward.
	ExpiresAt time.Time

	// User is the sanitized account snapshot; it never carries a
	// password hash.
	User        User
	Username    string
	Permissions []string

	LoginType audit.LoginType
	ProxyUUID string

	revoked atomic.Bool
}

// Revoke marks the token logged out. Revocation dominates time-based
// expiry: a revoked token never authenticates again, and the flag is
// never cleared.
func (t *Token) Revoke() { t.revoked.Store(true) }

// Revoked reports whether the token has been logged out or evicted.
func (t *Token) Revoked() bool { return t.revoked.Load() }

// Expired reports whether the token is unusable at the given instant,
// by revocation or by time.
func (t *Token) Expired(now time.Time) bool {
	return t.Revoked() || !t.ExpiresAt.After(now)
}

// TokenStore is a concurrency-safe registry of live session tokens.
// The in-memory implementation is the default; Redis- and
// PostgreSQL-backed implementations live in the session package.
type TokenStore interface {
	// Lookup returns the token for uuid, or (nil, nil) when it is
	// absent, expired, or revoked. Implementations purge expired
	// tokens before answering, atomically with the read.
	Lookup(ctx context.Context, uuid string) (*Token, error)

	// Put stores the token unless it is already expired; an expired
	// write is silently dropped to guard the race between token
	// construction and insertion.
	Put(ctx context.Context, token *Token) error

	// Delete revokes the token if present, then removes it. Revoking
	// before removal matters: other readers may hold a reference to
	// the same value. Deleting an absent uuid is a no-op.
	Delete(ctx context.Context, uuid string) error

	// EvictOthers revokes and removes every token belonging to
	// userUUID whose origin differs from origin. It enforces the
	// single-concurrent-session policy.
	EvictOthers(ctx context.Context, origin, userUUID string) error
}

// MemoryTokenStore keeps tokens in a mutex-guarded map. Expired tokens
// are reaped lazily inside the same critical section as each read, so a
// token can never be returned in the same instant it is being evicted.
type MemoryTokenStore struct {
	clk clock.Clock

	mu     sync.Mutex
	tokens map[string]*Token
}

// NewMemoryTokenStore creates an empty store driven by clk.
func NewMemoryTokenStore(clk clock.Clock) *MemoryTokenStore {
	return &MemoryTokenStore{
		clk:    clk,
		tokens: make(map[string]*Token),
	}
}

func (s *MemoryTokenStore) Lookup(_ context.Context, uuid string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()

	token, ok := s.tokens[uuid]
	if !ok || token.Revoked() {
		return nil, nil
	}
	return token, nil
}

func (s *MemoryTokenStore) Put(_ context.Context, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token.Expired(s.clk.Now()) {
		return nil
	}
	s.tokens[token.UUID] = token
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.tokens[uuid]; ok {
		token.Revoke()
		delete(s.tokens, uuid)
	}
	return nil
}

func (s *MemoryTokenStore) EvictOthers(_ context.Context, origin, userUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()

	for uuid, token := range s.tokens {
		if token.User.UUID == userUUID && token.Origin != origin {
			token.Revoke()
			delete(s.tokens, uuid)
		}
	}
	return nil
}

// purgeLocked revokes and removes every expired token. Callers must
// hold s.mu.
func (s *MemoryTokenStore) purgeLocked() {
	now := s.clk.Now()
	for uuid, token := range s.tokens {
		if token.Expired(now) {
			token.Revoke()
			delete(s.tokens, uuid)
		}
	}
}
