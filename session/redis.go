package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vigil-auth/vigil"
	"github.com/vigil-auth/vigil/audit"
	"github.com/vigil-auth/vigil/clock"
)

// ErrRedisUnavailable wraps transport-level Redis failures so callers can
// branch on storage health without matching on driver error strings.
var ErrRedisUnavailable = errors.New("redis unavailable")

// minTTL keeps SET PX from rejecting sub-millisecond remainders for tokens
// that are still logically live.
const minTTL = time.Millisecond

// tokenRecord is the wire form of a token. The revoked flag on a live
// *vigil.Token is process-local; a revoked token is never written, so the
// record only carries the immutable fields.
type tokenRecord struct {
	UUID        string          `json:"uuid"`
	Origin      string          `json:"origin"`
	LifespanMS  int64           `json:"lifespan_ms"`
	IssuedMS    int64           `json:"issued_ms"`
	ExpiresMS   int64           `json:"expires_ms"`
	User        vigil.User      `json:"user"`
	Username    string          `json:"username"`
	Permissions []string        `json:"permissions,omitempty"`
	LoginType   audit.LoginType `json:"login_type"`
	ProxyUUID   string          `json:"proxy_uuid,omitempty"`
}

func recordFromToken(t *vigil.Token) tokenRecord {
	return tokenRecord{
		UUID:        t.UUID,
		Origin:      t.Origin,
		LifespanMS:  t.Lifespan.Milliseconds(),
		IssuedMS:    t.IssuedAt.UnixMilli(),
		ExpiresMS:   t.ExpiresAt.UnixMilli(),
		User:        t.User,
		Username:    t.Username,
		Permissions: t.Permissions,
		LoginType:   t.LoginType,
		ProxyUUID:   t.ProxyUUID,
	}
}

func (r tokenRecord) token() *vigil.Token {
	return &vigil.Token{
		UUID:        r.UUID,
		Origin:      r.Origin,
		Lifespan:    time.Duration(r.LifespanMS) * time.Millisecond,
		IssuedAt:    time.UnixMilli(r.IssuedMS),
		ExpiresAt:   time.UnixMilli(r.ExpiresMS),
		User:        r.User,
		Username:    r.Username,
		Permissions: r.Permissions,
		LoginType:   r.LoginType,
		ProxyUUID:   r.ProxyUUID,
	}
}

func (r tokenRecord) userUUID() string {
	return r.User.UUID
}

// RedisStore is a TokenStore backed by Redis. Each token lives under its own
// key with a TTL matching the token expiry, and a per-user set indexes the
// token UUIDs belonging to that user so EvictOthers can find them.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	clk    clock.Clock
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisClock overrides the store clock. Tests use a fake clock to steer
// logical expiry without waiting on Redis key TTLs.
func WithRedisClock(clk clock.Clock) RedisOption {
	return func(s *RedisStore) { s.clk = clk }
}

// NewRedisStore builds a RedisStore writing under the given key prefix.
// An empty prefix defaults to "vigil".
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = "vigil"
	}
	s := &RedisStore{redis: client, prefix: prefix, clk: clock.System{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(tokenUUID string) string {
	return s.prefix + ":t:" + tokenUUID
}

func (s *RedisStore) userKey(userUUID string) string {
	return s.prefix + ":u:" + userUUID
}

// Lookup retrieves a live token by UUID. Absent and expired tokens both
// yield (nil, nil); an expired record found before Redis reaped its TTL is
// removed on the spot.
func (s *RedisStore) Lookup(ctx context.Context, tokenUUID string) (*vigil.Token, error) {
	data, err := s.redis.Get(ctx, s.key(tokenUUID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// Corrupt blob: treat as absent after clearing it.
		_ = s.remove(ctx, tokenUUID, "")
		return nil, nil
	}

	if !time.UnixMilli(rec.ExpiresMS).After(s.clk.Now()) {
		if err := s.remove(ctx, tokenUUID, rec.userUUID()); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return rec.token(), nil
}

// Put stores a token, overwriting any previous value under the same UUID.
// Revoked or already-expired tokens are dropped without touching Redis.
func (s *RedisStore) Put(ctx context.Context, token *vigil.Token) error {
	now := s.clk.Now()
	if token == nil || token.Expired(now) {
		return nil
	}

	rec := recordFromToken(token)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode token %s: %w", token.UUID, err)
	}

	ttl := token.ExpiresAt.Sub(now)
	if ttl < minTTL {
		ttl = minTTL
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(token.UUID), data, ttl)
		if uid := rec.userUUID(); uid != "" {
			pipe.SAdd(ctx, s.userKey(uid), token.UUID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes a token. Missing tokens are a no-op.
func (s *RedisStore) Delete(ctx context.Context, tokenUUID string) error {
	data, err := s.redis.Get(ctx, s.key(tokenUUID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var rec tokenRecord
	userUUID := ""
	if json.Unmarshal(data, &rec) == nil {
		userUUID = rec.userUUID()
	}
	return s.remove(ctx, tokenUUID, userUUID)
}

// EvictOthers removes every live token belonging to userUUID except those
// issued from the given origin. Expired strays found along the way are
// cleaned up too.
func (s *RedisStore) EvictOthers(ctx context.Context, origin, userUUID string) error {
	if userUUID == "" {
		return nil
	}
	ids, err := s.redis.SMembers(ctx, s.userKey(userUUID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.clk.Now()
	for _, id := range ids {
		data, err := s.redis.Get(ctx, s.key(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			// TTL already reaped the key; drop the stale index entry.
			if err := s.redis.SRem(ctx, s.userKey(userUUID), id).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		var rec tokenRecord
		if json.Unmarshal(data, &rec) != nil || !time.UnixMilli(rec.ExpiresMS).After(now) || rec.Origin != origin {
			if err := s.remove(ctx, id, userUUID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *RedisStore) remove(ctx context.Context, tokenUUID, userUUID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(tokenUUID))
		if userUUID != "" {
			pipe.SRem(ctx, s.userKey(userUUID), tokenUUID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

var _ vigil.TokenStore = (*RedisStore)(nil)
