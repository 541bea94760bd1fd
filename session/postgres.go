package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// Registers the "pgx" driver with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vigil-auth/vigil"
	"github.com/vigil-auth/vigil/clock"
)

const createTokensTable = `
CREATE TABLE IF NOT EXISTS login_tokens (
	uuid        TEXT PRIMARY KEY,
	origin      TEXT NOT NULL DEFAULT '',
	lifespan_ms BIGINT NOT NULL,
	issued_ms   BIGINT NOT NULL,
	expires_ms  BIGINT NOT NULL,
	user_uuid   TEXT NOT NULL DEFAULT '',
	username    TEXT NOT NULL DEFAULT '',
	login_type  TEXT NOT NULL DEFAULT '',
	proxy_uuid  TEXT NOT NULL DEFAULT '',
	permissions TEXT NOT NULL DEFAULT ''
)`

const createTokensUserIndex = `
CREATE INDEX IF NOT EXISTS login_tokens_user_uuid_idx ON login_tokens (user_uuid)`

// PostgresStore is a TokenStore backed by PostgreSQL. Rows only carry the
// token fields plus the owning user's UUID; the full user record is
// rehydrated through the UserStore on each lookup so a token never serves
// stale account data.
type PostgresStore struct {
	db    *sql.DB
	users vigil.UserStore
	clk   clock.Clock
}

// PostgresOption customizes a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresClock overrides the store clock.
func WithPostgresClock(clk clock.Clock) PostgresOption {
	return func(s *PostgresStore) { s.clk = clk }
}

// NewPostgresStore builds a PostgresStore on an open database handle.
// users may be nil, in which case looked-up tokens carry no user record.
func NewPostgresStore(db *sql.DB, users vigil.UserStore, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, users: users, clk: clock.System{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenPostgresStore opens a pgx-backed connection to databaseURL, verifies
// it, and returns a ready store.
func OpenPostgresStore(ctx context.Context, databaseURL string, users vigil.UserStore, opts ...PostgresOption) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db, users, opts...), nil
}

// Init creates the login_tokens table and its indexes if they do not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTokensTable); err != nil {
		return fmt.Errorf("create login_tokens table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createTokensUserIndex); err != nil {
		return fmt.Errorf("create login_tokens index: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Lookup purges expired rows and then reads the token, in that order, so a
// token past its expiry can never be served. Absent rows yield (nil, nil).
func (s *PostgresStore) Lookup(ctx context.Context, tokenUUID string) (*vigil.Token, error) {
	now := s.clk.Now()
	if err := s.purge(ctx, now); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, origin, lifespan_ms, issued_ms, expires_ms,
		       user_uuid, username, login_type, proxy_uuid, permissions
		FROM login_tokens WHERE uuid = $1`, tokenUUID)

	var (
		rec       tokenRecord
		userUUID  string
		permsBlob string
	)
	err := row.Scan(&rec.UUID, &rec.Origin, &rec.LifespanMS, &rec.IssuedMS, &rec.ExpiresMS,
		&userUUID, &rec.Username, &rec.LoginType, &rec.ProxyUUID, &permsBlob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token %s: %w", tokenUUID, err)
	}

	token := rec.token()
	token.User.UUID = userUUID
	token.Permissions = splitPermissions(permsBlob)
	if s.users != nil && userUUID != "" {
		user, err := s.users.UserByUUID(ctx, userUUID)
		if err != nil {
			return nil, fmt.Errorf("rehydrate user %s: %w", userUUID, err)
		}
		if user != nil {
			token.User = user.WithoutPasswordHash()
			if perms, err := s.users.PermissionsFor(ctx, user.Roles); err == nil {
				token.Permissions = perms
			}
		}
	}
	return token, nil
}

// Put upserts the token row. Revoked or expired tokens are dropped.
func (s *PostgresStore) Put(ctx context.Context, token *vigil.Token) error {
	if token == nil || token.Expired(s.clk.Now()) {
		return nil
	}
	rec := recordFromToken(token)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO login_tokens
			(uuid, origin, lifespan_ms, issued_ms, expires_ms,
			 user_uuid, username, login_type, proxy_uuid, permissions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (uuid) DO UPDATE SET
			origin = EXCLUDED.origin,
			lifespan_ms = EXCLUDED.lifespan_ms,
			issued_ms = EXCLUDED.issued_ms,
			expires_ms = EXCLUDED.expires_ms,
			user_uuid = EXCLUDED.user_uuid,
			username = EXCLUDED.username,
			login_type = EXCLUDED.login_type,
			proxy_uuid = EXCLUDED.proxy_uuid,
			permissions = EXCLUDED.permissions`,
		rec.UUID, rec.Origin, rec.LifespanMS, rec.IssuedMS, rec.ExpiresMS,
		rec.userUUID(), rec.Username, string(rec.LoginType), rec.ProxyUUID,
		joinPermissions(token.Permissions))
	if err != nil {
		return fmt.Errorf("store token %s: %w", token.UUID, err)
	}
	return nil
}

// Delete removes the token row. Missing rows are a no-op.
func (s *PostgresStore) Delete(ctx context.Context, tokenUUID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM login_tokens WHERE uuid = $1`, tokenUUID); err != nil {
		return fmt.Errorf("delete token %s: %w", tokenUUID, err)
	}
	return nil
}

// EvictOthers deletes every token for userUUID issued from a different
// origin.
func (s *PostgresStore) EvictOthers(ctx context.Context, origin, userUUID string) error {
	if userUUID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM login_tokens WHERE user_uuid = $1 AND origin <> $2`,
		userUUID, origin)
	if err != nil {
		return fmt.Errorf("evict tokens for user %s: %w", userUUID, err)
	}
	return nil
}

func (s *PostgresStore) purge(ctx context.Context, now time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM login_tokens WHERE expires_ms <= $1`, now.UnixMilli()); err != nil {
		return fmt.Errorf("purge expired tokens: %w", err)
	}
	return nil
}

// Permissions are flattened into a single text column. Unit separator keeps
// the encoding unambiguous for permission names containing commas.
const permissionSeparator = "\x1f"

func joinPermissions(perms []string) string {
	return strings.Join(perms, permissionSeparator)
}

func splitPermissions(blob string) []string {
	if blob == "" {
		return nil
	}
	return strings.Split(blob, permissionSeparator)
}

var _ vigil.TokenStore = (*PostgresStore)(nil)
