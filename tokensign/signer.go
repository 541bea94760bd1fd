package tokensign

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vigil-auth/vigil"
	"github.com/vigil-auth/vigil/audit"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Curve25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 using a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

// Config holds the signer's keys and claim settings. Configure once and
// treat as immutable.
type Config struct {
	SigningMethod SigningMethod

	// PrivateKey is the HS256 secret, or an ed25519 private key in raw or
	// PEM form.
	PrivateKey []byte

	// PublicKey is the ed25519 verify key in raw or PEM form. Ignored for
	// HS256, which verifies with PrivateKey.
	PublicKey []byte

	Issuer   string
	Audience string

	// Leeway tolerates clock skew between issuer and verifier when
	// checking exp and nbf. At most two minutes.
	Leeway time.Duration
}

// Claims is the JWT payload derived from a session token. The registered
// subject carries the user UUID and the JWT ID carries the token UUID.
type Claims struct {
	Username    string          `json:"username,omitempty"`
	Origin      string          `json:"origin,omitempty"`
	LoginType   audit.LoginType `json:"login_type,omitempty"`
	ProxyUUID   string          `json:"proxy_uuid,omitempty"`
	Permissions []string        `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Signer converts session tokens to signed assertions and back.
type Signer struct {
	config Config
}

// NewSigner validates the configuration and returns a ready Signer.
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Signer{config: cfg}, nil
}

// Sign produces a compact JWS for the token. The assertion's validity
// window is the token's own issue and expiry instants; signing a revoked
// or nil token is an error.
func (s *Signer) Sign(token *vigil.Token) (string, error) {
	if token == nil {
		return "", errors.New("nil token")
	}
	if token.Revoked() {
		return "", errors.New("token is revoked")
	}

	claims := Claims{
		Username:    token.Username,
		Origin:      token.Origin,
		LoginType:   token.LoginType,
		ProxyUUID:   token.ProxyUUID,
		Permissions: token.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        token.UUID,
			Subject:   token.User.UUID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(token.IssuedAt),
			NotBefore: jwt.NewNumericDate(token.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(token.ExpiresAt),
		},
	}
	if s.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.config.Audience}
	}

	jws := jwt.NewWithClaims(s.method(), claims)
	key, err := s.signKey()
	if err != nil {
		return "", err
	}
	return jws.SignedString(key)
}

// Verify checks the signature and time claims of an assertion and returns
// its claims. Issuer and audience are enforced when configured.
func (s *Signer) Verify(assertion string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method().Alg()}),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}
	if s.config.Audience != "" {
		options = append(options, jwt.WithAudience(s.config.Audience))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(assertion, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return s.verifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (s *Signer) method() jwt.SigningMethod {
	switch s.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (s *Signer) signKey() (interface{}, error) {
	switch s.config.SigningMethod {
	case MethodHS256:
		return s.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(s.config.PrivateKey)
	}
}

func (s *Signer) verifyKey() (interface{}, error) {
	switch s.config.SigningMethod {
	case MethodHS256:
		return s.config.PrivateKey, nil
	default:
		return parseEdPublicKey(s.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
