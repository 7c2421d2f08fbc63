package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind discriminates access tokens from refresh tokens. Each kind is
// signed with its own secret, and a token presented for the wrong kind
// is rejected even when its signature verifies.
type Kind string

const (
	// KindAccess marks short-lived tokens attached to individual requests.
	KindAccess Kind = "access"
	// KindRefresh marks longer-lived tokens exchanged for new access tokens.
	KindRefresh Kind = "refresh"
)

var (
	// ErrExpired is returned when a token's exp claim has passed.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned for tokens that do not parse, carry an
	// unknown kind, or claim an issued-at beyond the clock-skew bound.
	ErrMalformed = errors.New("token malformed")
	// ErrSignature is returned when the signature does not verify.
	ErrSignature = errors.New("token signature invalid")
	// ErrWrongKind is returned when a valid token of the other kind is
	// presented (refresh where access is expected, or vice versa).
	ErrWrongKind = errors.New("token kind mismatch")
)

const defaultMaxClockSkew = 30 * time.Second

// Config holds the codec's signing material and verification bounds.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string

	// MaxClockSkew bounds how far in the future a token's iat may sit
	// before it is rejected. Zero selects the 30s default; negative
	// disables the check.
	MaxClockSkew time.Duration
}

// Claims is the payload embedded in both token kinds.
type Claims struct {
	UserID       string `json:"uid"`
	Email        string `json:"eml,omitempty"`
	Role         string `json:"rol,omitempty"`
	SessionID    string `json:"sid,omitempty"`
	TokenVersion uint32 `json:"ver,omitempty"`
	Kind         Kind   `json:"knd"`
	jwt.RegisteredClaims
}

// Codec signs and verifies compact HS256 tokens. Verification is pure
// and safe for concurrent use.
type Codec struct {
	config Config

	// Now is the clock used for issuance and skew checks. Tests may
	// replace it; it defaults to time.Now.
	Now func() time.Time
}

// NewCodec validates the configuration and returns a ready codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: both access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.MaxClockSkew == 0 {
		cfg.MaxClockSkew = defaultMaxClockSkew
	}

	return &Codec{config: cfg, Now: time.Now}, nil
}

// IssueAccess signs claims as an access token valid for ttl.
func (c *Codec) IssueAccess(claims Claims, ttl time.Duration) (string, error) {
	return c.issue(claims, KindAccess, ttl)
}

// IssueRefresh signs claims as a refresh token valid for ttl.
func (c *Codec) IssueRefresh(claims Claims, ttl time.Duration) (string, error) {
	return c.issue(claims, KindRefresh, ttl)
}

func (c *Codec) issue(claims Claims, kind Kind, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token: ttl must be positive")
	}

	now := c.Now()
	claims.Kind = kind
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    c.config.Issuer,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.secretFor(kind))
}

func (c *Codec) secretFor(kind Kind) []byte {
	if kind == KindRefresh {
		return c.config.RefreshSecret
	}
	return c.config.AccessSecret
}

// Verify parses and validates a token, then checks that it carries the
// expected kind. Signature verification selects the secret from the
// token's own kind claim, so a refresh token presented where an access
// token is expected fails with ErrWrongKind rather than ErrSignature.
func (c *Codec) Verify(tokenStr string, expected Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.Now),
		jwt.WithExpirationRequired(),
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		claims, ok := t.Claims.(*Claims)
		if !ok {
			return nil, ErrMalformed
		}
		switch claims.Kind {
		case KindAccess, KindRefresh:
			return c.secretFor(claims.Kind), nil
		default:
			return nil, ErrMalformed
		}
	})
	if err != nil {
		return nil, translateParseError(err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}
	if c.config.MaxClockSkew >= 0 && claims.IssuedAt != nil {
		if claims.IssuedAt.Time.After(c.Now().Add(c.config.MaxClockSkew)) {
			return nil, ErrMalformed
		}
	}
	if claims.Kind != expected {
		return nil, ErrWrongKind
	}

	return claims, nil
}

func translateParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	default:
		return ErrMalformed
	}
}
