package authcore

import (
	"errors"
	"time"

	"github.com/nineroads/authcore/audit"
	"github.com/nineroads/authcore/lockout"
	"github.com/nineroads/authcore/password"
)

// Role names understood by the built-in flat hierarchy.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// TokenConfig holds signing material and token lifetimes.
type TokenConfig struct {
	// AccessSecret and RefreshSecret sign their respective token kinds
	// and must differ.
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string

	AccessTTL  time.Duration // default 15m
	RefreshTTL time.Duration // default 7d, matches the session lifetime

	// MaxClockSkew bounds future-dated iat claims. Zero selects 30s.
	MaxClockSkew time.Duration
}

// SessionConfig controls the Redis session registry.
type SessionConfig struct {
	KeyPrefix     string        // default "asn"
	TTL           time.Duration // default 7d
	SweepInterval time.Duration // default 1h; negative disables the sweeper
}

// ScopeLimit is one fixed-window rate limit.
type ScopeLimit struct {
	Max    int
	Window time.Duration
}

// RateLimitConfig holds per-flow request limits. A zero Max disables
// that scope's limit.
type RateLimitConfig struct {
	Login         ScopeLimit // default 10 per 1m, keyed by identifier
	Register      ScopeLimit // default 5 per 1h, keyed by client IP
	PasswordReset ScopeLimit // default 3 per 1h, keyed by identifier
	EmailVerify   ScopeLimit // default 3 per 1h, keyed by identifier
}

// PasswordConfig holds hashing parameters and the acceptance policy.
type PasswordConfig struct {
	Params password.Params
	Policy password.Policy
}

// OneTimeConfig holds lifetimes for out-of-band tokens.
type OneTimeConfig struct {
	VerifyTTL time.Duration // default 24h
	ResetTTL  time.Duration // default 1h
}

// AccountConfig holds account-level policy.
type AccountConfig struct {
	// DefaultRole is assigned at registration. Default "viewer".
	DefaultRole string
	// RequireVerifiedEmail blocks login until the address is verified.
	RequireVerifiedEmail bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// Config is the Coordinator's complete configuration.
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	Lockout   lockout.Config
	RateLimit RateLimitConfig
	Password  PasswordConfig
	OneTime   OneTimeConfig
	Account   AccountConfig
	Audit     audit.Config
	Metrics   MetricsConfig

	// UpstreamTimeout bounds each CredentialStore call. Default 5s.
	UpstreamTimeout time.Duration
}

// DefaultConfig returns a Config with every tunable at its documented
// default. Token secrets must still be supplied by the caller.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	if c.Token.AccessTTL <= 0 {
		c.Token.AccessTTL = 15 * time.Minute
	}
	if c.Token.RefreshTTL <= 0 {
		c.Token.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = c.Token.RefreshTTL
	}
	if c.Session.KeyPrefix == "" {
		c.Session.KeyPrefix = "asn"
	}
	if c.Session.SweepInterval == 0 {
		c.Session.SweepInterval = time.Hour
	}
	if c.RateLimit.Login == (ScopeLimit{}) {
		c.RateLimit.Login = ScopeLimit{Max: 10, Window: time.Minute}
	}
	if c.RateLimit.Register == (ScopeLimit{}) {
		c.RateLimit.Register = ScopeLimit{Max: 5, Window: time.Hour}
	}
	if c.RateLimit.PasswordReset == (ScopeLimit{}) {
		c.RateLimit.PasswordReset = ScopeLimit{Max: 3, Window: time.Hour}
	}
	if c.RateLimit.EmailVerify == (ScopeLimit{}) {
		c.RateLimit.EmailVerify = ScopeLimit{Max: 3, Window: time.Hour}
	}
	if c.Password.Policy == (password.Policy{}) {
		c.Password.Policy = password.DefaultPolicy
	}
	if c.OneTime.VerifyTTL <= 0 {
		c.OneTime.VerifyTTL = 24 * time.Hour
	}
	if c.OneTime.ResetTTL <= 0 {
		c.OneTime.ResetTTL = time.Hour
	}
	if c.Account.DefaultRole == "" {
		c.Account.DefaultRole = RoleViewer
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = 5 * time.Second
	}
}

// Validate reports configuration the Coordinator cannot start with.
func (c *Config) Validate() error {
	if len(c.Token.AccessSecret) == 0 || len(c.Token.RefreshSecret) == 0 {
		return errors.New("authcore: token secrets are required")
	}
	if string(c.Token.AccessSecret) == string(c.Token.RefreshSecret) {
		return errors.New("authcore: access and refresh secrets must differ")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("authcore: access token ttl must be shorter than refresh ttl")
	}
	if !validRole(c.Account.DefaultRole) {
		return errors.New("authcore: unknown default role")
	}
	return nil
}
