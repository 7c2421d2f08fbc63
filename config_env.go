package authcore

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type envConfig struct {
	AccessSecret  string        `env:"AUTHCORE_ACCESS_SECRET,notEmpty"`
	RefreshSecret string        `env:"AUTHCORE_REFRESH_SECRET,notEmpty"`
	Issuer        string        `env:"AUTHCORE_ISSUER" envDefault:"authcore"`
	AccessTTL     time.Duration `env:"AUTHCORE_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"AUTHCORE_REFRESH_TTL" envDefault:"168h"`

	SessionPrefix string        `env:"AUTHCORE_SESSION_PREFIX" envDefault:"asn"`
	SweepInterval time.Duration `env:"AUTHCORE_SWEEP_INTERVAL" envDefault:"1h"`

	LockoutThreshold int           `env:"AUTHCORE_LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration  time.Duration `env:"AUTHCORE_LOCKOUT_DURATION" envDefault:"15m"`

	LoginLimitMax    int           `env:"AUTHCORE_LOGIN_LIMIT_MAX" envDefault:"10"`
	LoginLimitWindow time.Duration `env:"AUTHCORE_LOGIN_LIMIT_WINDOW" envDefault:"1m"`

	RequireVerifiedEmail bool   `env:"AUTHCORE_REQUIRE_VERIFIED_EMAIL"`
	DefaultRole          string `env:"AUTHCORE_DEFAULT_ROLE" envDefault:"viewer"`

	AuditEnabled   bool `env:"AUTHCORE_AUDIT_ENABLED"`
	MetricsEnabled bool `env:"AUTHCORE_METRICS_ENABLED"`
}

// ConfigFromEnv builds a Config from AUTHCORE_* environment variables.
// Unset tunables fall back to the same defaults as DefaultConfig.
func ConfigFromEnv() (Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	cfg.Token.AccessSecret = []byte(raw.AccessSecret)
	cfg.Token.RefreshSecret = []byte(raw.RefreshSecret)
	cfg.Token.Issuer = raw.Issuer
	cfg.Token.AccessTTL = raw.AccessTTL
	cfg.Token.RefreshTTL = raw.RefreshTTL
	cfg.Session.TTL = raw.RefreshTTL
	cfg.Session.KeyPrefix = raw.SessionPrefix
	cfg.Session.SweepInterval = raw.SweepInterval
	cfg.Lockout.Threshold = raw.LockoutThreshold
	cfg.Lockout.LockDuration = raw.LockoutDuration
	cfg.RateLimit.Login = ScopeLimit{Max: raw.LoginLimitMax, Window: raw.LoginLimitWindow}
	cfg.Account.RequireVerifiedEmail = raw.RequireVerifiedEmail
	cfg.Account.DefaultRole = raw.DefaultRole
	cfg.Audit.Enabled = raw.AuditEnabled
	cfg.Metrics.Enabled = raw.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
