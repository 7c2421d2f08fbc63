package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nineroads/authcore/audit"
	"github.com/nineroads/authcore/lockout"
	"github.com/nineroads/authcore/metrics"
	"github.com/nineroads/authcore/onetime"
	"github.com/nineroads/authcore/password"
	"github.com/nineroads/authcore/rate"
	"github.com/nineroads/authcore/session"
	"github.com/nineroads/authcore/token"
)

// Deps are the external collaborators a Coordinator is built from.
// Redis and Store are required; the rest are optional.
type Deps struct {
	Redis    redis.UniversalClient
	Store    CredentialStore
	Notifier Notifier

	// AuditSink receives audit events when Config.Audit is enabled.
	AuditSink audit.Sink
}

// Coordinator composes the authentication flows. Construct with New;
// all methods are safe for concurrent use.
type Coordinator struct {
	cfg      Config
	store    CredentialStore
	notifier Notifier

	codec    *token.Codec
	sessions *session.Registry
	lockouts *lockout.Tracker
	onetime  *onetime.Issuer
	limiter  *rate.Limiter
	hasher   *password.Hasher

	audit   *audit.Dispatcher
	metrics *metrics.Registry

	sweepCancel context.CancelFunc

	// Now is the clock used across flows. Tests may replace it; it is
	// propagated to every time-aware component.
	Now func() time.Time
}

// New validates cfg, wires the flow components, and starts the session
// sweeper.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Redis == nil {
		return nil, errors.New("authcore: redis client is required")
	}
	if deps.Store == nil {
		return nil, errors.New("authcore: credential store is required")
	}

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  cfg.Token.AccessSecret,
		RefreshSecret: cfg.Token.RefreshSecret,
		Issuer:        cfg.Token.Issuer,
		MaxClockSkew:  cfg.Token.MaxClockSkew,
	})
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:      cfg,
		store:    deps.Store,
		notifier: deps.Notifier,
		codec:    codec,
		sessions: session.NewRegistry(deps.Redis, cfg.Session.KeyPrefix, cfg.Session.TTL),
		lockouts: lockout.NewTracker(deps.Redis, cfg.Lockout),
		onetime:  onetime.NewIssuer(deps.Redis),
		limiter:  rate.NewLimiter(deps.Redis),
		hasher:   password.NewHasher(cfg.Password.Params),
		audit:    audit.NewDispatcher(cfg.Audit, deps.AuditSink),
		metrics:  metrics.NewRegistry(cfg.Metrics.Enabled),
		Now:      time.Now,
	}

	if cfg.Session.SweepInterval > 0 {
		sweepCtx, cancel := context.WithCancel(context.Background())
		c.sweepCancel = cancel
		c.sessions.StartSweeper(sweepCtx, cfg.Session.SweepInterval)
	}

	return c, nil
}

// Close stops the session sweeper and drains the audit dispatcher.
func (c *Coordinator) Close() {
	if c.sweepCancel != nil {
		c.sweepCancel()
	}
	c.audit.Close()
}

// Metrics exposes the coordinator's counter registry.
func (c *Coordinator) Metrics() *metrics.Registry {
	return c.metrics
}

// setClock rewires every time-aware component onto one clock. Used by
// tests that need to advance time deterministically.
func (c *Coordinator) setClock(now func() time.Time) {
	c.Now = now
	c.codec.Now = now
	c.sessions.Now = now
	c.onetime.Now = now
}

// withUpstreamTimeout bounds CredentialStore and Notifier calls so a
// stalled backend cannot pin a flow.
func (c *Coordinator) withUpstreamTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.UpstreamTimeout)
}

// issueSession mints a token pair carrying a fresh session id and
// persists the session record.
func (c *Coordinator) issueSession(ctx context.Context, user *User, meta Meta) (*Result, error) {
	sid := uuid.NewString()
	claims := token.Claims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		SessionID:    sid,
		TokenVersion: user.TokenVersion,
	}

	access, err := c.codec.IssueAccess(claims, c.cfg.Token.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := c.codec.IssueRefresh(claims, c.cfg.Token.RefreshTTL)
	if err != nil {
		return nil, err
	}

	sess, err := c.sessions.CreateWithID(ctx, sid, user.ID, access, refresh, session.Meta{
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
	})
	if err != nil {
		return nil, upstream(err)
	}

	c.metrics.Inc(metrics.SessionCreated)
	return &Result{
		User:         user,
		SessionID:    sess.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (c *Coordinator) emit(ctx context.Context, event audit.Event) {
	if c.audit == nil {
		return
	}
	event.Time = c.Now()
	c.audit.Emit(ctx, event)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
