package authcore

import (
	"context"
	"errors"

	"github.com/nineroads/authcore/audit"
	"github.com/nineroads/authcore/metrics"
)

// LoginInput carries login parameters. Identifier may be an email
// address or a username.
type LoginInput struct {
	Identifier string
	Password   string
	Meta       Meta
}

// Login authenticates a credential pair and establishes a session.
//
// Every credential failure reports ErrInvalidCredentials, regardless
// of whether the account exists. Backend failures on the limiter or
// lockout tracker fail closed with ErrUpstream rather than letting
// attempts through uncounted.
func (c *Coordinator) Login(ctx context.Context, input LoginInput) (*Result, error) {
	identifier := input.Identifier
	if identifier == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	if limit := c.cfg.RateLimit.Login; limit.Max > 0 {
		ok, retryAfter, err := c.limiter.Allow(ctx, "login", identifier, limit.Window, limit.Max)
		if err != nil {
			return nil, upstream(err)
		}
		if !ok {
			c.metrics.Inc(metrics.LoginRateLimited)
			c.emit(ctx, audit.Event{
				Type: audit.TypeRateLimited,
				IP:   input.Meta.IPAddress,
				Fields: map[string]string{
					"scope": "login",
				},
			})
			return nil, &RateLimitedError{Scope: "login", RetryAfter: retryAfter}
		}
	}

	locked, retryAfter, err := c.lockouts.IsLocked(ctx, identifier)
	if err != nil {
		return nil, upstream(err)
	}
	if locked {
		c.metrics.Inc(metrics.LoginLocked)
		c.emit(ctx, audit.Event{
			Type: audit.TypeLogin,
			IP:   input.Meta.IPAddress,
			Err:  "locked",
		})
		return nil, &LockedError{RetryAfter: retryAfter}
	}

	storeCtx, cancel := c.withUpstreamTimeout(ctx)
	defer cancel()

	user, err := c.store.FindByIdentifier(storeCtx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, c.failLogin(ctx, identifier, "", input.Meta)
		}
		return nil, upstream(err)
	}

	match, err := c.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil || !match {
		return nil, c.failLogin(ctx, identifier, user.ID, input.Meta)
	}

	if !user.IsActive {
		c.metrics.Inc(metrics.LoginFailure)
		c.emit(ctx, audit.Event{
			Type:   audit.TypeLogin,
			UserID: user.ID,
			IP:     input.Meta.IPAddress,
			Err:    errString(ErrAccountDisabled),
		})
		return nil, ErrAccountDisabled
	}
	if c.cfg.Account.RequireVerifiedEmail && !user.IsEmailVerified {
		c.metrics.Inc(metrics.LoginFailure)
		c.emit(ctx, audit.Event{
			Type:   audit.TypeLogin,
			UserID: user.ID,
			IP:     input.Meta.IPAddress,
			Err:    errString(ErrAccountUnverified),
		})
		return nil, ErrAccountUnverified
	}

	if err := c.lockouts.RecordSuccess(ctx, identifier); err != nil {
		return nil, upstream(err)
	}
	if err := c.limiter.Reset(ctx, "login", identifier); err != nil {
		return nil, upstream(err)
	}

	result, err := c.issueSession(ctx, user, input.Meta)
	if err != nil {
		return nil, err
	}

	c.metrics.Inc(metrics.LoginSuccess)
	c.emit(ctx, audit.Event{
		Type:      audit.TypeLogin,
		Success:   true,
		UserID:    user.ID,
		SessionID: result.SessionID,
		IP:        input.Meta.IPAddress,
	})
	return result, nil
}

// failLogin counts one failed attempt against the identifier and
// returns the uniform credential error. A lockout backend failure
// takes precedence so attempts never go uncounted.
func (c *Coordinator) failLogin(ctx context.Context, identifier, userID string, meta Meta) error {
	lockedNow, err := c.lockouts.RecordFailure(ctx, identifier)
	if err != nil {
		return upstream(err)
	}

	c.metrics.Inc(metrics.LoginFailure)
	c.emit(ctx, audit.Event{
		Type:   audit.TypeLogin,
		UserID: userID,
		IP:     meta.IPAddress,
		Err:    errString(ErrInvalidCredentials),
	})

	if lockedNow {
		c.metrics.Inc(metrics.LoginLocked)
		c.emit(ctx, audit.Event{
			Type:   audit.TypeAccountLocked,
			UserID: userID,
			IP:     meta.IPAddress,
		})
	}
	return ErrInvalidCredentials
}
