package authcore

import (
	"context"
	"errors"

	"github.com/nineroads/authcore/audit"
	"github.com/nineroads/authcore/metrics"
	"github.com/nineroads/authcore/onetime"
)

// RequestEmailVerification issues a fresh verification token for the
// account behind identifier and emails it. The response is uniform:
// unknown identifiers and already-verified accounts return nil so the
// endpoint cannot be used to probe for accounts.
func (c *Coordinator) RequestEmailVerification(ctx context.Context, identifier string) error {
	if identifier == "" {
		return nil
	}

	if limit := c.cfg.RateLimit.EmailVerify; limit.Max > 0 {
		ok, retryAfter, err := c.limiter.Allow(ctx, "email_verify", identifier, limit.Window, limit.Max)
		if err != nil {
			return upstream(err)
		}
		if !ok {
			return &RateLimitedError{Scope: "email_verify", RetryAfter: retryAfter}
		}
	}

	storeCtx, cancel := c.withUpstreamTimeout(ctx)
	defer cancel()

	user, err := c.store.FindByIdentifier(storeCtx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return upstream(err)
	}
	if user.IsEmailVerified {
		return nil
	}

	c.sendVerification(ctx, user)
	return nil
}

// VerifyEmail consumes a verification token and marks the account's
// address verified. Unknown, expired, and already-consumed tokens all
// report ErrTokenNotFound.
func (c *Coordinator) VerifyEmail(ctx context.Context, verifyToken string) error {
	userID, err := c.onetime.Consume(ctx, verifyToken, onetime.PurposeEmailVerify)
	if err != nil {
		c.metrics.Inc(metrics.EmailVerifyFailure)
		switch {
		case errors.Is(err, onetime.ErrNotFound), errors.Is(err, onetime.ErrExpired):
			return ErrTokenNotFound
		default:
			return upstream(err)
		}
	}

	storeCtx, cancel := c.withUpstreamTimeout(ctx)
	defer cancel()

	if err := c.store.MarkEmailVerified(storeCtx, userID); err != nil {
		c.metrics.Inc(metrics.EmailVerifyFailure)
		if errors.Is(err, ErrUserNotFound) {
			return ErrTokenNotFound
		}
		return upstream(err)
	}

	c.metrics.Inc(metrics.EmailVerifySuccess)
	c.emit(ctx, audit.Event{
		Type:    audit.TypeEmailVerified,
		Success: true,
		UserID:  userID,
	})
	return nil
}
