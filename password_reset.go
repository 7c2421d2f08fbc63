package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/nineroads/authcore/audit"
	"github.com/nineroads/authcore/metrics"
	"github.com/nineroads/authcore/onetime"
)

// RequestPasswordReset issues a reset token for the account behind
// identifier and emails it. The response is uniform for unknown
// identifiers so the endpoint cannot confirm account existence.
func (c *Coordinator) RequestPasswordReset(ctx context.Context, identifier string) error {
	if identifier == "" {
		return nil
	}

	if limit := c.cfg.RateLimit.PasswordReset; limit.Max > 0 {
		ok, retryAfter, err := c.limiter.Allow(ctx, "password_reset", identifier, limit.Window, limit.Max)
		if err != nil {
			return upstream(err)
		}
		if !ok {
			return &RateLimitedError{Scope: "password_reset", RetryAfter: retryAfter}
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

	tok, err := c.onetime.Issue(ctx, user.ID, onetime.PurposePasswordReset, c.cfg.OneTime.ResetTTL)
	if err != nil {
		return upstream(err)
	}

	if c.notifier != nil {
		notifyCtx, cancel := c.withUpstreamTimeout(ctx)
		defer cancel()
		if err := c.notifier.SendPasswordResetEmail(notifyCtx, user.Email, tok); err != nil {
			log.Print("authcore: password reset email delivery failed")
		}
	}

	c.metrics.Inc(metrics.PasswordResetRequest)
	c.emit(ctx, audit.Event{
		Type:    audit.TypePasswordResetRequest,
		Success: true,
		UserID:  user.ID,
	})
	return nil
}

// ConfirmPasswordReset consumes a reset token and installs a new
// password. Every session is revoked and the token version bumps so
// outstanding refresh tokens die with the old credential; any armed
// lockout for the account clears.
func (c *Coordinator) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if err := c.cfg.Password.Policy.Validate(newPassword); err != nil {
		return &ValidationError{Field: "password", Reason: err.Error()}
	}

	userID, err := c.onetime.Consume(ctx, resetToken, onetime.PurposePasswordReset)
	if err != nil {
		c.metrics.Inc(metrics.PasswordResetFailure)
		switch {
		case errors.Is(err, onetime.ErrNotFound), errors.Is(err, onetime.ErrExpired):
			return ErrTokenNotFound
		default:
			return upstream(err)
		}
	}

	hash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	storeCtx, cancel := c.withUpstreamTimeout(ctx)
	defer cancel()

	user, err := c.store.FindByID(storeCtx, userID)
	if err != nil {
		c.metrics.Inc(metrics.PasswordResetFailure)
		if errors.Is(err, ErrUserNotFound) {
			return ErrTokenNotFound
		}
		return upstream(err)
	}

	if err := c.store.UpdatePasswordHash(storeCtx, user.ID, hash); err != nil {
		return upstream(err)
	}
	if _, err := c.store.BumpTokenVersion(storeCtx, user.ID); err != nil {
		return upstream(err)
	}
	if err := c.sessions.RevokeAll(ctx, user.ID); err != nil {
		return upstream(err)
	}

	// The user has re-proven control of the account; stale failed
	// attempts should not keep them locked out.
	for _, identifier := range []string{user.Email, user.Username} {
		if err := c.lockouts.RecordSuccess(ctx, identifier); err != nil {
			log.Print("authcore: lockout clear after reset failed")
		}
	}

	c.metrics.Inc(metrics.PasswordResetSuccess)
	c.emit(ctx, audit.Event{
		Type:    audit.TypePasswordResetConfirm,
		Success: true,
		UserID:  user.ID,
	})
	return nil
}
