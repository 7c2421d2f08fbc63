package authcore

import (
	"context"
	"errors"

	"github.com/nineroads/authcore/audit"
	"github.com/nineroads/authcore/metrics"
	"github.com/nineroads/authcore/session"
	"github.com/nineroads/authcore/token"
)

// ChangePassword replaces the caller's password after re-verifying the
// current one. All other sessions are revoked and the token version
// bumps; the calling session survives and receives a fresh token pair,
// since its previous tokens carry the now-stale version.
func (c *Coordinator) ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) (*Result, error) {
	identity, err := c.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	if err := c.cfg.Password.Policy.Validate(newPassword); err != nil {
		return nil, &ValidationError{Field: "password", Reason: err.Error()}
	}

	storeCtx, cancel := c.withUpstreamTimeout(ctx)
	defer cancel()

	user, err := c.store.FindByID(storeCtx, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, upstream(err)
	}

	match, err := c.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil || !match {
		c.metrics.Inc(metrics.PasswordChangeFailure)
		c.emit(ctx, audit.Event{
			Type:      audit.TypePasswordChange,
			UserID:    user.ID,
			SessionID: identity.SessionID,
			Err:       errString(ErrInvalidCredentials),
		})
		return nil, ErrInvalidCredentials
	}

	hash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	if err := c.store.UpdatePasswordHash(storeCtx, user.ID, hash); err != nil {
		return nil, upstream(err)
	}
	version, err := c.store.BumpTokenVersion(storeCtx, user.ID)
	if err != nil {
		return nil, upstream(err)
	}
	if err := c.sessions.RevokeAllExcept(ctx, user.ID, identity.SessionID); err != nil {
		return nil, upstream(err)
	}

	user.PasswordHash = hash
	user.TokenVersion = version

	claims := token.Claims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		SessionID:    identity.SessionID,
		TokenVersion: version,
	}
	newAccess, err := c.codec.IssueAccess(claims, c.cfg.Token.AccessTTL)
	if err != nil {
		return nil, err
	}
	newRefresh, err := c.codec.IssueRefresh(claims, c.cfg.Token.RefreshTTL)
	if err != nil {
		return nil, err
	}

	if _, err := c.sessions.Rebind(ctx, identity.SessionID, newAccess, newRefresh); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, upstream(err)
	}

	c.metrics.Inc(metrics.PasswordChangeSuccess)
	c.emit(ctx, audit.Event{
		Type:      audit.TypePasswordChange,
		Success:   true,
		UserID:    user.ID,
		SessionID: identity.SessionID,
	})
	return &Result{
		User:         user,
		SessionID:    identity.SessionID,
		AccessToken:  newAccess,
		RefreshToken: newRefresh,
	}, nil
}
