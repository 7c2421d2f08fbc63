package authcore

import (
	"context"
	"errors"

	"github.com/nineroads/authcore/audit"
	"github.com/nineroads/authcore/metrics"
	"github.com/nineroads/authcore/session"
	"github.com/nineroads/authcore/token"
)

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself stays valid until its session expires or is
// revoked.
//
// A token whose version no longer matches the account is reported as
// revoked: credential and role changes bump the account version to cut
// off outstanding refresh tokens.
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	claims, err := c.codec.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		c.metrics.Inc(metrics.RefreshFailure)
		return nil, translateTokenError(err)
	}

	sess, err := c.sessions.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		c.metrics.Inc(metrics.RefreshFailure)
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, upstream(err)
	}
	if sess.UserID != claims.UserID {
		c.metrics.Inc(metrics.RefreshFailure)
		return nil, ErrSessionNotFound
	}

	storeCtx, cancel := c.withUpstreamTimeout(ctx)
	defer cancel()

	user, err := c.store.FindByID(storeCtx, claims.UserID)
	if err != nil {
		c.metrics.Inc(metrics.RefreshFailure)
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, upstream(err)
	}
	if user.TokenVersion != claims.TokenVersion {
		c.metrics.Inc(metrics.RefreshFailure)
		c.emit(ctx, audit.Event{
			Type:      audit.TypeRefresh,
			UserID:    user.ID,
			SessionID: sess.ID,
			Err:       "stale token version",
		})
		return nil, &TokenError{Kind: TokenRevoked}
	}
	if !user.IsActive {
		c.metrics.Inc(metrics.RefreshFailure)
		if err := c.sessions.Revoke(ctx, sess.ID); err != nil {
			return nil, upstream(err)
		}
		return nil, ErrAccountDisabled
	}

	access, err := c.codec.IssueAccess(token.Claims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		SessionID:    sess.ID,
		TokenVersion: user.TokenVersion,
	}, c.cfg.Token.AccessTTL)
	if err != nil {
		c.metrics.Inc(metrics.RefreshFailure)
		return nil, err
	}

	if _, err := c.sessions.Touch(ctx, sess.ID, access); err != nil {
		c.metrics.Inc(metrics.RefreshFailure)
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, upstream(err)
	}

	c.metrics.Inc(metrics.RefreshSuccess)
	c.emit(ctx, audit.Event{
		Type:      audit.TypeRefresh,
		Success:   true,
		UserID:    user.ID,
		SessionID: sess.ID,
	})
	return &Result{
		User:         user,
		SessionID:    sess.ID,
		AccessToken:  access,
		RefreshToken: refreshToken,
	}, nil
}

// Authenticate verifies an access token and confirms its session is
// still live. Session existence is the revocation check; no credential
// store round trip is made on this path.
func (c *Coordinator) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := c.codec.Verify(accessToken, token.KindAccess)
	if err != nil {
		return nil, translateTokenError(err)
	}
	if claims.SessionID == "" {
		return nil, &TokenError{Kind: TokenMalformed}
	}

	sess, err := c.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, upstream(err)
	}
	if sess.UserID != claims.UserID {
		return nil, ErrSessionNotFound
	}

	return &Identity{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}
