package authcore

import (
	"context"
	"errors"

	"github.com/nineroads/authcore/audit"
	"github.com/nineroads/authcore/metrics"
	"github.com/nineroads/authcore/session"
)

// Logout revokes the session bound to the presented access token.
// Revoking an already-gone session succeeds; logout is idempotent.
func (c *Coordinator) Logout(ctx context.Context, accessToken string) error {
	identity, err := c.Authenticate(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	if err := c.sessions.Revoke(ctx, identity.SessionID); err != nil {
		return upstream(err)
	}

	c.metrics.Inc(metrics.Logout)
	c.metrics.Inc(metrics.SessionRevoked)
	c.emit(ctx, audit.Event{
		Type:      audit.TypeLogout,
		Success:   true,
		UserID:    identity.UserID,
		SessionID: identity.SessionID,
	})
	return nil
}

// LogoutAll revokes every session belonging to the caller, including
// the one behind the presented token.
func (c *Coordinator) LogoutAll(ctx context.Context, accessToken string) error {
	identity, err := c.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := c.sessions.RevokeAll(ctx, identity.UserID); err != nil {
		return upstream(err)
	}

	c.metrics.Inc(metrics.LogoutAll)
	c.emit(ctx, audit.Event{
		Type:    audit.TypeLogoutAll,
		Success: true,
		UserID:  identity.UserID,
	})
	return nil
}

// ListSessions returns the caller's live sessions.
func (c *Coordinator) ListSessions(ctx context.Context, accessToken string) ([]*session.Session, error) {
	identity, err := c.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	sessions, err := c.sessions.ListActive(ctx, identity.UserID)
	if err != nil {
		return nil, upstream(err)
	}
	return sessions, nil
}

// RevokeSession revokes one of the caller's sessions by id, typically
// from a "sign out other devices" surface. Revoking a session the
// caller does not own reports ErrSessionNotFound.
func (c *Coordinator) RevokeSession(ctx context.Context, accessToken, sessionID string) error {
	identity, err := c.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}

	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return upstream(err)
	}
	if sess.UserID != identity.UserID {
		return ErrSessionNotFound
	}

	if err := c.sessions.Revoke(ctx, sessionID); err != nil {
		return upstream(err)
	}

	c.metrics.Inc(metrics.SessionRevoked)
	c.emit(ctx, audit.Event{
		Type:      audit.TypeSessionRevoked,
		Success:   true,
		UserID:    identity.UserID,
		SessionID: sessionID,
	})
	return nil
}
