package authcore

import (
	"context"
	"errors"

	"github.com/nineroads/authcore/audit"
	"github.com/nineroads/authcore/metrics"
)

// roleRank orders the built-in roles. Higher ranks satisfy lower
// requirements.
var roleRank = map[string]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

func validRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

// RoleSatisfies reports whether have meets or exceeds want.
func RoleSatisfies(have, want string) bool {
	h, ok := roleRank[have]
	if !ok {
		return false
	}
	w, ok := roleRank[want]
	if !ok {
		return false
	}
	return h >= w
}

// RequireRole verifies an access token and checks that its role meets
// the requirement. It returns the caller's identity on success and
// ErrForbidden when the role is insufficient.
func (c *Coordinator) RequireRole(ctx context.Context, accessToken, requiredRole string) (*Identity, error) {
	identity, err := c.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if !RoleSatisfies(identity.Role, requiredRole) {
		return nil, ErrForbidden
	}
	return identity, nil
}

// ChangeRole sets a user's role. The caller must hold the admin role.
// All of the target's sessions are revoked and the token version bumps
// so outstanding tokens stop refreshing.
func (c *Coordinator) ChangeRole(ctx context.Context, adminAccessToken, targetUserID, newRole string) error {
	actor, err := c.RequireRole(ctx, adminAccessToken, RoleAdmin)
	if err != nil {
		return err
	}
	if !validRole(newRole) {
		return &ValidationError{Field: "role", Reason: "unknown role"}
	}

	storeCtx, cancel := c.withUpstreamTimeout(ctx)
	defer cancel()

	target, err := c.store.FindByID(storeCtx, targetUserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return upstream(err)
	}

	if err := c.store.UpdateRole(storeCtx, target.ID, newRole); err != nil {
		return upstream(err)
	}
	if _, err := c.store.BumpTokenVersion(storeCtx, target.ID); err != nil {
		return upstream(err)
	}
	if err := c.sessions.RevokeAll(ctx, target.ID); err != nil {
		return upstream(err)
	}

	c.metrics.Inc(metrics.RoleChange)
	c.emit(ctx, audit.Event{
		Type:    audit.TypeRoleChange,
		Success: true,
		UserID:  target.ID,
		Fields: map[string]string{
			"actor":    actor.UserID,
			"new_role": newRole,
		},
	})
	return nil
}
