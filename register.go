package authcore

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/nineroads/authcore/audit"
	"github.com/nineroads/authcore/metrics"
	"github.com/nineroads/authcore/onetime"
)

// RegisterInput carries registration parameters.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	Meta     Meta
}

// Register creates an account, establishes its first session, and
// triggers verification email delivery. New accounts start with the
// configured default role and an unverified email address.
func (c *Coordinator) Register(ctx context.Context, input RegisterInput) (*Result, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)

	if email == "" || !strings.Contains(email, "@") {
		return nil, &ValidationError{Field: "email", Reason: "must be a valid address"}
	}
	if username == "" {
		return nil, &ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if err := c.cfg.Password.Policy.Validate(input.Password); err != nil {
		return nil, &ValidationError{Field: "password", Reason: err.Error()}
	}

	if limit := c.cfg.RateLimit.Register; input.Meta.IPAddress != "" {
		ok, retryAfter, err := c.limiter.Allow(ctx, "register", input.Meta.IPAddress, limit.Window, limit.Max)
		if err != nil {
			return nil, upstream(err)
		}
		if !ok {
			c.metrics.Inc(metrics.RegisterRateLimited)
			c.emit(ctx, audit.Event{
				Type: audit.TypeRateLimited,
				IP:   input.Meta.IPAddress,
				Fields: map[string]string{
					"scope": "register",
				},
			})
			return nil, &RateLimitedError{Scope: "register", RetryAfter: retryAfter}
		}
	}

	hash, err := c.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         c.cfg.Account.DefaultRole,
		IsActive:     true,
		CreatedAt:    c.Now(),
	}

	storeCtx, cancel := c.withUpstreamTimeout(ctx)
	defer cancel()

	if err := c.store.CreateUser(storeCtx, user); err != nil {
		if errors.Is(err, ErrDuplicateIdentifier) {
			c.metrics.Inc(metrics.RegisterDuplicate)
			c.emit(ctx, audit.Event{
				Type: audit.TypeRegister,
				IP:   input.Meta.IPAddress,
				Err:  errString(ErrDuplicateIdentifier),
			})
			return nil, ErrDuplicateIdentifier
		}
		return nil, upstream(err)
	}

	result, err := c.issueSession(ctx, user, input.Meta)
	if err != nil {
		return nil, err
	}

	c.sendVerification(ctx, user)

	c.metrics.Inc(metrics.RegisterSuccess)
	c.emit(ctx, audit.Event{
		Type:      audit.TypeRegister,
		Success:   true,
		UserID:    user.ID,
		SessionID: result.SessionID,
		IP:        input.Meta.IPAddress,
	})
	return result, nil
}

// sendVerification issues a verification token and hands it to the
// notifier. Failures never fail the enclosing flow.
func (c *Coordinator) sendVerification(ctx context.Context, user *User) {
	if c.notifier == nil {
		return
	}

	tok, err := c.onetime.Issue(ctx, user.ID, onetime.PurposeEmailVerify, c.cfg.OneTime.VerifyTTL)
	if err != nil {
		log.Print("authcore: verification token issue failed")
		return
	}

	notifyCtx, cancel := c.withUpstreamTimeout(ctx)
	defer cancel()
	if err := c.notifier.SendVerificationEmail(notifyCtx, user.Email, tok); err != nil {
		log.Print("authcore: verification email delivery failed")
		c.emit(ctx, audit.Event{
			Type:   audit.TypeEmailVerifyRequest,
			UserID: user.ID,
			Err:    errString(err),
		})
		return
	}

	c.metrics.Inc(metrics.EmailVerifyRequest)
	c.emit(ctx, audit.Event{
		Type:    audit.TypeEmailVerifyRequest,
		Success: true,
		UserID:  user.ID,
	})
}
