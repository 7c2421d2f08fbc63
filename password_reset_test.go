package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPasswordReset_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "a@example.com", "alice", "Str0ng!Pass")
	ctx := context.Background()

	if err := env.coord.RequestPasswordReset(ctx, "a@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	tok := env.notifier.lastResetToken("a@example.com")
	if tok == "" {
		t.Fatal("no reset token delivered")
	}

	if err := env.coord.ConfirmPasswordReset(ctx, tok, "N3w!Passwd"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	// old credential dead, new one live
	if _, err := env.coord.Login(ctx, LoginInput{Identifier: "a@example.com", Password: "Str0ng!Pass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should fail, got %v", err)
	}
	env.login(t, "a@example.com", "N3w!Passwd")

	// prior sessions and refresh tokens are gone
	if _, err := env.coord.Authenticate(ctx, res.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("old session should be revoked, got %v", err)
	}
	if _, err := env.coord.Refresh(ctx, res.RefreshToken); err == nil {
		t.Fatal("old refresh token should be dead")
	}
}

func TestPasswordReset_TokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@example.com", "alice", "Str0ng!Pass")
	ctx := context.Background()

	env.coord.RequestPasswordReset(ctx, "a@example.com")
	tok := env.notifier.lastResetToken("a@example.com")

	if err := env.coord.ConfirmPasswordReset(ctx, tok, "N3w!Passwd"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}
	if err := env.coord.ConfirmPasswordReset(ctx, tok, "An0ther!Pw"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound on reuse, got %v", err)
	}
}

func TestPasswordReset_TokenExpires(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.OneTime.ResetTTL = time.Hour
	})
	env.register(t, "a@example.com", "alice", "Str0ng!Pass")
	ctx := context.Background()

	env.coord.RequestPasswordReset(ctx, "a@example.com")
	tok := env.notifier.lastResetToken("a@example.com")

	env.advance(2 * time.Hour)

	if err := env.coord.ConfirmPasswordReset(ctx, tok, "N3w!Passwd"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound for expired token, got %v", err)
	}
}

func TestPasswordReset_RejectsWeakPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@example.com", "alice", "Str0ng!Pass")
	ctx := context.Background()

	env.coord.RequestPasswordReset(ctx, "a@example.com")
	tok := env.notifier.lastResetToken("a@example.com")

	var verr *ValidationError
	if err := env.coord.ConfirmPasswordReset(ctx, tok, "weak"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// the token survives a rejected password and works with a valid one
	if err := env.coord.ConfirmPasswordReset(ctx, tok, "N3w!Passwd"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed after retry: %v", err)
	}
}

func TestPasswordReset_ClearsLockout(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Lockout.Threshold = 3
		cfg.RateLimit.Login = ScopeLimit{Max: 100, Window: time.Minute}
	})
	env.register(t, "a@example.com", "alice", "Str0ng!Pass")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.coord.Login(ctx, LoginInput{Identifier: "a@example.com", Password: "Wr0ng!Pass"})
	}
	var le *LockedError
	if _, err := env.coord.Login(ctx, LoginInput{Identifier: "a@example.com", Password: "Str0ng!Pass"}); !errors.As(err, &le) {
		t.Fatalf("expected LockedError before reset, got %v", err)
	}

	env.coord.RequestPasswordReset(ctx, "a@example.com")
	tok := env.notifier.lastResetToken("a@example.com")
	if err := env.coord.ConfirmPasswordReset(ctx, tok, "N3w!Passwd"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	env.login(t, "a@example.com", "N3w!Passwd")
}

func TestRequestPasswordReset_UniformForUnknownIdentifier(t *testing.T) {
	env := newTestEnv(t)

	if err := env.coord.RequestPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("unknown identifier must not error, got %v", err)
	}
	if env.notifier.lastResetToken("ghost@example.com") != "" {
		t.Fatal("no email should be sent for unknown identifiers")
	}
}
