package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestChangePassword_KeepsCallingSessionOnly(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@example.com", "alice", "Str0ng!Pass")
	current := env.login(t, "a@example.com", "Str0ng!Pass")
	other := env.login(t, "a@example.com", "Str0ng!Pass")
	ctx := context.Background()

	changed, err := env.coord.ChangePassword(ctx, current.AccessToken, "Str0ng!Pass", "N3w!Passwd")
	if err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if changed.SessionID != current.SessionID {
		t.Fatal("the calling session should survive")
	}

	// the fresh pair works
	if _, err := env.coord.Authenticate(ctx, changed.AccessToken); err != nil {
		t.Fatalf("new access token rejected: %v", err)
	}
	if _, err := env.coord.Refresh(ctx, changed.RefreshToken); err != nil {
		t.Fatalf("new refresh token rejected: %v", err)
	}

	// the other session is gone, its tokens with it
	if _, err := env.coord.Authenticate(ctx, other.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("other session should be revoked, got %v", err)
	}
	if _, err := env.coord.Refresh(ctx, other.RefreshToken); err == nil {
		t.Fatal("other session's refresh token should be dead")
	}

	// the caller's pre-change tokens carry a stale version
	if _, err := env.coord.Refresh(ctx, current.RefreshToken); err == nil {
		t.Fatal("pre-change refresh token should be dead")
	}

	// credentials actually rotated
	env.login(t, "a@example.com", "N3w!Passwd")
	if _, err := env.coord.Login(ctx, LoginInput{Identifier: "a@example.com", Password: "Str0ng!Pass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should fail, got %v", err)
	}
}

func TestChangePassword_RequiresCurrentPassword(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "a@example.com", "alice", "Str0ng!Pass")
	ctx := context.Background()

	_, err := env.coord.ChangePassword(ctx, res.AccessToken, "Wr0ng!Pass", "N3w!Passwd")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	// session untouched after the failed attempt
	if _, err := env.coord.Authenticate(ctx, res.AccessToken); err != nil {
		t.Fatalf("session should survive a failed change, got %v", err)
	}
}

func TestChangePassword_RejectsWeakNewPassword(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "a@example.com", "alice", "Str0ng!Pass")

	var verr *ValidationError
	_, err := env.coord.ChangePassword(context.Background(), res.AccessToken, "Str0ng!Pass", "weak")
	if !errors.As(err, &verr) || verr.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}
}
