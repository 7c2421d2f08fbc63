package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/nineroads/authcore/token"
)

// Sentinel errors returned by Coordinator flows.
var (
	// ErrInvalidCredentials covers every login failure that must not
	// reveal whether the account exists.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountDisabled is returned when the account is deactivated.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrAccountUnverified is returned when a flow requires a verified
	// email address and the account has none.
	ErrAccountUnverified = errors.New("account email not verified")

	// ErrDuplicateIdentifier is returned by Register when the email or
	// username is already taken.
	ErrDuplicateIdentifier = errors.New("identifier already registered")

	// ErrUserNotFound is returned by CredentialStore lookups with no
	// matching account.
	ErrUserNotFound = errors.New("user not found")

	// ErrSessionNotFound is returned when a session no longer exists
	// or has expired.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenNotFound is returned when a one-time token is unknown or
	// already consumed.
	ErrTokenNotFound = errors.New("token not found or already used")

	// ErrForbidden is returned when the caller's role does not satisfy
	// the required role.
	ErrForbidden = errors.New("insufficient role")

	// ErrUpstream is returned when a backing store failed and the flow
	// fails closed.
	ErrUpstream = errors.New("upstream dependency unavailable")
)

// ValidationError reports rejected flow input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// LockedError is returned when the account is locked out after
// repeated failed logins.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter)
}

// RateLimitedError is returned when a flow exceeds its request limit.
type RateLimitedError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded, retry after %s", e.Scope, e.RetryAfter)
}

// TokenErrorKind classifies token verification failures.
type TokenErrorKind string

const (
	TokenExpired      TokenErrorKind = "expired"
	TokenMalformed    TokenErrorKind = "malformed"
	TokenBadSignature TokenErrorKind = "bad_signature"
	TokenWrongKind    TokenErrorKind = "wrong_kind"
	TokenRevoked      TokenErrorKind = "revoked"
)

// TokenError is returned when an access or refresh token is rejected.
type TokenError struct {
	Kind TokenErrorKind
}

func (e *TokenError) Error() string {
	return "token rejected: " + string(e.Kind)
}

// translateTokenError maps token package sentinels to a TokenError so
// callers never depend on the codec's error vocabulary.
func translateTokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return &TokenError{Kind: TokenExpired}
	case errors.Is(err, token.ErrSignature):
		return &TokenError{Kind: TokenBadSignature}
	case errors.Is(err, token.ErrWrongKind):
		return &TokenError{Kind: TokenWrongKind}
	default:
		return &TokenError{Kind: TokenMalformed}
	}
}

// upstream wraps a backend failure so every flow reports the same
// fail-closed sentinel.
func upstream(err error) error {
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}
