package authcore

import (
	"context"
	"time"
)

// User is the account record exchanged with the CredentialStore.
type User struct {
	ID              string
	Email           string
	Username        string
	PasswordHash    string
	Role            string
	IsActive        bool
	IsEmailVerified bool
	TokenVersion    uint32
	CreatedAt       time.Time
}

// CredentialStore persists user accounts. Implementations are expected
// to be safe for concurrent use. Lookup methods return ErrUserNotFound
// when no account matches.
type CredentialStore interface {
	// FindByIdentifier resolves an account by email or username.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)

	// CreateUser persists a new account. It returns
	// ErrDuplicateIdentifier when the email or username is taken.
	CreateUser(ctx context.Context, user *User) error

	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateRole(ctx context.Context, id, role string) error
	MarkEmailVerified(ctx context.Context, id string) error

	// BumpTokenVersion atomically increments the account's token
	// version and returns the new value.
	BumpTokenVersion(ctx context.Context, id string) (uint32, error)
}

// Notifier delivers account emails. Delivery failures never fail the
// flow that triggered them; they are logged and audited instead.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// Result is returned by flows that establish a session.
type Result struct {
	User         *User
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// Identity describes the verified caller of an access token.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

// Meta carries per-request client attributes recorded on the session.
type Meta struct {
	UserAgent string
	IPAddress string
}
