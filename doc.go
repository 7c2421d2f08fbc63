// Package authcore implements token-based authentication and session
// lifecycle management on top of Redis.
//
// The Coordinator is the single entry point. It composes the token,
// session, lockout, onetime, rate, and password packages into complete
// flows: registration, login with lockout and rate limiting, token
// refresh, logout, email verification, password reset, and role
// management. Credential storage and outbound notifications stay
// behind the CredentialStore and Notifier interfaces so callers bring
// their own database and mail delivery.
//
// Construction:
//
//	cfg := authcore.DefaultConfig()
//	cfg.Token.AccessSecret = accessSecret
//	cfg.Token.RefreshSecret = refreshSecret
//
//	coord, err := authcore.New(cfg, authcore.Deps{
//		Redis: rdb,
//		Store: store,
//	})
//
// All exported methods are safe for concurrent use.
package authcore
