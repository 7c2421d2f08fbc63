// Package token signs and verifies the compact access and refresh tokens
// used across the authentication flows.
//
// Access and refresh tokens share one claims layout but are signed with
// distinct secrets and carry a kind marker, so neither can stand in for
// the other. Verification is strict: unknown algorithms (including
// "none") are rejected, expired tokens and bad signatures map to tagged
// errors, and an issued-at claim beyond the configured clock-skew bound
// fails closed.
package token
