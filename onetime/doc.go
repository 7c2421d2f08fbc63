// Package onetime issues and redeems single-use, time-bounded opaque
// tokens for email verification and password reset.
//
// Token values are 256-bit crypto/rand strings handed to the user
// out-of-band; only their SHA-256 hash is stored. Issuing a new token
// for a (subject, purpose) pair invalidates any prior unconsumed token,
// and consumption is a single atomic script so exactly one of two
// concurrent redeemers wins.
package onetime
