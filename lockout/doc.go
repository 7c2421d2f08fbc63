// Package lockout tracks failed authentication attempts per identifier
// and enforces a temporary lockout once a threshold is reached.
//
// Counting and the threshold comparison run inside a single Lua script,
// so concurrent failed attempts cannot race past the limit. The lock
// itself is a Redis key whose TTL is the lockout window; expiry clears
// the state without any foreground work.
package lockout
