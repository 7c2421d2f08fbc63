// Package session provides the Redis-backed registry of server-side
// session records.
//
// Each session binds a refresh token (stored as a SHA-256 hash, never
// plaintext) and the latest access token to a user and device metadata.
// Records live under a TTL equal to the session lifetime; a user index
// set supports enumeration and bulk revocation, and a refresh-hash key
// supports constant-time lookup during token refresh.
//
// Expired sessions are dropped lazily on read; a background sweeper
// prunes index entries whose records have already expired. Mutations of
// a single session are serialized with an optimistic WATCH/retry loop so
// concurrent refreshes cannot lose updates.
//
// This package does not interpret token contents or enforce
// authentication policy — that belongs to the coordinator.
package session
