// Package rate provides a Redis-backed fixed-window request limiter
// keyed by (scope, identifier).
//
// # Window semantics
//
// Counters use INCR with a TTL armed on the window's first hit. Memory
// stays bounded because stale keys evict through their TTL. The known
// tradeoff of fixed windows applies: a client can burst up to ~2× the
// limit across a window boundary.
package rate
