// Package metrics keeps lock-free operation counters for the
// authentication flows. Counters are plain atomics padded to cache
// lines, cheap enough to leave enabled on hot paths.
package metrics

import "sync/atomic"

// ID names one counter.
type ID uint16

const (
	LoginSuccess ID = iota
	LoginFailure
	LoginRateLimited
	LoginLocked
	RefreshSuccess
	RefreshFailure
	RegisterSuccess
	RegisterDuplicate
	RegisterRateLimited
	SessionCreated
	SessionRevoked
	Logout
	LogoutAll
	PasswordChangeSuccess
	PasswordChangeFailure
	PasswordResetRequest
	PasswordResetSuccess
	PasswordResetFailure
	EmailVerifyRequest
	EmailVerifySuccess
	EmailVerifyFailure
	RoleChange
	UpstreamError
	idCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Registry holds the counters. The zero value is disabled; a nil
// *Registry is also safe to use.
type Registry struct {
	enabled  bool
	counters [idCount]paddedCounter
}

// NewRegistry creates a Registry. A disabled registry accepts Inc
// calls and ignores them.
func NewRegistry(enabled bool) *Registry {
	return &Registry{enabled: enabled}
}

func (r *Registry) Enabled() bool {
	return r != nil && r.enabled
}

func (r *Registry) Inc(id ID) {
	if r == nil || !r.enabled || id >= idCount {
		return
	}
	atomic.AddUint64(&r.counters[id].value, 1)
}

func (r *Registry) Value(id ID) uint64 {
	if r == nil || id >= idCount {
		return 0
	}
	return atomic.LoadUint64(&r.counters[id].value)
}

// Snapshot copies all counters at one point in time.
func (r *Registry) Snapshot() map[ID]uint64 {
	s := make(map[ID]uint64, int(idCount))
	if r == nil || !r.enabled {
		return s
	}
	for id := ID(0); id < idCount; id++ {
		s[id] = atomic.LoadUint64(&r.counters[id].value)
	}
	return s
}
