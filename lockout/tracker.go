package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis transport failures. Callers on write paths
// are expected to fail closed when they see it.
var ErrUnavailable = errors.New("lockout backend unavailable")

const (
	defaultThreshold    = 5
	defaultLockDuration = 15 * time.Minute
)

// recordFailureScript increments the failure counter and, atomically in
// the same script, arms the lock key when the threshold is reached. The
// counter window doubles as the failure-counting window.
const recordFailureScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if count >= tonumber(ARGV[2]) then
  redis.call("SET", KEYS[2], "1", "PX", ARGV[3])
end
return count
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// Config holds the lockout policy parameters.
type Config struct {
	// Threshold is the number of consecutive failures that arms the
	// lock. Default 5.
	Threshold int
	// LockDuration is how long an identifier stays locked. Default 15m.
	LockDuration time.Duration
	// Window bounds how long failures accumulate before the counter
	// resets on its own. Defaults to LockDuration.
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = defaultThreshold
	}
	if c.LockDuration <= 0 {
		c.LockDuration = defaultLockDuration
	}
	if c.Window <= 0 {
		c.Window = c.LockDuration
	}
	return c
}

// Tracker is the Redis-backed failed-attempt counter.
type Tracker struct {
	rdb    redis.UniversalClient
	config Config
}

// NewTracker creates a Tracker with the given policy. Zero-valued
// fields select the documented defaults.
func NewTracker(rdb redis.UniversalClient, cfg Config) *Tracker {
	return &Tracker{rdb: rdb, config: cfg.withDefaults()}
}

// Threshold returns the effective failure threshold.
func (t *Tracker) Threshold() int {
	return t.config.Threshold
}

func (t *Tracker) failureKey(identifier string) string {
	return "alf:" + identifier
}

func (t *Tracker) lockKey(identifier string) string {
	return "all:" + identifier
}

// RecordFailure counts one failed attempt. It returns true when this
// failure armed (or re-armed) the lock.
func (t *Tracker) RecordFailure(ctx context.Context, identifier string) (bool, error) {
	if identifier == "" {
		return false, nil
	}

	count, err := recordFailureLua.Run(
		ctx,
		t.rdb,
		[]string{t.failureKey(identifier), t.lockKey(identifier)},
		t.config.Window.Milliseconds(),
		t.config.Threshold,
		t.config.LockDuration.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return count >= int64(t.config.Threshold), nil
}

// RecordSuccess clears the failure counter and any armed lock.
func (t *Tracker) RecordSuccess(ctx context.Context, identifier string) error {
	if identifier == "" {
		return nil
	}

	if err := t.rdb.Del(ctx, t.failureKey(identifier), t.lockKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsLocked reports whether the identifier is currently locked out and,
// when it is, how long until the lock clears. Expired locks vanish
// through their TTL; no explicit cleanup is needed here.
func (t *Tracker) IsLocked(ctx context.Context, identifier string) (bool, time.Duration, error) {
	if identifier == "" {
		return false, 0, nil
	}

	pttl, err := t.rdb.PTTL(ctx, t.lockKey(identifier)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if pttl > 0 {
		return true, pttl, nil
	}
	return false, 0, nil
}

// FailureCount returns the current counter value. Missing keys read as
// zero and do not reveal identifier existence.
func (t *Tracker) FailureCount(ctx context.Context, identifier string) (int, error) {
	count, err := t.rdb.Get(ctx, t.failureKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}
