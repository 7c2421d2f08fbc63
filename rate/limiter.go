package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis transport failures. Callers guarding
// sensitive writes are expected to fail closed.
var ErrUnavailable = errors.New("rate limiter backend unavailable")

// allowScript counts the request and reports the window's remaining
// lifetime in one atomic step, so concurrent requests cannot slip past
// the limit between a read and a write.
const allowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`

var allowLua = redis.NewScript(allowScript)

// Limiter enforces fixed-window limits on sensitive operations.
type Limiter struct {
	rdb redis.UniversalClient
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(rdb redis.UniversalClient) *Limiter {
	return &Limiter{rdb: rdb}
}

func key(scope, identifier string) string {
	return "arl:" + scope + ":" + identifier
}

// Allow records one request for (scope, identifier) and reports whether
// it fits within max requests per window. When the limit is exceeded it
// also returns how long until the window rolls over.
func (l *Limiter) Allow(ctx context.Context, scope, identifier string, window time.Duration, max int) (bool, time.Duration, error) {
	if max <= 0 || window <= 0 {
		return true, 0, nil
	}

	result, err := allowLua.Run(ctx, l.rdb, []string{key(scope, identifier)}, window.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return false, 0, fmt.Errorf("%w: invalid limiter script response", ErrUnavailable)
	}
	count, ok1 := parts[0].(int64)
	pttl, ok2 := parts[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, fmt.Errorf("%w: invalid limiter script response", ErrUnavailable)
	}

	if count > int64(max) {
		retryAfter := time.Duration(pttl) * time.Millisecond
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}

	return true, 0, nil
}

// Reset clears the window for (scope, identifier).
func (l *Limiter) Reset(ctx context.Context, scope, identifier string) error {
	if err := l.rdb.Del(ctx, key(scope, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
