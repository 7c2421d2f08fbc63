package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no live session matches the lookup.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable wraps Redis transport failures.
	ErrUnavailable = errors.New("session store unavailable")
	// ErrConflict is returned when an optimistic update loses its retry
	// budget to concurrent writers.
	ErrConflict = errors.New("session update conflict")
)

const (
	defaultTTL    = 7 * 24 * time.Hour
	defaultPrefix = "asn"

	// touchRetries bounds the WATCH loop for per-session mutations.
	touchRetries = 4
)

const revokeScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("DEL", KEYS[1])
redis.call("DEL", KEYS[2])
redis.call("SREM", KEYS[3], ARGV[1])
return existed
`

var revokeLua = redis.NewScript(revokeScript)

// Registry persists session records in Redis. Each record is stored as
// a JSON blob under a TTL; a per-user set and a refresh-hash key act as
// secondary indexes.
type Registry struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration

	// Now is the clock used for expiry decisions. Defaults to time.Now.
	Now func() time.Time
}

// NewRegistry creates a Registry with the given key prefix and session
// lifetime. Zero values select the defaults ("asn", 7 days).
func NewRegistry(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Registry {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Registry{rdb: rdb, prefix: prefix, ttl: ttl, Now: time.Now}
}

// TTL returns the fixed session lifetime applied at creation.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

func (r *Registry) sessionKey(id string) string {
	return r.prefix + ":s:" + id
}

func (r *Registry) userKey(userID string) string {
	return r.prefix + ":u:" + userID
}

func (r *Registry) refreshKey(hash string) string {
	return r.prefix + ":r:" + hash
}

// Create persists a new session for userID under a generated id. The
// record expires at now + TTL; the refresh token is indexed by hash
// only.
func (r *Registry) Create(ctx context.Context, userID, accessToken, refreshToken string, meta Meta) (*Session, error) {
	return r.CreateWithID(ctx, uuid.NewString(), userID, accessToken, refreshToken, meta)
}

// CreateWithID persists a new session under a caller-chosen id, for
// callers that must embed the id in the tokens before the record
// exists.
func (r *Registry) CreateWithID(ctx context.Context, id, userID, accessToken, refreshToken string, meta Meta) (*Session, error) {
	now := r.Now()
	sess := &Session{
		ID:             id,
		UserID:         userID,
		AccessToken:    accessToken,
		RefreshHash:    HashRefreshToken(refreshToken),
		UserAgent:      meta.UserAgent,
		IPAddress:      meta.IPAddress,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(r.ttl),
	}

	blob, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(sess.ID), blob, r.ttl)
		pipe.Set(ctx, r.refreshKey(sess.RefreshHash), sess.ID, r.ttl)
		pipe.SAdd(ctx, r.userKey(userID), sess.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return sess, nil
}

// Get returns a live session by id. Expired records are revoked on
// read and reported as ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Active(r.Now()) {
		if err := r.revoke(ctx, sess); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return sess, nil
}

// FindByRefreshToken resolves a session from a presented refresh token.
// A dangling index entry (session already gone) is cleaned up and
// reported as ErrNotFound.
func (r *Registry) FindByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	hash := HashRefreshToken(refreshToken)
	id, err := r.rdb.Get(ctx, r.refreshKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := r.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		if delErr := r.rdb.Del(ctx, r.refreshKey(hash)).Err(); delErr != nil {
			log.Print("authcore: stale refresh index cleanup failed")
		}
		return nil, ErrNotFound
	}
	return sess, err
}

// Touch records activity on a session after a successful refresh: the
// stored access token is replaced and LastActivityAt advances. The
// update runs under WATCH so concurrent refreshes of one session
// serialize instead of losing writes.
func (r *Registry) Touch(ctx context.Context, id, newAccessToken string) (*Session, error) {
	return r.mutate(ctx, id, func(sess *Session) {
		sess.AccessToken = newAccessToken
		sess.LastActivityAt = r.Now()
	})
}

// Rebind replaces both tokens bound to a session, swapping the refresh
// index to the new hash. Used when a kept session must survive a
// credential change that invalidates its old refresh token.
func (r *Registry) Rebind(ctx context.Context, id, newAccessToken, newRefreshToken string) (*Session, error) {
	var oldHash string
	newHash := HashRefreshToken(newRefreshToken)

	sess, err := r.mutate(ctx, id, func(sess *Session) {
		oldHash = sess.RefreshHash
		sess.AccessToken = newAccessToken
		sess.RefreshHash = newHash
		sess.LastActivityAt = r.Now()
	})
	if err != nil {
		return nil, err
	}

	remaining := sess.ExpiresAt.Sub(r.Now())
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if oldHash != "" && oldHash != newHash {
			pipe.Del(ctx, r.refreshKey(oldHash))
		}
		pipe.Set(ctx, r.refreshKey(newHash), sess.ID, remaining)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return sess, nil
}

func (r *Registry) mutate(ctx context.Context, id string, apply func(*Session)) (*Session, error) {
	key := r.sessionKey(id)

	for i := 0; i < touchRetries; i++ {
		var updated *Session

		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var sess Session
			if err := json.Unmarshal(data, &sess); err != nil {
				return err
			}

			now := r.Now()
			if !sess.Active(now) {
				return ErrNotFound
			}

			apply(&sess)

			blob, err := json.Marshal(&sess)
			if err != nil {
				return err
			}

			remaining := sess.ExpiresAt.Sub(now)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, blob, remaining)
				return nil
			})
			if err != nil {
				return err
			}

			updated = &sess
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, ErrNotFound):
				return nil, ErrNotFound
			default:
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}

		return updated, nil
	}

	return nil, ErrConflict
}

// ListActive returns the user's live sessions. Index entries whose
// records have expired are pruned as a side effect.
func (r *Registry) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	userKey := r.userKey(userID)

	ids, err := r.rdb.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := r.Now()
	sessions := make([]*Session, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, cmdErr)
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		if !sess.Active(now) {
			stale = append(stale, ids[i])
			continue
		}
		sessions = append(sessions, &sess)
	}

	if len(stale) > 0 {
		if err := r.rdb.SRem(ctx, userKey, stale...).Err(); err != nil {
			log.Print("authcore: session index pruning failed")
		}
	}

	return sessions, nil
}

// Revoke deletes a single session and its index entries. Revoking an
// already-absent session is a no-op.
func (r *Registry) Revoke(ctx context.Context, id string) error {
	sess, err := r.load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return r.revoke(ctx, sess)
}

// RevokeAll deletes every session owned by userID.
func (r *Registry) RevokeAll(ctx context.Context, userID string) error {
	return r.revokeAll(ctx, userID, "")
}

// RevokeAllExcept deletes every session owned by userID except keepID.
func (r *Registry) RevokeAllExcept(ctx context.Context, userID, keepID string) error {
	return r.revokeAll(ctx, userID, keepID)
}

func (r *Registry) revokeAll(ctx context.Context, userID, keepID string) error {
	userKey := r.userKey(userID)

	ids, err := r.rdb.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, id := range ids {
		if id == keepID {
			continue
		}
		sess, err := r.load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				if remErr := r.rdb.SRem(ctx, userKey, id).Err(); remErr != nil {
					log.Print("authcore: session index pruning failed")
				}
				continue
			}
			return err
		}
		if err := r.revoke(ctx, sess); err != nil {
			return err
		}
	}

	if keepID == "" {
		if err := r.rdb.Del(ctx, userKey).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return nil
}

// Sweep prunes user-index entries whose session records have expired.
// Record and refresh-index keys expire through their own TTLs; only the
// index sets need periodic attention. Returns the number of entries
// removed.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	pattern := r.prefix + ":u:*"
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		for _, userKey := range keys {
			ids, err := r.rdb.SMembers(ctx, userKey).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			for _, id := range ids {
				exists, err := r.rdb.Exists(ctx, r.sessionKey(id)).Result()
				if err != nil {
					return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
				}
				if exists == 0 {
					if err := r.rdb.SRem(ctx, userKey, id).Err(); err != nil {
						return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
					}
					removed++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
// It runs on its own goroutine and never blocks foreground requests.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Sweep(ctx); err != nil {
					log.Print("authcore: session sweep failed")
				}
			}
		}
	}()
}

func (r *Registry) load(ctx context.Context, id string) (*Session, error) {
	data, err := r.rdb.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (r *Registry) revoke(ctx context.Context, sess *Session) error {
	err := revokeLua.Run(
		ctx,
		r.rdb,
		[]string{
			r.sessionKey(sess.ID),
			r.refreshKey(sess.RefreshHash),
			r.userKey(sess.UserID),
		},
		sess.ID,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
