package onetime

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Purpose names the out-of-band flow a token proves control of.
type Purpose string

const (
	// PurposeEmailVerify tokens confirm ownership of an email address.
	PurposeEmailVerify Purpose = "email_verify"
	// PurposePasswordReset tokens authorize a credential reset.
	PurposePasswordReset Purpose = "password_reset"
)

var (
	// ErrNotFound is returned for unknown, superseded, or already
	// consumed tokens.
	ErrNotFound = errors.New("one-time token not found")
	// ErrExpired is returned when the token exists but its deadline has
	// passed.
	ErrExpired = errors.New("one-time token expired")
	// ErrUnavailable wraps Redis transport failures.
	ErrUnavailable = errors.New("one-time token backend unavailable")
)

const tokenBytes = 32 // 256 bits of entropy

// issueScript replaces the live token for a (subject, purpose) pair:
// any prior token record is deleted before the new one is written, so
// at most one unconsumed token exists per pair.
const issueScript = `
local prev = redis.call("GET", KEYS[1])
if prev then
  redis.call("DEL", ARGV[4] .. prev)
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SET", KEYS[2], ARGV[3], "PX", ARGV[2])
return 1
`

// consumeScript reads and deletes a token record in one atomic step.
// Of two concurrent consumers, exactly one receives the record.
const consumeScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return false
end
redis.call("DEL", KEYS[1])
return data
`

// releaseScript drops the subject pointer only while it still names the
// consumed token. An Issue landing mid-consume rewrites the pointer to
// its fresh token, and that pointer must survive the cleanup.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	issueLua   = redis.NewScript(issueScript)
	consumeLua = redis.NewScript(consumeScript)
	releaseLua = redis.NewScript(releaseScript)
)

type record struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Purpose   Purpose   `json:"purpose"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer mints and redeems one-time tokens against Redis.
type Issuer struct {
	rdb redis.UniversalClient

	// Now is the clock used for expiry decisions. Defaults to time.Now.
	Now func() time.Time
}

// NewIssuer creates an Issuer backed by the given Redis client.
func NewIssuer(rdb redis.UniversalClient) *Issuer {
	return &Issuer{rdb: rdb, Now: time.Now}
}

// Keys for one purpose share a {purpose} hash tag, so the token key the
// issue script derives from the subject pointer lives in the same
// cluster slot as its declared keys.
func tokenPrefix(purpose Purpose) string {
	return "aot:{" + string(purpose) + "}:"
}

func tokenKey(purpose Purpose, hash string) string {
	return tokenPrefix(purpose) + hash
}

func subjectKey(purpose Purpose, subjectID string) string {
	return "aos:{" + string(purpose) + "}:" + subjectID
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue mints a fresh token for the subject, invalidating any prior
// unconsumed token for the same (subject, purpose) pair. The plaintext
// token is returned once and never persisted.
func (i *Issuer) Issue(ctx context.Context, subjectID string, purpose Purpose, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", errors.New("onetime: subject id required")
	}
	if ttl <= 0 {
		return "", errors.New("onetime: ttl must be positive")
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	hash := hashToken(token)

	now := i.Now()
	blob, err := json.Marshal(record{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Purpose:   purpose,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return "", err
	}

	err = issueLua.Run(
		ctx,
		i.rdb,
		[]string{subjectKey(purpose, subjectID), tokenKey(purpose, hash)},
		hash,
		ttl.Milliseconds(),
		blob,
		tokenPrefix(purpose),
	).Err()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return token, nil
}

// Validate checks a token without consuming it and returns the subject
// it was issued to.
func (i *Issuer) Validate(ctx context.Context, token string, purpose Purpose) (string, error) {
	data, err := i.rdb.Get(ctx, tokenKey(purpose, hashToken(token))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return "", err
	}
	if !i.Now().Before(rec.ExpiresAt) {
		return "", ErrExpired
	}
	return rec.SubjectID, nil
}

// Consume atomically redeems a token and returns the subject it was
// issued to. A second consume of the same token — concurrent or not —
// fails with ErrNotFound.
func (i *Issuer) Consume(ctx context.Context, token string, purpose Purpose) (string, error) {
	hash := hashToken(token)

	result, err := consumeLua.Run(ctx, i.rdb, []string{tokenKey(purpose, hash)}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var data []byte
	switch v := result.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return "", fmt.Errorf("%w: invalid consume script response", ErrUnavailable)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return "", err
	}

	// The record is already gone; drop the subject pointer too unless a
	// newer token has replaced it. The check and delete run as one
	// script so a concurrent reissue cannot lose its pointer.
	if err := releaseLua.Run(ctx, i.rdb, []string{subjectKey(purpose, rec.SubjectID)}, hash).Err(); err != nil {
		log.Print("authcore: one-time subject index cleanup failed")
	}

	if !i.Now().Before(rec.ExpiresAt) {
		return "", ErrExpired
	}
	return rec.SubjectID, nil
}

func decodeRecord(data []byte) (*record, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt record", ErrNotFound)
	}
	return &rec, nil
}
