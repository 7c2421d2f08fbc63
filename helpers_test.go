package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nineroads/authcore/password"
)

// memoryStore is an in-memory CredentialStore for tests.
type memoryStore struct {
	mu   sync.Mutex
	byID map[string]*User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byID: map[string]*User{}}
}

func (s *memoryStore) FindByIdentifier(_ context.Context, identifier string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == identifier || u.Username == identifier {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *memoryStore) FindByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memoryStore) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == user.Email || u.Username == user.Username {
			return ErrDuplicateIdentifier
		}
	}
	copied := *user
	s.byID[user.ID] = &copied
	return nil
}

func (s *memoryStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *memoryStore) UpdateRole(_ context.Context, id, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (s *memoryStore) MarkEmailVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsEmailVerified = true
	return nil
}

func (s *memoryStore) BumpTokenVersion(_ context.Context, id string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return 0, ErrUserNotFound
	}
	u.TokenVersion++
	return u.TokenVersion, nil
}

func (s *memoryStore) setActive(t *testing.T, id string, active bool) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		t.Fatalf("no such user: %s", id)
	}
	u.IsActive = active
}

// memoryNotifier records outbound tokens per address.
type memoryNotifier struct {
	mu           sync.Mutex
	verifyTokens map[string]string
	resetTokens  map[string]string
}

func newMemoryNotifier() *memoryNotifier {
	return &memoryNotifier{
		verifyTokens: map[string]string{},
		resetTokens:  map[string]string{},
	}
}

func (n *memoryNotifier) SendVerificationEmail(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifyTokens[email] = token
	return nil
}

func (n *memoryNotifier) SendPasswordResetEmail(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resetTokens[email] = token
	return nil
}

func (n *memoryNotifier) lastVerifyToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verifyTokens[email]
}

func (n *memoryNotifier) lastResetToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resetTokens[email]
}

type testEnv struct {
	coord    *Coordinator
	redis    *miniredis.Miniredis
	store    *memoryStore
	notifier *memoryNotifier
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := DefaultConfig()
	cfg.Token.AccessSecret = []byte("test-access-secret")
	cfg.Token.RefreshSecret = []byte("test-refresh-secret")
	cfg.Token.Issuer = "authcore-test"
	// keep hashing cheap under test
	cfg.Password.Params = password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1}
	cfg.Session.SweepInterval = -1
	cfg.Metrics.Enabled = true
	for _, m := range mutate {
		m(&cfg)
	}

	store := newMemoryStore()
	notifier := newMemoryNotifier()

	coord, err := New(cfg, Deps{
		Redis:    rdb,
		Store:    store,
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(coord.Close)

	return &testEnv{coord: coord, redis: mr, store: store, notifier: notifier}
}

// advance moves both the coordinator clock and miniredis TTLs forward.
func (e *testEnv) advance(d time.Duration) {
	base := e.coord.Now()
	e.coord.setClock(func() time.Time { return base.Add(d) })
	e.redis.FastForward(d)
}

func (e *testEnv) register(t *testing.T, email, username, pw string) *Result {
	t.Helper()
	res, err := e.coord.Register(context.Background(), RegisterInput{
		Email:    email,
		Username: username,
		Password: pw,
		Meta:     Meta{UserAgent: "test-agent", IPAddress: "198.51.100.7"},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return res
}

func (e *testEnv) login(t *testing.T, identifier, pw string) *Result {
	t.Helper()
	res, err := e.coord.Login(context.Background(), LoginInput{
		Identifier: identifier,
		Password:   pw,
		Meta:       Meta{UserAgent: "test-agent", IPAddress: "198.51.100.7"},
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return res
}
