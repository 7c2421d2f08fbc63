// Package main runs a minimal HTTP server over authcore.
//
// It starts on :8080 backed by miniredis (no external Redis required)
// and an in-memory credential store, so the full flow set can be
// exercised with curl alone.
//
// Endpoints:
//
//	POST /register  — JSON {"email":"...", "username":"...", "password":"..."}
//	POST /login     — JSON {"identifier":"...", "password":"..."}
//	POST /refresh   — JSON {"refresh_token":"..."}
//	POST /logout    — requires Authorization: Bearer <access>
//	GET  /me        — requires Authorization: Bearer <access>
//	GET  /sessions  — requires Authorization: Bearer <access>
//
// Configuration is read from AUTHCORE_* environment variables; a .env
// file next to the binary is loaded first. Run:
//
//	AUTHCORE_ACCESS_SECRET=demo-access AUTHCORE_REFRESH_SECRET=demo-refresh \
//	  go run ./cmd/authcore-demo
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nineroads/authcore"
	"github.com/nineroads/authcore/audit"
)

func main() {
	_ = godotenv.Load()

	mr, err := miniredis.Run()
	if err != nil {
		log.Fatal(err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg, err := authcore.ConfigFromEnv()
	if err != nil {
		log.Fatal("config: ", err)
	}
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Metrics.Enabled = true

	coord, err := authcore.New(cfg, authcore.Deps{
		Redis:     rdb,
		Store:     newMemoryStore(),
		Notifier:  logNotifier{},
		AuditSink: audit.NewJSONWriterSink(os.Stdout),
	})
	if err != nil {
		log.Fatal("coordinator: ", err)
	}
	defer coord.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", registerHandler(coord))
	mux.HandleFunc("POST /login", loginHandler(coord))
	mux.HandleFunc("POST /refresh", refreshHandler(coord))
	mux.HandleFunc("POST /logout", logoutHandler(coord))
	mux.HandleFunc("GET /me", meHandler(coord))
	mux.HandleFunc("GET /sessions", sessionsHandler(coord))

	fmt.Println("listening on :8080")
	log.Fatal(http.ListenAndServe(":8080", mux))
}

func registerHandler(coord *authcore.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		res, err := coord.Register(r.Context(), authcore.RegisterInput{
			Email:    body.Email,
			Username: body.Username,
			Password: body.Password,
			Meta:     requestMeta(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeTokens(w, res)
	}
}

func loginHandler(coord *authcore.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Identifier string `json:"identifier"`
			Password   string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		res, err := coord.Login(r.Context(), authcore.LoginInput{
			Identifier: body.Identifier,
			Password:   body.Password,
			Meta:       requestMeta(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeTokens(w, res)
	}
}

func refreshHandler(coord *authcore.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		res, err := coord.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, err)
			return
		}
		writeTokens(w, res)
	}
}

func logoutHandler(coord *authcore.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		if err := coord.Logout(r.Context(), tok); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func meHandler(coord *authcore.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := coord.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"user_id": identity.UserID,
			"email":   identity.Email,
			"role":    identity.Role,
		})
	}
}

func sessionsHandler(coord *authcore.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := coord.ListSessions(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

func requestMeta(r *http.Request) authcore.Meta {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return authcore.Meta{UserAgent: r.UserAgent(), IPAddress: host}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const pfx = "Bearer "
	if strings.HasPrefix(h, pfx) {
		return h[len(pfx):]
	}
	return h
}

func writeTokens(w http.ResponseWriter, res *authcore.Result) {
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id":    res.SessionID,
		"access_token":  res.AccessToken,
		"refresh_token": res.RefreshToken,
	})
}

func writeError(w http.ResponseWriter, err error) {
	var (
		verr *authcore.ValidationError
		rle  *authcore.RateLimitedError
		le   *authcore.LockedError
	)
	switch {
	case errors.As(err, &verr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &rle), errors.As(err, &le):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, authcore.ErrDuplicateIdentifier):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, authcore.ErrUpstream):
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusUnauthorized)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// logNotifier prints outbound tokens instead of sending mail.
type logNotifier struct{}

func (logNotifier) SendVerificationEmail(_ context.Context, email, token string) error {
	log.Printf("verification token for %s: %s", email, token)
	return nil
}

func (logNotifier) SendPasswordResetEmail(_ context.Context, email, token string) error {
	log.Printf("reset token for %s: %s", email, token)
	return nil
}

// memoryStore is an in-memory CredentialStore for the demo.
type memoryStore struct {
	mu   sync.Mutex
	byID map[string]*authcore.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byID: map[string]*authcore.User{}}
}

func (s *memoryStore) FindByIdentifier(_ context.Context, identifier string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == identifier || u.Username == identifier {
			copied := *u
			return &copied, nil
		}
	}
	return nil, authcore.ErrUserNotFound
}

func (s *memoryStore) FindByID(_ context.Context, id string) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, authcore.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memoryStore) CreateUser(_ context.Context, user *authcore.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == user.Email || u.Username == user.Username {
			return authcore.ErrDuplicateIdentifier
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	copied := *user
	s.byID[user.ID] = &copied
	return nil
}

func (s *memoryStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return s.update(id, func(u *authcore.User) { u.PasswordHash = hash })
}

func (s *memoryStore) UpdateRole(_ context.Context, id, role string) error {
	return s.update(id, func(u *authcore.User) { u.Role = role })
}

func (s *memoryStore) MarkEmailVerified(_ context.Context, id string) error {
	return s.update(id, func(u *authcore.User) { u.IsEmailVerified = true })
}

func (s *memoryStore) BumpTokenVersion(_ context.Context, id string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return 0, authcore.ErrUserNotFound
	}
	u.TokenVersion++
	return u.TokenVersion, nil
}

func (s *memoryStore) update(id string, apply func(*authcore.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return authcore.ErrUserNotFound
	}
	apply(u)
	return nil
}
