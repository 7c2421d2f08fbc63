package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the authentication flows.
const (
	TypeRegister              = "register"
	TypeLogin                 = "login"
	TypeRefresh               = "refresh"
	TypeLogout                = "logout"
	TypeLogoutAll             = "logout_all"
	TypeSessionRevoked        = "session_revoked"
	TypeAccountLocked         = "account_locked"
	TypeRateLimited           = "rate_limited"
	TypePasswordChange        = "password_change"
	TypePasswordResetRequest  = "password_reset_request"
	TypePasswordResetConfirm  = "password_reset_confirm"
	TypeEmailVerifyRequest    = "email_verify_request"
	TypeEmailVerified         = "email_verified"
	TypeRoleChange            = "role_change"
)

// Event records one security-relevant action.
type Event struct {
	Time      time.Time         `json:"time"`
	Type      string            `json:"type"`
	Success   bool              `json:"success"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Err       string            `json:"error,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Sink receives dispatched events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink forwards events into a buffered channel, mainly for
// tests and in-process consumers.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.w == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(data)
	_, _ = s.w.Write([]byte("\n"))
}
