// Package notify publishes server lifecycle events to a configurable
// sink without blocking the request path. Events are advisory: a full
// buffer drops them rather than stalling authentication or session
// verification.
package notify

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the engine.
const (
	TypeUserRegistered   = "user.registered"
	TypeUserBanned       = "user.banned"
	TypeUserDeleted      = "user.deleted"
	TypePasswordReset    = "user.password_reset"
	TypeLoginSucceeded   = "auth.login"
	TypeLoginFailed      = "auth.login_failed"
	TypeTokenRefreshed   = "token.refreshed"
	TypeSignOut          = "auth.signout"
	TypeSessionJoined    = "session.joined"
	TypeSessionVerified  = "session.verified"
	TypeSessionUpstream  = "session.verified_upstream"
	TypeSessionRejected  = "session.rejected"
	TypeProfileCreated   = "profile.created"
	TypeProfileDeleted   = "profile.deleted"
	TypeTextureUploaded  = "profile.texture_uploaded"
	TypeTextureCleared   = "profile.texture_cleared"
)

// Event is one notification record.
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	Type        string            `json:"type"`
	UserID      string            `json:"user_id,omitempty"`
	ProfileID   string            `json:"profile_id,omitempty"`
	ProfileName string            `json:"profile_name,omitempty"`
	IP          string            `json:"ip,omitempty"`
	Detail      map[string]string `json:"detail,omitempty"`
}

// Sink receives published events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink delivers events into a buffered channel, mainly for
// tests and embedders that consume events in-process.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
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

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
