// Package session holds the short-lived server-join handshake state.
// A session is created when a client joins a game server and is consumed
// by exactly one successful has-joined check, or evicted after the
// verification window elapses.
package session

import (
	"errors"
	"net"
	"sync"
	"time"
)

// Window is the time a pending join stays verifiable. The upstream
// provider uses the same 30 second window; game servers issue the
// has-joined check immediately after the client connects.
const Window = 30 * time.Second

var (
	// ErrNotFound is returned when no session exists for the server id.
	ErrNotFound = errors.New("no pending session for server id")
	// ErrExpired is returned when the session aged out of the window.
	ErrExpired = errors.New("session expired")
	// ErrNameMismatch is returned when the client-reported username does
	// not exactly equal the session's selected profile name.
	ErrNameMismatch = errors.New("session profile name mismatch")
	// ErrIPMismatch is returned when the verifying IP does not match the
	// IP recorded at join time.
	ErrIPMismatch = errors.New("session ip mismatch")
)

// Session is one pending join handshake. ServerID acts as a one-time
// nonce chosen by the game server.
type Session struct {
	ServerID    string
	AccessToken string
	ProfileID   string
	ProfileName string
	ClientIP    string
	IssuedAt    time.Time
}

// Store is the serverId-keyed session table. A later join with the same
// server id overwrites the earlier session.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	window   time.Duration
	now      func() time.Time
}

// NewStore creates a Store with the protocol's verification window.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		window:   Window,
		now:      time.Now,
	}
}

// NewStoreWithClock creates a Store with an injected clock, for tests.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	s.now = now
	return s
}

// Put stores the session under its server id, overwriting any pending
// session with the same id.
func (s *Store) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *sess
	if copied.IssuedAt.IsZero() {
		copied.IssuedAt = s.now()
	}
	s.sessions[copied.ServerID] = &copied
}

// Consume looks up, verifies, and on success deletes the session for the
// server id in a single critical section, so two simultaneous checks for
// the same server id cannot both succeed. Expired sessions are evicted
// even on failure. A name or IP mismatch leaves the session in place so
// the legitimate holder can still verify within the window.
//
// The username comparison is deliberately case-sensitive: the game
// server forwards the exact name the client reported, while account and
// profile lookups elsewhere are case-folded.
func (s *Store) Consume(serverID, username, ip string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[serverID]
	if !ok {
		return Session{}, ErrNotFound
	}

	if s.now().After(sess.IssuedAt.Add(s.window)) {
		delete(s.sessions, serverID)
		return Session{}, ErrExpired
	}

	if sess.ProfileName != username {
		return Session{}, ErrNameMismatch
	}

	if ip != "" && !ipsEqual(sess.ClientIP, ip) {
		return Session{}, ErrIPMismatch
	}

	delete(s.sessions, serverID)
	return *sess, nil
}

// Pending returns the number of unconsumed sessions.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// ipsEqual compares two textual addresses. When the versions differ, the
// IPv4 embedded in an IPv4-mapped IPv6 address is extracted before
// comparison; any other cross-version pair never matches.
func ipsEqual(a, b string) bool {
	if a == b {
		return true
	}

	ipA := net.ParseIP(a)
	ipB := net.ParseIP(b)
	if ipA == nil || ipB == nil {
		return false
	}

	v4A := ipA.To4()
	v4B := ipB.To4()
	if v4A != nil && v4B != nil {
		return v4A.Equal(v4B)
	}
	if v4A == nil && v4B == nil {
		return ipA.Equal(ipB)
	}

	// One side is IPv6 with no embedded IPv4: versions genuinely differ.
	return false
}
