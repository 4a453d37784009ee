package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Unix(1_700_000_000, 0)}
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func put(s *Store, serverID, name, ip string) {
	s.Put(&Session{
		ServerID:    serverID,
		AccessToken: "tok",
		ProfileID:   "pid",
		ProfileName: name,
		ClientIP:    ip,
	})
}

func TestConsumeHappyPath(t *testing.T) {
	c := newClock()
	s := NewStoreWithClock(c.now)
	put(s, "nonce", "Steve", "192.0.2.1")

	got, err := s.Consume("nonce", "Steve", "192.0.2.1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.ProfileID != "pid" {
		t.Fatalf("unexpected session: %+v", got)
	}

	// Consumed means gone.
	if _, err := s.Consume("nonce", "Steve", "192.0.2.1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume: got %v", err)
	}
}

func TestConsumeExpiredEvicts(t *testing.T) {
	c := newClock()
	s := NewStoreWithClock(c.now)
	put(s, "nonce", "Steve", "")

	c.advance(Window + time.Second)
	if _, err := s.Consume("nonce", "Steve", ""); !errors.Is(err, ErrExpired) {
		t.Fatalf("expired: got %v", err)
	}
	// Eviction happened even though the consume failed.
	if s.Pending() != 0 {
		t.Fatalf("expired session still pending: %d", s.Pending())
	}
}

func TestConsumeExactWindowBoundary(t *testing.T) {
	c := newClock()
	s := NewStoreWithClock(c.now)
	put(s, "nonce", "Steve", "")

	// Exactly at the window edge the session still verifies.
	c.advance(Window)
	if _, err := s.Consume("nonce", "Steve", ""); err != nil {
		t.Fatalf("at window edge: %v", err)
	}
}

func TestConsumeNameIsCaseSensitive(t *testing.T) {
	s := NewStore()
	put(s, "nonce", "Steve", "")

	if _, err := s.Consume("nonce", "steve", ""); !errors.Is(err, ErrNameMismatch) {
		t.Fatalf("wrong case: got %v", err)
	}
	// Mismatch leaves the session consumable.
	if _, err := s.Consume("nonce", "Steve", ""); err != nil {
		t.Fatalf("exact case after mismatch: %v", err)
	}
}

func TestConsumeIPRules(t *testing.T) {
	s := NewStore()

	cases := []struct {
		name    string
		joinIP  string
		checkIP string
		ok      bool
	}{
		{"exact v4", "192.0.2.1", "192.0.2.1", true},
		{"no check ip skips compare", "192.0.2.1", "", true},
		{"v4 mismatch", "192.0.2.1", "192.0.2.2", false},
		{"mapped v6 vs v4", "::ffff:192.0.2.1", "192.0.2.1", true},
		{"v4 vs mapped v6", "192.0.2.1", "::ffff:192.0.2.1", true},
		{"plain v6 vs v4", "2001:db8::1", "192.0.2.1", false},
		{"v6 exact", "2001:db8::1", "2001:db8::1", true},
		{"v6 textual variants", "2001:db8:0:0:0:0:0:1", "2001:db8::1", true},
	}
	for _, tc := range cases {
		put(s, "nonce", "Steve", tc.joinIP)
		_, err := s.Consume("nonce", "Steve", tc.checkIP)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrIPMismatch) {
			t.Errorf("%s: got %v, want ErrIPMismatch", tc.name, err)
		}
		// Reset for the next case regardless of outcome.
		s.Consume("nonce", "Steve", "")
	}
}

func TestPutOverwrites(t *testing.T) {
	s := NewStore()
	put(s, "nonce", "Steve", "192.0.2.1")
	put(s, "nonce", "Alex", "192.0.2.2")

	if _, err := s.Consume("nonce", "Steve", ""); !errors.Is(err, ErrNameMismatch) {
		t.Fatalf("overwritten session still verifies old name: %v", err)
	}
	if _, err := s.Consume("nonce", "Alex", "192.0.2.2"); err != nil {
		t.Fatalf("latest session: %v", err)
	}
}

func TestConsumeOnceUnderConcurrency(t *testing.T) {
	s := NewStore()
	put(s, "nonce", "Steve", "")

	const racers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume("nonce", "Steve", ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("consumed %d times, want exactly once", successes)
	}
}
