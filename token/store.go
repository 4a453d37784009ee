package token

import (
	"sync"
	"time"
)

// Store is the volatile token table plus a per-owner index used for
// whole-account revocation. Expiry is lazy: a status check on a token
// past its validity period evicts it as a side effect.
type Store struct {
	mu      sync.Mutex
	byToken map[string]*Token
	byOwner map[string]map[string]struct{} // owner id -> access tokens
	period  time.Duration
	now     func() time.Time
}

// NewStore creates a Store with the configured validity period.
func NewStore(period time.Duration) *Store {
	return &Store{
		byToken: make(map[string]*Token),
		byOwner: make(map[string]map[string]struct{}),
		period:  period,
		now:     time.Now,
	}
}

// NewStoreWithClock creates a Store with an injected clock, for tests.
func NewStoreWithClock(period time.Duration, now func() time.Time) *Store {
	s := NewStore(period)
	s.now = now
	return s
}

// Period returns the configured validity period.
func (s *Store) Period() time.Duration {
	return s.period
}

// Put stores a freshly issued token.
func (s *Store) Put(t *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putLocked(t)
}

func (s *Store) putLocked(t *Token) {
	copied := *t
	if copied.IssuedAt.IsZero() {
		copied.IssuedAt = s.now()
	}
	s.byToken[copied.AccessToken] = &copied

	owned, ok := s.byOwner[copied.OwnerID]
	if !ok {
		owned = make(map[string]struct{})
		s.byOwner[copied.OwnerID] = owned
	}
	owned[copied.AccessToken] = struct{}{}
}

// Rotate replaces oldAccessToken with fresh in a single critical
// section. It fails without inserting anything when the old token is
// absent or past its validity period, so two concurrent rotations of
// one token cannot both mint a replacement.
func (s *Store) Rotate(oldAccessToken string, fresh *Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byToken[oldAccessToken]
	if !ok {
		return false
	}
	if statusAt(old, s.now(), s.period) == StatusInvalid {
		s.removeLocked(old)
		return false
	}

	s.removeLocked(old)
	s.putLocked(fresh)
	return true
}

// Get returns the token and its current status. A token past its
// validity period is evicted inside the same critical section and
// reported invalid.
func (s *Store) Get(accessToken string) (Token, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byToken[accessToken]
	if !ok {
		return Token{}, StatusInvalid
	}

	status := statusAt(t, s.now(), s.period)
	if status == StatusInvalid {
		s.removeLocked(t)
		return Token{}, StatusInvalid
	}
	return *t, status
}

// BindProfile sets the profile binding on a stored, unbound token.
// Returns false when the token is absent or already bound.
func (s *Store) BindProfile(accessToken, profileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byToken[accessToken]
	if !ok || t.ProfileID != "" {
		return false
	}
	t.ProfileID = profileID
	return true
}

// Delete removes the token from the table and the owner index.
// Idempotent: returns false when the token was already absent.
func (s *Store) Delete(accessToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byToken[accessToken]
	if !ok {
		return false
	}
	s.removeLocked(t)
	return true
}

// DeleteAllForOwner revokes every token in the owner's active set and
// returns how many were removed.
func (s *Store) DeleteAllForOwner(ownerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned, ok := s.byOwner[ownerID]
	if !ok {
		return 0
	}

	count := 0
	for accessToken := range owned {
		if t, ok := s.byToken[accessToken]; ok {
			delete(s.byToken, t.AccessToken)
			count++
		}
	}
	delete(s.byOwner, ownerID)
	return count
}

// UnbindProfileTokens revokes every token bound to the given profile.
// Called when a profile is deleted; a binding is immutable, so the
// tokens cannot be detached and must die with the profile.
func (s *Store) UnbindProfileTokens(profileID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, t := range s.byToken {
		if t.ProfileID == profileID {
			s.removeLocked(t)
			count++
		}
	}
	return count
}

// ActiveCount returns the number of live (non-evicted) tokens for the
// owner, applying lazy expiry along the way.
func (s *Store) ActiveCount(ownerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned, ok := s.byOwner[ownerID]
	if !ok {
		return 0
	}

	now := s.now()
	count := 0
	for accessToken := range owned {
		t, ok := s.byToken[accessToken]
		if !ok {
			delete(owned, accessToken)
			continue
		}
		if statusAt(t, now, s.period) == StatusInvalid {
			s.removeLocked(t)
			continue
		}
		count++
	}
	return count
}

func (s *Store) removeLocked(t *Token) {
	delete(s.byToken, t.AccessToken)
	if owned, ok := s.byOwner[t.OwnerID]; ok {
		delete(owned, t.AccessToken)
		if len(owned) == 0 {
			delete(s.byOwner, t.OwnerID)
		}
	}
}
