package rate

import (
	"crypto/sha256"
	"sync"
	"time"
)

// Limiter is a keyed cooldown limiter shared by every rate-limited
// operation in the process. Keys are stored one-way hashed so the map
// never retains raw identifiers, invite codes, or addresses.
type Limiter struct {
	mu      sync.Mutex
	lastUse map[[32]byte]time.Time
	now     func() time.Time
}

// New creates an empty [Limiter].
func New() *Limiter {
	return &Limiter{
		lastUse: make(map[[32]byte]time.Time),
		now:     time.Now,
	}
}

// NewWithClock creates a [Limiter] with an injected clock, for tests.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		lastUse: make(map[[32]byte]time.Time),
		now:     now,
	}
}

// Test reports whether the key is permitted to act now. A permitted call
// records the current time for the key; a denied call leaves the map
// untouched. The check-and-record is a single critical section, so two
// near-simultaneous calls with the same key cannot both be permitted.
func (l *Limiter) Test(key string, window time.Duration) bool {
	hashed := sha256.Sum256([]byte(key))

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.lastUse[hashed]; ok && now.Before(last.Add(window)) {
		return false
	}
	l.lastUse[hashed] = now
	return true
}

// Arm records the current time for the key without testing it, so the
// next Test within the window is denied. Used to pre-arm a cooldown at
// the moment a throttled credential is created.
func (l *Limiter) Arm(key string) {
	hashed := sha256.Sum256([]byte(key))

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastUse[hashed] = l.now()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.lastUse)
}
