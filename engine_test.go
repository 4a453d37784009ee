package yggdrasil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/mcauthd/yggdrasil/identity"
	"github.com/mcauthd/yggdrasil/sign"
)

// testKey is generated once; per-test RSA generation dominates runtime
// otherwise.
var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testSigner(t *testing.T) *sign.Signer {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 1024)
		if err != nil {
			t.Fatalf("generate test key: %v", err)
		}
	})
	return sign.NewSigner(testKey)
}

// memRecords is an in-memory RecordStore; the engine tests exercise
// index semantics, not durability.
type memRecords struct {
	mu       sync.Mutex
	users    map[string]*identity.User
	profiles map[string]*identity.Profile
}

func newMemRecords() *memRecords {
	return &memRecords{
		users:    make(map[string]*identity.User),
		profiles: make(map[string]*identity.Profile),
	}
}

func (m *memRecords) LoadUsers() ([]*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*identity.User, 0, len(m.users))
	for _, u := range m.users {
		c := *u
		out = append(out, &c)
	}
	return out, nil
}

func (m *memRecords) LoadProfiles() ([]*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*identity.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

func (m *memRecords) UpsertUser(u *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *u
	m.users[u.ID] = &c
	return nil
}

func (m *memRecords) UpsertProfile(p *identity.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	m.profiles[p.ID] = &c
	return nil
}

func (m *memRecords) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *memRecords) DeleteProfile(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, id)
	return nil
}

// memTextures is an in-memory refcounted TextureStore.
type memTextures struct {
	mu    sync.Mutex
	blobs map[string][]byte
	refs  map[string]int
}

func newMemTextures() *memTextures {
	return &memTextures{
		blobs: make(map[string][]byte),
		refs:  make(map[string]int),
	}
}

func (m *memTextures) PutTexture(data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if _, ok := m.blobs[hash]; ok {
		m.refs[hash]++
		return hash, nil
	}
	m.blobs[hash] = append([]byte(nil), data...)
	m.refs[hash] = 1
	return hash, nil
}

func (m *memTextures) Texture(hash string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[hash]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return b, nil
}

func (m *memTextures) ReleaseTexture(hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hash == "" {
		return nil
	}
	m.refs[hash]--
	if m.refs[hash] <= 0 {
		delete(m.blobs, hash)
		delete(m.refs, hash)
	}
	return nil
}

func (m *memTextures) refcount(hash string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[hash]
}

// fakeClock is a settable time source shared by every store in a test
// engine.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	// Fast hashing; these tests measure behavior, not cost.
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.RateLimit.LoginWindow = 0
	cfg.Storage.FlushInterval = 0
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *fakeClock) {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	clock := newFakeClock()
	e, err := New().
		WithConfig(cfg).
		WithRecordStore(newMemRecords()).
		WithTextureStore(newMemTextures()).
		WithSigner(testSigner(t)).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e, clock
}

// register creates an account and returns it; the first registration on
// a fresh engine bootstraps the administrator.
func register(t *testing.T, e *Engine, username, password string) identity.User {
	t.Helper()
	user, err := e.Register(context.Background(), Registration{
		Username: username,
		Password: password,
		IP:       "192.0.2.10",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user
}

func authenticate(t *testing.T, e *Engine, username, password string) AuthResult {
	t.Helper()
	result, err := e.Authenticate(context.Background(), Credentials{
		Username: username,
		Password: password,
		IP:       "192.0.2.10",
	})
	if err != nil {
		t.Fatalf("authenticate %s: %v", username, err)
	}
	return result
}

func createProfile(t *testing.T, e *Engine, accessToken, name string) identity.Profile {
	t.Helper()
	p, err := e.CreateProfile(context.Background(), accessToken, name)
	if err != nil {
		t.Fatalf("create profile %s: %v", name, err)
	}
	return p
}
