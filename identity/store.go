package identity

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUserExists is returned when a username is already taken.
	ErrUserExists = errors.New("username already taken")
	// ErrProfileExists is returned when a profile name is already taken.
	ErrProfileExists = errors.New("profile name already taken")
	// ErrUserNotFound is returned when no user matches the lookup key.
	ErrUserNotFound = errors.New("user not found")
	// ErrProfileNotFound is returned when no profile matches the lookup key.
	ErrProfileNotFound = errors.New("profile not found")
)

// RecordStore is the durable persistence collaborator. Load* run once at
// startup; Upsert* are driven by the store's background flusher and may
// lag mutations, Delete* are issued synchronously so a removed record can
// never be resurrected by a late flush.
type RecordStore interface {
	LoadUsers() ([]*User, error)
	LoadProfiles() ([]*Profile, error)
	UpsertUser(u *User) error
	UpsertProfile(p *Profile) error
	DeleteUser(id string) error
	DeleteProfile(id string) error
}

// Store owns the in-memory user and profile indices. All reads hand out
// copies; all mutations run inside the store's critical section and mark
// the record dirty for the debounced flush.
type Store struct {
	mu             sync.RWMutex
	usersByID      map[string]*User
	usersByName    map[string]*User // key: case-folded username
	profilesByID   map[string]*Profile
	profilesByName map[string]*Profile // key: case-folded profile name

	dirtyUsers    map[string]struct{}
	dirtyProfiles map[string]struct{}

	records RecordStore
	logger  *slog.Logger

	flushEvery time.Duration
	done       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewStore creates a Store over the given record collaborator and starts
// the background flusher. flushEvery <= 0 disables debouncing and flushes
// on Close only.
func NewStore(records RecordStore, flushEvery time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		usersByID:      make(map[string]*User),
		usersByName:    make(map[string]*User),
		profilesByID:   make(map[string]*Profile),
		profilesByName: make(map[string]*Profile),
		dirtyUsers:     make(map[string]struct{}),
		dirtyProfiles:  make(map[string]struct{}),
		records:        records,
		logger:         logger,
		flushEvery:     flushEvery,
		done:           make(chan struct{}),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	if flushEvery > 0 {
		s.wg.Add(1)
		go s.flushLoop()
	}

	return s, nil
}

func (s *Store) load() error {
	users, err := s.records.LoadUsers()
	if err != nil {
		return err
	}
	profiles, err := s.records.LoadProfiles()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range users {
		s.usersByID[u.ID] = u
		s.usersByName[foldName(u.Username)] = u
	}
	for _, p := range profiles {
		s.profilesByID[p.ID] = p
		s.profilesByName[foldName(p.Name)] = p
	}

	return nil
}

func foldName(name string) string {
	return strings.ToLower(name)
}

// UserCount returns the number of registered users.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.usersByID)
}

// UserByID returns a copy of the user with the given id.
func (s *Store) UserByID(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[id]
	if !ok {
		return User{}, false
	}
	return *cloneUser(u), true
}

// UserByName returns a copy of the user with the given username,
// compared case-insensitively.
func (s *Store) UserByName(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByName[foldName(username)]
	if !ok {
		return User{}, false
	}
	return *cloneUser(u), true
}

// UserByProfileName resolves a profile name (case-insensitively) to the
// owning user.
func (s *Store) UserByProfileName(name string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profilesByName[foldName(name)]
	if !ok || p.OwnerID == "" {
		return User{}, false
	}
	u, ok := s.usersByID[p.OwnerID]
	if !ok {
		return User{}, false
	}
	return *cloneUser(u), true
}

// UserByInviteCode finds the user whose personal invite code equals code.
func (s *Store) UserByInviteCode(code string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.usersByID {
		if u.PersonalInviteCode != "" && u.PersonalInviteCode == code {
			return *cloneUser(u), true
		}
	}
	return User{}, false
}

// ProfileByID returns a copy of the profile with the given id.
func (s *Store) ProfileByID(id string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profilesByID[id]
	if !ok {
		return Profile{}, false
	}
	return *cloneProfile(p), true
}

// ProfileByName returns a copy of the profile with the given name,
// compared case-insensitively.
func (s *Store) ProfileByName(name string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profilesByName[foldName(name)]
	if !ok {
		return Profile{}, false
	}
	return *cloneProfile(p), true
}

// ProfilesOf returns copies of every profile owned by the user, in
// ownership order.
func (s *Store) ProfilesOf(userID string) []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[userID]
	if !ok {
		return nil
	}

	out := make([]Profile, 0, len(u.ProfileIDs))
	for _, pid := range u.ProfileIDs {
		if p, ok := s.profilesByID[pid]; ok {
			out = append(out, *cloneProfile(p))
		}
	}
	return out
}

// AddUser inserts a new user. Fails with [ErrUserExists] when the
// username is already taken (case-insensitively).
func (s *Store) AddUser(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := foldName(u.Username)
	if _, taken := s.usersByName[key]; taken {
		return ErrUserExists
	}

	stored := cloneUser(&u)
	s.usersByID[stored.ID] = stored
	s.usersByName[key] = stored
	s.dirtyUsers[stored.ID] = struct{}{}
	return nil
}

// UpdateUser mutates the user with the given id inside the store's
// critical section and marks it dirty. The callback must not block.
func (s *Store) UpdateUser(id string, mutate func(*User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByID[id]
	if !ok {
		return ErrUserNotFound
	}
	if err := mutate(u); err != nil {
		return err
	}
	s.dirtyUsers[id] = struct{}{}
	return nil
}

// AddProfile inserts a new profile and appends it to the owner's ordered
// set. Fails with [ErrProfileExists] when the name is taken and
// [ErrUserNotFound] when the owner does not exist.
func (s *Store) AddProfile(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := foldName(p.Name)
	if _, taken := s.profilesByName[key]; taken {
		return ErrProfileExists
	}

	var owner *User
	if p.OwnerID != "" {
		var ok bool
		owner, ok = s.usersByID[p.OwnerID]
		if !ok {
			return ErrUserNotFound
		}
	}

	stored := cloneProfile(&p)
	s.profilesByID[stored.ID] = stored
	s.profilesByName[key] = stored
	s.dirtyProfiles[stored.ID] = struct{}{}

	if owner != nil {
		owner.ProfileIDs = append(owner.ProfileIDs, stored.ID)
		s.dirtyUsers[owner.ID] = struct{}{}
	}
	return nil
}

// UpdateProfile mutates the profile with the given id inside the store's
// critical section and marks it dirty. The profile name is immutable
// through this path; renames would desync the name index.
func (s *Store) UpdateProfile(id string, mutate func(*Profile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profilesByID[id]
	if !ok {
		return ErrProfileNotFound
	}
	name := p.Name
	if err := mutate(p); err != nil {
		return err
	}
	p.Name = name
	s.dirtyProfiles[id] = struct{}{}
	return nil
}

// DeleteProfile removes the profile from the indices, detaches it from
// its owner, and deletes the durable record synchronously. It returns a
// copy of the removed profile so the caller can release texture blobs.
func (s *Store) DeleteProfile(id string) (Profile, error) {
	s.mu.Lock()
	p, ok := s.profilesByID[id]
	if !ok {
		s.mu.Unlock()
		return Profile{}, ErrProfileNotFound
	}

	removed := *cloneProfile(p)
	delete(s.profilesByID, id)
	delete(s.profilesByName, foldName(p.Name))
	delete(s.dirtyProfiles, id)

	if owner, ok := s.usersByID[p.OwnerID]; ok {
		owner.ProfileIDs = removeID(owner.ProfileIDs, id)
		s.dirtyUsers[owner.ID] = struct{}{}
	}
	s.mu.Unlock()

	if err := s.records.DeleteProfile(id); err != nil {
		return removed, err
	}
	return removed, nil
}

// DeleteUser removes the user record and indices. Owned profiles must be
// deleted first; the caller drives the cascade.
func (s *Store) DeleteUser(id string) (User, error) {
	s.mu.Lock()
	u, ok := s.usersByID[id]
	if !ok {
		s.mu.Unlock()
		return User{}, ErrUserNotFound
	}

	removed := *cloneUser(u)
	delete(s.usersByID, id)
	delete(s.usersByName, foldName(u.Username))
	delete(s.dirtyUsers, id)
	s.mu.Unlock()

	if err := s.records.DeleteUser(id); err != nil {
		return removed, err
	}
	return removed, nil
}

// Flush writes every dirty record to the durable collaborator. Record
// I/O runs outside the store lock.
func (s *Store) Flush() {
	s.mu.Lock()
	users := make([]*User, 0, len(s.dirtyUsers))
	for id := range s.dirtyUsers {
		if u, ok := s.usersByID[id]; ok {
			users = append(users, cloneUser(u))
		}
	}
	profiles := make([]*Profile, 0, len(s.dirtyProfiles))
	for id := range s.dirtyProfiles {
		if p, ok := s.profilesByID[id]; ok {
			profiles = append(profiles, cloneProfile(p))
		}
	}
	s.dirtyUsers = make(map[string]struct{})
	s.dirtyProfiles = make(map[string]struct{})
	s.mu.Unlock()

	for _, u := range users {
		if err := s.records.UpsertUser(u); err != nil {
			s.logger.Warn("identity: user flush failed", "user", u.ID, "err", err)
			s.requeueUser(u.ID)
		}
	}
	for _, p := range profiles {
		if err := s.records.UpsertProfile(p); err != nil {
			s.logger.Warn("identity: profile flush failed", "profile", p.ID, "err", err)
			s.requeueProfile(p.ID)
		}
	}
}

func (s *Store) requeueUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByID[id]; ok {
		s.dirtyUsers[id] = struct{}{}
	}
}

func (s *Store) requeueProfile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profilesByID[id]; ok {
		s.dirtyProfiles[id] = struct{}{}
	}
}

func (s *Store) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-s.done:
			return
		}
	}
}

// Close stops the flusher and writes any remaining dirty records.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.Flush()
	})
}

func cloneUser(u *User) *User {
	c := *u
	c.ProfileIDs = append([]string(nil), u.ProfileIDs...)
	c.RescueCodeHash = append([]byte(nil), u.RescueCodeHash...)
	return &c
}

func cloneProfile(p *Profile) *Profile {
	c := *p
	if p.Skin != nil {
		skin := *p.Skin
		c.Skin = &skin
	}
	if p.Cape != nil {
		cape := *p.Cape
		c.Cape = &cape
	}
	return &c
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
