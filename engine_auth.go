package yggdrasil

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/mail"
	"strings"

	"github.com/mcauthd/yggdrasil/identity"
	"github.com/mcauthd/yggdrasil/internal/notify"
)

// Credentials is an authentication request. ClientToken is optional; a
// missing one is generated server side.
type Credentials struct {
	Username    string
	Password    string
	ClientToken string
	IP          string
}

// AuthResult is a successful authentication: a fresh token pair plus
// the account's profiles.
type AuthResult struct {
	AccessToken       string
	ClientToken       string
	SelectedProfile   *identity.Profile
	AvailableProfiles []identity.Profile
	User              identity.User
}

// Registration is an account creation request.
type Registration struct {
	Username   string
	Password   string
	Nickname   string
	InviteCode string
	IP         string
}

// Authenticate verifies the credentials and issues a fresh token pair.
// Unknown accounts and wrong passwords are indistinguishable to the
// caller; only a ban surfaces as its own error, and only after the
// password checked out.
func (e *Engine) Authenticate(ctx context.Context, creds Credentials) (AuthResult, error) {
	if creds.Username == "" || creds.Password == "" {
		return AuthResult{}, ErrMissingField
	}

	if w := e.cfg.RateLimit.LoginWindow; w > 0 {
		if !e.throttle.Test("login:"+strings.ToLower(creds.Username), w) {
			return AuthResult{}, ErrFrequentLogin
		}
	}

	user, ok := e.resolveAccount(creds.Username)
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	match, err := e.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil {
		e.log.Error("auth: verify failed", "user", user.ID, "err", err)
		return AuthResult{}, ErrInvalidCredentials
	}
	if !match {
		e.emit(ctx, notify.Event{Type: notify.TypeLoginFailed, UserID: user.ID, IP: creds.IP})
		return AuthResult{}, ErrInvalidCredentials
	}

	if user.Banned(e.nowMS()) {
		return AuthResult{}, ErrAccountBanned
	}

	e.maybeUpgradeHash(user.ID, creds.Password, user.PasswordHash)

	// Past the cap, the account's older tokens are revoked wholesale.
	// Clients that re-authenticate in a loop end up with one live pair
	// instead of an unbounded backlog.
	if limit := e.cfg.Token.ActiveLimit; limit > 0 && e.tokens.ActiveCount(user.ID) >= limit {
		e.tokens.DeleteAllForOwner(user.ID)
	}

	result, err := e.issueToken(user, creds.ClientToken)
	if err != nil {
		return AuthResult{}, err
	}

	e.emit(ctx, notify.Event{Type: notify.TypeLoginSucceeded, UserID: user.ID, IP: creds.IP})
	return result, nil
}

// resolveAccount maps a login name to an account: by username first,
// then, when nickname logins are enabled, by profile name. Both lookups
// are case-insensitive.
func (e *Engine) resolveAccount(login string) (identity.User, bool) {
	if user, ok := e.users.UserByName(login); ok {
		return user, true
	}
	if e.cfg.Registration.AllowNicknameLogin {
		return e.users.UserByProfileName(login)
	}
	return identity.User{}, false
}

// maybeUpgradeHash rehashes the password in the background of a
// successful login when the stored hash predates a cost increase. The
// personal invite code is frozen at registration and survives the
// rehash.
func (e *Engine) maybeUpgradeHash(userID, clearPassword, storedHash string) {
	needs, err := e.hasher.NeedsUpgrade(storedHash)
	if err != nil || !needs {
		return
	}
	fresh, err := e.hasher.Hash(clearPassword)
	if err != nil {
		return
	}
	_ = e.users.UpdateUser(userID, func(u *identity.User) error {
		u.PasswordHash = fresh
		return nil
	})
}

// Register creates a new account. The very first account on a fresh
// instance skips the invite gate and becomes the administrator.
func (e *Engine) Register(ctx context.Context, reg Registration) (identity.User, error) {
	if !e.cfg.Registration.Enabled {
		return identity.User{}, ErrRegistrationClosed
	}
	if reg.Username == "" || reg.Password == "" {
		return identity.User{}, ErrMissingField
	}
	if len(reg.Username) > maxUsernameLength || !validEmail(reg.Username) {
		return identity.User{}, ErrInvalidUsername
	}
	if len(reg.Password) < e.cfg.Registration.MinPasswordLength {
		return identity.User{}, ErrWeakPassword
	}
	if bound := e.cfg.Registration.MaxNicknameLength; bound > 0 && len(reg.Nickname) > bound {
		return identity.User{}, ErrInvalidNickname
	}

	hash, err := e.hasher.Hash(reg.Password)
	if err != nil {
		return identity.User{}, err
	}

	user := identity.User{
		ID:               newHexID(),
		Username:         reg.Username,
		Nickname:         reg.Nickname,
		PasswordHash:     hash,
		Role:             identity.RoleUser,
		RegistrationTime: e.nowMS(),
		RegistrationIP:   reg.IP,
	}
	if e.cfg.Registration.PersonalInvites {
		user.PersonalInviteCode = derivePersonalInvite(user.ID, user.RegistrationIP, user.PasswordHash)
	}

	// Count check, invite gate, and insertion are one critical section:
	// exactly one registration can ever see the empty store, so exactly
	// one account bootstraps as administrator.
	e.regMu.Lock()
	if e.users.UserCount() == 0 {
		user.Role = identity.RoleAdmin
	} else if e.cfg.Registration.RequireInvite {
		if err := e.checkInvite(reg.InviteCode); err != nil {
			e.regMu.Unlock()
			return identity.User{}, err
		}
	}
	if err := e.users.AddUser(user); err != nil {
		e.regMu.Unlock()
		return identity.User{}, ErrUsernameTaken
	}
	e.regMu.Unlock()

	// The fresh personal code starts on cooldown so an account cannot
	// be used to fan out registrations the moment it exists.
	if user.PersonalInviteCode != "" && e.cfg.Registration.InviteCooldown > 0 {
		e.throttle.Arm("invite:" + user.PersonalInviteCode)
	}

	e.emit(ctx, notify.Event{Type: notify.TypeUserRegistered, UserID: user.ID, IP: reg.IP})
	return user, nil
}

// checkInvite validates an invite code: a shared operator code or some
// account's personal code, each on its own cooldown. Every failure mode
// collapses into the same error.
func (e *Engine) checkInvite(code string) error {
	if code == "" {
		return ErrInviteRequired
	}

	valid := e.sharedInviteValid(code)
	if !valid && e.cfg.Registration.PersonalInvites {
		owner, ok := e.users.UserByInviteCode(code)
		valid = ok && !owner.Banned(e.nowMS())
	}
	if !valid {
		return ErrInvalidInviteCode
	}

	if w := e.cfg.Registration.InviteCooldown; w > 0 {
		if !e.throttle.Test("invite:"+code, w) {
			return ErrInvalidInviteCode
		}
	}
	return nil
}

// SignOut verifies the credentials and revokes every token the account
// holds.
func (e *Engine) SignOut(ctx context.Context, username, password string) error {
	user, err := e.verifyPassword(username, password)
	if err != nil {
		return err
	}
	e.tokens.DeleteAllForOwner(user.ID)
	e.emit(ctx, notify.Event{Type: notify.TypeSignOut, UserID: user.ID})
	return nil
}

// Ban sets the target's ban horizon (epoch milliseconds; zero lifts the
// ban) and revokes the target's tokens. The caller's token must belong
// to an administrator.
func (e *Engine) Ban(ctx context.Context, accessToken, targetUsername string, until int64) error {
	admin, err := e.userFromToken(accessToken)
	if err != nil {
		return err
	}
	if admin.Role != identity.RoleAdmin {
		return ErrAdminRequired
	}

	target, ok := e.users.UserByName(targetUsername)
	if !ok {
		return ErrUserNotFound
	}

	err = e.users.UpdateUser(target.ID, func(u *identity.User) error {
		u.BannedUntil = until
		return nil
	})
	if err != nil {
		return err
	}

	if until > e.nowMS() {
		e.tokens.DeleteAllForOwner(target.ID)
		e.emit(ctx, notify.Event{Type: notify.TypeUserBanned, UserID: target.ID})
	}
	return nil
}

// IssueRescueCode verifies the credentials and mints a one-shot rescue
// code for password recovery. Only its hash is stored; a new code
// replaces any outstanding one.
func (e *Engine) IssueRescueCode(ctx context.Context, username, password string) (string, error) {
	user, err := e.verifyPassword(username, password)
	if err != nil {
		return "", err
	}

	code := newHexID()
	sum := sha256.Sum256([]byte(code))
	err = e.users.UpdateUser(user.ID, func(u *identity.User) error {
		u.RescueCodeHash = sum[:]
		return nil
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// ResetPassword redeems a rescue code for a password change. On success
// the code is cleared, all tokens are revoked, and the personal invite
// code is re-derived from the new hash. A rejected new password leaves
// the code in place for another attempt.
func (e *Engine) ResetPassword(ctx context.Context, username, rescueCode, newPassword string) error {
	user, ok := e.users.UserByName(username)
	if !ok {
		return ErrInvalidRescueCode
	}
	if len(user.RescueCodeHash) == 0 {
		return ErrInvalidRescueCode
	}

	sum := sha256.Sum256([]byte(rescueCode))
	if subtle.ConstantTimeCompare(sum[:], user.RescueCodeHash) != 1 {
		return ErrInvalidRescueCode
	}

	if len(newPassword) < e.cfg.Registration.MinPasswordLength {
		return ErrWeakPassword
	}
	if same, err := e.hasher.Verify(newPassword, user.PasswordHash); err == nil && same {
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = e.users.UpdateUser(user.ID, func(u *identity.User) error {
		u.PasswordHash = hash
		u.RescueCodeHash = nil
		if u.PersonalInviteCode != "" {
			u.PersonalInviteCode = derivePersonalInvite(u.ID, u.RegistrationIP, hash)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.tokens.DeleteAllForOwner(user.ID)
	e.emit(ctx, notify.Event{Type: notify.TypePasswordReset, UserID: user.ID})
	return nil
}

// DeleteAccount verifies the credentials and removes the account with
// everything attached: profiles, their texture references, all tokens,
// and finally the durable record.
func (e *Engine) DeleteAccount(ctx context.Context, username, password string) error {
	user, err := e.verifyPassword(username, password)
	if err != nil {
		return err
	}

	for _, p := range e.users.ProfilesOf(user.ID) {
		if err := e.removeProfile(p.ID); err != nil {
			return err
		}
	}

	e.tokens.DeleteAllForOwner(user.ID)
	if _, err := e.users.DeleteUser(user.ID); err != nil {
		return err
	}

	e.emit(ctx, notify.Event{Type: notify.TypeUserDeleted, UserID: user.ID})
	return nil
}

// verifyPassword authenticates a username/password pair without issuing
// tokens, for credential-gated account operations.
func (e *Engine) verifyPassword(username, password string) (identity.User, error) {
	if username == "" || password == "" {
		return identity.User{}, ErrMissingField
	}

	user, ok := e.resolveAccount(username)
	if !ok {
		return identity.User{}, ErrInvalidCredentials
	}

	match, err := e.hasher.Verify(password, user.PasswordHash)
	if err != nil || !match {
		return identity.User{}, ErrInvalidCredentials
	}
	if user.Banned(e.nowMS()) {
		return identity.User{}, ErrAccountBanned
	}
	return user, nil
}

// maxUsernameLength bounds usernames at the RFC 5321 address limit.
const maxUsernameLength = 254

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
