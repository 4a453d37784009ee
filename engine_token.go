package yggdrasil

import (
	"context"

	"github.com/mcauthd/yggdrasil/identity"
	"github.com/mcauthd/yggdrasil/internal/notify"
	"github.com/mcauthd/yggdrasil/token"
)

// issueToken mints a token pair for the account. With exactly one
// profile the token is bound to it immediately; otherwise the client
// selects a profile at refresh time.
func (e *Engine) issueToken(user identity.User, clientToken string) (AuthResult, error) {
	if clientToken == "" {
		clientToken = newHexID()
	}

	profiles := e.users.ProfilesOf(user.ID)

	t := token.Token{
		AccessToken: newHexID(),
		ClientToken: clientToken,
		OwnerID:     user.ID,
	}
	var selected *identity.Profile
	if len(profiles) == 1 {
		t.ProfileID = profiles[0].ID
		p := profiles[0]
		selected = &p
	}
	e.tokens.Put(&t)

	return AuthResult{
		AccessToken:       t.AccessToken,
		ClientToken:       clientToken,
		SelectedProfile:   selected,
		AvailableProfiles: profiles,
		User:              user,
	}, nil
}

// Refresh rotates an access token. The old token may be in either
// usable state; the new one starts fully valid with the same client
// token. An unbound token may bind a profile here, once, to one of the
// owner's profiles; a bound token must omit the selection.
func (e *Engine) Refresh(ctx context.Context, accessToken, clientToken, selectProfileID string) (AuthResult, error) {
	old, status := e.tokens.Get(accessToken)
	if status == token.StatusInvalid {
		return AuthResult{}, ErrInvalidToken
	}
	if clientToken != "" && clientToken != old.ClientToken {
		return AuthResult{}, ErrInvalidToken
	}

	user, ok := e.users.UserByID(old.OwnerID)
	if !ok {
		e.tokens.Delete(accessToken)
		return AuthResult{}, ErrInvalidToken
	}
	if user.Banned(e.nowMS()) {
		e.tokens.Delete(accessToken)
		return AuthResult{}, ErrAccountBanned
	}

	profileID := old.ProfileID
	if selectProfileID != "" {
		// Binding is write-once: selecting a profile on a bound token is
		// refused, even when it names the existing binding.
		if profileID != "" {
			return AuthResult{}, ErrInvalidToken
		}
		if !user.OwnsProfile(selectProfileID) {
			return AuthResult{}, ErrNotProfileOwner
		}
		profileID = selectProfileID
	}

	fresh := token.Token{
		AccessToken: newHexID(),
		ClientToken: old.ClientToken,
		OwnerID:     old.OwnerID,
		ProfileID:   profileID,
	}
	// The old token may have been rotated or revoked since the status
	// check above; only the rotation that removes it mints a
	// replacement.
	if !e.tokens.Rotate(accessToken, &fresh) {
		return AuthResult{}, ErrInvalidToken
	}

	var selected *identity.Profile
	if profileID != "" {
		if p, ok := e.users.ProfileByID(profileID); ok {
			selected = &p
		}
	}

	e.emit(ctx, notify.Event{Type: notify.TypeTokenRefreshed, UserID: user.ID, ProfileID: profileID})
	return AuthResult{
		AccessToken:       fresh.AccessToken,
		ClientToken:       fresh.ClientToken,
		SelectedProfile:   selected,
		AvailableProfiles: e.users.ProfilesOf(user.ID),
		User:              user,
	}, nil
}

// Validate reports whether the access token is fully valid. A
// temporarily valid token fails validation; clients are expected to
// refresh it. The optional client token must match when supplied.
func (e *Engine) Validate(ctx context.Context, accessToken, clientToken string) error {
	t, status := e.tokens.Get(accessToken)
	if status == token.StatusInvalid {
		return ErrInvalidToken
	}
	if clientToken != "" && clientToken != t.ClientToken {
		return ErrInvalidToken
	}
	if status != token.StatusValid {
		return ErrTokenUnusable
	}
	return nil
}

// Invalidate revokes the access token. Idempotent; revoking an unknown
// token is not an error, matching the protocol's always-204 semantics.
func (e *Engine) Invalidate(ctx context.Context, accessToken string) {
	e.tokens.Delete(accessToken)
}
