package yggdrasil

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/mcauthd/yggdrasil/identity"
	"github.com/mcauthd/yggdrasil/internal/notify"
	"github.com/mcauthd/yggdrasil/token"
)

// TextureKind selects which texture slot an upload targets.
type TextureKind string

const (
	TextureSkin TextureKind = "skin"
	TextureCape TextureKind = "cape"
)

const maxProfileNameLength = 30

// CreateProfile adds a player profile to the token's account. The
// profile id is the deterministic offline-mode id for the name when
// free, so worlds migrated from offline servers keep their player data.
func (e *Engine) CreateProfile(ctx context.Context, accessToken, name string) (identity.Profile, error) {
	user, err := e.userFromToken(accessToken)
	if err != nil {
		return identity.Profile{}, err
	}

	if !validProfileName(name) {
		return identity.Profile{}, ErrInvalidProfileName
	}
	if len(user.ProfileIDs) >= e.cfg.Registration.MaxProfiles {
		return identity.Profile{}, ErrProfileLimit
	}

	id := offlineProfileID(name)
	if _, taken := e.users.ProfileByID(id); taken {
		id = newHexID()
	}

	p := identity.Profile{
		ID:          id,
		Name:        name,
		OwnerID:     user.ID,
		CapeVisible: true,
	}
	if err := e.users.AddProfile(p); err != nil {
		return identity.Profile{}, ErrProfileNameTaken
	}

	e.emit(ctx, notify.Event{
		Type:        notify.TypeProfileCreated,
		UserID:      user.ID,
		ProfileID:   p.ID,
		ProfileName: p.Name,
	})
	return p, nil
}

// DeleteProfile removes one of the token owner's profiles, releasing
// its texture references and revoking every token bound to it.
func (e *Engine) DeleteProfile(ctx context.Context, accessToken, profileID string) error {
	user, err := e.userFromToken(accessToken)
	if err != nil {
		return err
	}
	if !user.OwnsProfile(profileID) {
		return ErrNotProfileOwner
	}

	if err := e.removeProfile(profileID); err != nil {
		return err
	}

	e.emit(ctx, notify.Event{Type: notify.TypeProfileDeleted, UserID: user.ID, ProfileID: profileID})
	return nil
}

// removeProfile is the unchecked cascade shared by profile and account
// deletion.
func (e *Engine) removeProfile(profileID string) error {
	e.tokens.UnbindProfileTokens(profileID)

	removed, err := e.users.DeleteProfile(profileID)
	if err != nil {
		return err
	}

	if removed.Skin != nil {
		if err := e.textures.ReleaseTexture(removed.Skin.Hash); err != nil {
			e.log.Warn("profile: skin release failed", "profile", profileID, "err", err)
		}
	}
	if removed.Cape != nil {
		if err := e.textures.ReleaseTexture(removed.Cape.Hash); err != nil {
			e.log.Warn("profile: cape release failed", "profile", profileID, "err", err)
		}
	}
	return nil
}

// SetTexture uploads a texture blob into the profile's skin or cape
// slot. The blob is stored content-addressed; the previous slot
// occupant's reference is released.
func (e *Engine) SetTexture(ctx context.Context, accessToken, profileID string, kind TextureKind, data []byte, model identity.TextureModel) error {
	user, err := e.userFromToken(accessToken)
	if err != nil {
		return err
	}
	if !user.OwnsProfile(profileID) {
		return ErrNotProfileOwner
	}
	if limit := e.cfg.Server.MaxUploadSize; limit > 0 && int64(len(data)) > limit {
		return ErrTextureTooLarge
	}

	hash, err := e.textures.PutTexture(data)
	if err != nil {
		return err
	}

	fresh := &identity.Texture{
		URL:  e.textureURL(hash),
		Hash: hash,
	}
	if kind == TextureSkin {
		fresh.Model = model
	}

	var previous string
	err = e.users.UpdateProfile(profileID, func(p *identity.Profile) error {
		switch kind {
		case TextureSkin:
			if p.Skin != nil {
				previous = p.Skin.Hash
			}
			p.Skin = fresh
		case TextureCape:
			if p.Cape != nil {
				previous = p.Cape.Hash
			}
			p.Cape = fresh
		default:
			return ErrMissingField
		}
		return nil
	})
	if err != nil {
		// The fresh reference never made it into the profile.
		_ = e.textures.ReleaseTexture(hash)
		return err
	}

	if previous != "" {
		if err := e.textures.ReleaseTexture(previous); err != nil {
			e.log.Warn("profile: previous texture release failed", "profile", profileID, "err", err)
		}
	}

	e.emit(ctx, notify.Event{
		Type:      notify.TypeTextureUploaded,
		UserID:    user.ID,
		ProfileID: profileID,
		Detail:    map[string]string{"kind": string(kind)},
	})
	return nil
}

// ClearTexture empties the profile's skin or cape slot and releases the
// blob reference.
func (e *Engine) ClearTexture(ctx context.Context, accessToken, profileID string, kind TextureKind) error {
	user, err := e.userFromToken(accessToken)
	if err != nil {
		return err
	}
	if !user.OwnsProfile(profileID) {
		return ErrNotProfileOwner
	}

	var previous string
	err = e.users.UpdateProfile(profileID, func(p *identity.Profile) error {
		switch kind {
		case TextureSkin:
			if p.Skin != nil {
				previous = p.Skin.Hash
			}
			p.Skin = nil
		case TextureCape:
			if p.Cape != nil {
				previous = p.Cape.Hash
			}
			p.Cape = nil
		default:
			return ErrMissingField
		}
		return nil
	})
	if err != nil {
		return err
	}

	if previous != "" {
		if err := e.textures.ReleaseTexture(previous); err != nil {
			e.log.Warn("profile: texture release failed", "profile", profileID, "err", err)
		}
	}

	e.emit(ctx, notify.Event{
		Type:      notify.TypeTextureCleared,
		UserID:    user.ID,
		ProfileID: profileID,
		Detail:    map[string]string{"kind": string(kind)},
	})
	return nil
}

// SetCapeVisible toggles whether the profile's cape appears in exports.
// The cape reference stays in place either way.
func (e *Engine) SetCapeVisible(ctx context.Context, accessToken, profileID string, visible bool) error {
	user, err := e.userFromToken(accessToken)
	if err != nil {
		return err
	}
	if !user.OwnsProfile(profileID) {
		return ErrNotProfileOwner
	}

	return e.users.UpdateProfile(profileID, func(p *identity.Profile) error {
		p.CapeVisible = visible
		return nil
	})
}

// Profiles lists the token owner's profiles in creation order.
func (e *Engine) Profiles(ctx context.Context, accessToken string) ([]identity.Profile, error) {
	user, err := e.userFromToken(accessToken)
	if err != nil {
		return nil, err
	}
	return e.users.ProfilesOf(user.ID), nil
}

// ProfileExportByID builds the public export for a profile, with
// property signatures when signed is set.
func (e *Engine) ProfileExportByID(profileID string, signed bool) (identity.ProfileExport, error) {
	p, ok := e.users.ProfileByID(profileID)
	if !ok {
		return identity.ProfileExport{}, ErrProfileNotFound
	}
	return e.exportProfile(&p, signed)
}

// ProfileExportsByNames resolves up to limit profile names to minimal
// exports (id and name only), skipping unknown names. Game servers use
// this for bulk whitelist resolution.
func (e *Engine) ProfileExportsByNames(names []string) []identity.ProfileExport {
	const limit = 100

	if len(names) > limit {
		names = names[:limit]
	}

	out := make([]identity.ProfileExport, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		p, ok := e.users.ProfileByName(name)
		if !ok {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, identity.ProfileExport{ID: p.ID, Name: p.Name})
	}
	return out
}

// TextureBlob returns the raw texture bytes for a content hash.
func (e *Engine) TextureBlob(hash string) ([]byte, error) {
	return e.textures.Texture(hash)
}

// texturesDocument is the inner JSON carried base64-encoded in the
// "textures" profile property.
type texturesDocument struct {
	Timestamp   int64                     `json:"timestamp"`
	ProfileID   string                    `json:"profileId"`
	ProfileName string                    `json:"profileName"`
	Textures    map[string]textureElement `json:"textures"`
}

type textureElement struct {
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// exportProfile renders a profile into its wire shape. A signed export
// carries signatures over each property value plus the marker property
// telling clients which texture slots accept uploads here.
func (e *Engine) exportProfile(p *identity.Profile, signed bool) (identity.ProfileExport, error) {
	doc := texturesDocument{
		Timestamp:   e.nowMS(),
		ProfileID:   p.ID,
		ProfileName: p.Name,
		Textures:    map[string]textureElement{},
	}
	if p.Skin != nil {
		el := textureElement{URL: p.Skin.URL}
		if p.Skin.Model == identity.ModelSlim {
			el.Metadata = map[string]string{"model": "slim"}
		}
		doc.Textures["SKIN"] = el
	}
	if p.Cape != nil && p.CapeVisible {
		doc.Textures["CAPE"] = textureElement{URL: p.Cape.URL}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return identity.ProfileExport{}, err
	}

	props := []identity.ProfileProperty{
		{Name: "textures", Value: base64.StdEncoding.EncodeToString(raw)},
		{Name: "uploadableTextures", Value: "skin,cape"},
	}
	if signed {
		for i := range props {
			sig, err := e.signer.Sign([]byte(props[i].Value))
			if err != nil {
				return identity.ProfileExport{}, err
			}
			props[i].Signature = sig
		}
	}

	return identity.ProfileExport{
		ID:         p.ID,
		Name:       p.Name,
		Properties: props,
	}, nil
}

// userFromToken authenticates a request by access token. Profile and
// account management demand a fully valid token.
func (e *Engine) userFromToken(accessToken string) (identity.User, error) {
	t, status := e.tokens.Get(accessToken)
	if status != token.StatusValid {
		return identity.User{}, ErrInvalidToken
	}
	user, ok := e.users.UserByID(t.OwnerID)
	if !ok {
		e.tokens.Delete(accessToken)
		return identity.User{}, ErrInvalidToken
	}
	if user.Banned(e.nowMS()) {
		return identity.User{}, ErrAccountBanned
	}
	return user, nil
}

func (e *Engine) textureURL(hash string) string {
	return strings.TrimRight(e.cfg.Server.BaseURL, "/") + "/textures/" + hash
}

func validProfileName(name string) bool {
	if len(name) == 0 || len(name) > maxProfileNameLength {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}
