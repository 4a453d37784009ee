// Package identity holds the durable account and profile model and the
// in-memory indices the engine reads from. Records are owned by the
// [Store]; mutations go through it so index maintenance and dirty
// tracking stay consistent.
package identity

// Role is the authorization level of a user account.
type Role string

const (
	// RoleUser is the default role assigned at registration.
	RoleUser Role = "user"
	// RoleAdmin is held by the first-ever registered user.
	RoleAdmin Role = "admin"
)

// TextureModel is the optional skin model metadata ("slim" or default).
type TextureModel string

const (
	// ModelDefault is the classic player model.
	ModelDefault TextureModel = ""
	// ModelSlim is the slim-armed player model.
	ModelSlim TextureModel = "slim"
)

// Texture references an uploaded texture blob by URL plus optional model
// metadata. The blob itself lives in the content-addressed texture store.
type Texture struct {
	URL   string       `json:"url"`
	Hash  string       `json:"hash,omitempty"`
	Model TextureModel `json:"model,omitempty"`
}

// User is a registered account. PasswordHash is a PHC-encoded one-way
// hash; the clear password is never stored. BannedUntil is epoch
// milliseconds, zero meaning not banned. RescueCodeHash is a one-shot
// SHA-256 digest, cleared on use.
type User struct {
	ID                 string   `json:"id"`
	Username           string   `json:"username"`
	Nickname           string   `json:"nickname,omitempty"`
	PasswordHash       string   `json:"passwordHash"`
	Role               Role     `json:"role"`
	BannedUntil        int64    `json:"bannedUntil,omitempty"`
	RegistrationTime   int64    `json:"registrationTime"`
	RegistrationIP     string   `json:"registrationIp,omitempty"`
	ProfileIDs         []string `json:"profileIds,omitempty"`
	PersonalInviteCode string   `json:"personalInviteCode,omitempty"`
	RescueCodeHash     []byte   `json:"rescueCodeHash,omitempty"`
}

// Banned reports whether the user is banned at the given epoch-ms instant.
func (u *User) Banned(nowMS int64) bool {
	return u.BannedUntil > nowMS
}

// OwnsProfile reports whether profileID is in the user's owned set.
func (u *User) OwnsProfile(profileID string) bool {
	for _, id := range u.ProfileIDs {
		if id == profileID {
			return true
		}
	}
	return false
}

// Profile is a player identity owned by a user account.
type Profile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	OwnerID     string   `json:"ownerId,omitempty"`
	Skin        *Texture `json:"skin,omitempty"`
	Cape        *Texture `json:"cape,omitempty"`
	CapeVisible bool     `json:"capeVisible"`
}

// ProfileProperty is one entry of a profile export's property list.
// Value carries base64-encoded payloads; Signature is present only when
// a signed export was requested.
type ProfileProperty struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

// ProfileExport is the wire shape returned by has-joined verification
// and profile queries. The shape is identical whether the export came
// from the local store or the federated provider.
type ProfileExport struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Properties []ProfileProperty `json:"properties"`
}
