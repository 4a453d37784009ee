// Package yggdrasil implements a self-hosted, protocol-compatible
// identity and session server for Minecraft-style game clients:
// account registration and authentication, bearer-token lifecycle,
// server-join session verification with optional federation to a
// remote authority, and signed profile exports.
package yggdrasil

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcauthd/yggdrasil/identity"
	"github.com/mcauthd/yggdrasil/internal/notify"
	"github.com/mcauthd/yggdrasil/internal/rate"
	"github.com/mcauthd/yggdrasil/password"
	"github.com/mcauthd/yggdrasil/session"
	"github.com/mcauthd/yggdrasil/sign"
	"github.com/mcauthd/yggdrasil/token"
)

// UpstreamProvider is the remote authority consulted in proxy mode.
// Implemented by [upstream.Client]; tests substitute stubs to exercise
// the verification race deterministically.
type UpstreamProvider interface {
	HasJoined(ctx context.Context, serverID, username, ip string) (identity.ProfileExport, error)
	Join(ctx context.Context, accessToken, profileID, serverID string) error
}

// TextureStore holds content-addressed texture blobs with reference
// counting. Implemented by the sqlite store.
type TextureStore interface {
	PutTexture(data []byte) (string, error)
	Texture(hash string) ([]byte, error)
	ReleaseTexture(hash string) error
}

// Engine is the server core. All operations are safe for concurrent
// use; construction goes through [Builder].
type Engine struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	users    *identity.Store
	tokens   *token.Store
	sessions *session.Store
	throttle *rate.Limiter
	hasher   *password.Hasher
	signer   *sign.Signer
	textures TextureStore
	upstream UpstreamProvider
	events   *notify.Dispatcher

	// regMu serializes the count/invite/insert section of Register so
	// exactly one registration can ever observe the empty store.
	regMu sync.Mutex
}

// Config returns the engine's immutable configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Signer exposes the signature service, mainly so the HTTP layer can
// publish the verification key.
func (e *Engine) Signer() *sign.Signer {
	return e.signer
}

// Close flushes dirty identity records and stops background workers.
func (e *Engine) Close() {
	e.users.Close()
	e.events.Close()
}

func (e *Engine) nowMS() int64 {
	return e.now().UnixMilli()
}

func (e *Engine) emit(ctx context.Context, event notify.Event) {
	event.Timestamp = e.now()
	e.events.Emit(ctx, event)
}

// newHexID returns a random 32-character lowercase hex identifier, the
// id form used for accounts, profiles, and access tokens alike.
func newHexID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// offlineProfileID derives the deterministic profile id offline-mode
// clients compute for a name: a name-based UUID over the
// "OfflinePlayer:" prefix. Using the same id keeps inventories and
// player data stable when a server switches to online mode against
// this instance.
func offlineProfileID(name string) string {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30 // version 3
	sum[8] = (sum[8] & 0x3f) | 0x80 // RFC 4122 variant
	return hex.EncodeToString(sum[:])
}
