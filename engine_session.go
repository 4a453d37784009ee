package yggdrasil

import (
	"context"

	"github.com/mcauthd/yggdrasil/identity"
	"github.com/mcauthd/yggdrasil/internal/notify"
	"github.com/mcauthd/yggdrasil/session"
	"github.com/mcauthd/yggdrasil/token"
	"github.com/mcauthd/yggdrasil/upstream"
)

// Join records a pending server-join handshake under the server's
// one-time id. The token must be fully valid and bound to the profile
// the client claims. In proxy mode, a token this instance does not
// recognize is forwarded upstream instead, so clients holding remote
// credentials can join servers pointed at this instance.
func (e *Engine) Join(ctx context.Context, accessToken, profileID, serverID, ip string) error {
	if accessToken == "" || serverID == "" {
		return ErrMissingField
	}

	t, status := e.tokens.Get(accessToken)
	switch {
	case status == token.StatusValid:
		if t.ProfileID == "" || t.ProfileID != profileID {
			return ErrInvalidToken
		}
		p, ok := e.users.ProfileByID(t.ProfileID)
		if !ok {
			return ErrInvalidToken
		}
		e.sessions.Put(&session.Session{
			ServerID:    serverID,
			AccessToken: accessToken,
			ProfileID:   p.ID,
			ProfileName: p.Name,
			ClientIP:    ip,
		})
		e.emit(ctx, notify.Event{
			Type:        notify.TypeSessionJoined,
			UserID:      t.OwnerID,
			ProfileID:   p.ID,
			ProfileName: p.Name,
			IP:          ip,
		})
		return nil

	case status == token.StatusTemporarilyValid:
		// A stale-but-refreshable token is never enough to join; the
		// client must refresh first.
		return ErrTokenUnusable

	default:
		if e.cfg.Upstream.Enabled && e.upstream != nil {
			if err := e.upstream.Join(ctx, accessToken, profileID, serverID); err == nil {
				return nil
			}
		}
		return ErrInvalidToken
	}
}

// HasJoined verifies a pending join on behalf of a game server. The
// local session table and, in proxy mode, the upstream authority are
// consulted concurrently; the first confirmation wins. Both failing
// collapses into one opaque error so a game server cannot distinguish
// "unknown player" from "expired session".
func (e *Engine) HasJoined(ctx context.Context, serverID, username, ip string) (identity.ProfileExport, error) {
	if serverID == "" || username == "" {
		return identity.ProfileExport{}, ErrNotVerified
	}

	type outcome struct {
		export   identity.ProfileExport
		federate bool
		err      error
	}

	checks := 1
	results := make(chan outcome, 2)

	go func() {
		export, err := e.hasJoinedLocal(serverID, username, ip)
		results <- outcome{export: export, err: err}
	}()

	if e.cfg.Upstream.Enabled && e.upstream != nil && upstream.AcceptableUsername(username) {
		checks++
		go func() {
			export, err := e.upstream.HasJoined(ctx, serverID, username, ip)
			results <- outcome{export: export, federate: true, err: err}
		}()
	}

	for i := 0; i < checks; i++ {
		r := <-results
		if r.err != nil {
			continue
		}
		eventType := notify.TypeSessionVerified
		if r.federate {
			eventType = notify.TypeSessionUpstream
		}
		e.emit(ctx, notify.Event{
			Type:        eventType,
			ProfileID:   r.export.ID,
			ProfileName: r.export.Name,
			IP:          ip,
		})
		return r.export, nil
	}

	e.emit(ctx, notify.Event{Type: notify.TypeSessionRejected, ProfileName: username, IP: ip})
	return identity.ProfileExport{}, ErrNotVerified
}

// hasJoinedLocal consumes the pending session and builds the signed
// export for the joined profile.
func (e *Engine) hasJoinedLocal(serverID, username, ip string) (identity.ProfileExport, error) {
	sess, err := e.sessions.Consume(serverID, username, ip)
	if err != nil {
		return identity.ProfileExport{}, err
	}

	p, ok := e.users.ProfileByID(sess.ProfileID)
	if !ok {
		// Profile deleted between join and verification.
		return identity.ProfileExport{}, ErrProfileNotFound
	}

	return e.exportProfile(&p, true)
}
