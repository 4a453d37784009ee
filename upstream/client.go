// Package upstream talks to an authoritative remote session server when
// the engine runs in proxy mode. Accounts that exist remotely but not
// locally can then still be verified by game servers pointed at this
// instance.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mcauthd/yggdrasil/identity"
)

// ErrNotVerified is returned when the remote session server does not
// confirm the join. It is deliberately opaque: the caller cannot tell
// an unknown player from an expired remote session.
var ErrNotVerified = errors.New("upstream did not verify the session")

const defaultTimeout = 5 * time.Second

// Client queries a remote Yggdrasil session server over HTTPS.
type Client struct {
	sessionBase string
	client      *http.Client
}

// NewClient builds a client for the given session server base URL,
// e.g. "https://sessionserver.mojang.com".
func NewClient(sessionBase string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		sessionBase: strings.TrimRight(sessionBase, "/"),
		client:      &http.Client{Timeout: timeout},
	}
}

// HasJoined asks the remote session server whether the named player
// recently joined the server identified by serverID. A 200 response
// carries the remote profile, properties and signatures included; a
// 204 means not verified.
func (c *Client) HasJoined(ctx context.Context, serverID, username, ip string) (identity.ProfileExport, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("serverId", serverID)
	if ip != "" {
		q.Set("ip", ip)
	}
	endpoint := c.sessionBase + "/session/minecraft/hasJoined?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return identity.ProfileExport{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return identity.ProfileExport{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var export identity.ProfileExport
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&export); err != nil {
			return identity.ProfileExport{}, fmt.Errorf("upstream: decode hasJoined response: %w", err)
		}
		if export.ID == "" || export.Name == "" {
			return identity.ProfileExport{}, errors.New("upstream: incomplete hasJoined response")
		}
		return export, nil
	case http.StatusNoContent:
		return identity.ProfileExport{}, ErrNotVerified
	default:
		return identity.ProfileExport{}, fmt.Errorf("upstream: hasJoined returned %d", resp.StatusCode)
	}
}

// Join forwards a join announcement to the remote session server on
// behalf of a client holding a remote access token.
func (c *Client) Join(ctx context.Context, accessToken, profileID, serverID string) error {
	payload, err := json.Marshal(map[string]string{
		"accessToken":     accessToken,
		"selectedProfile": profileID,
		"serverId":        serverID,
	})
	if err != nil {
		return err
	}

	endpoint := c.sessionBase + "/session/minecraft/join"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream: join returned %d", resp.StatusCode)
	}
	return nil
}

// Profile fetches a remote profile by id, optionally with signed
// properties.
func (c *Client) Profile(ctx context.Context, profileID string, signed bool) (identity.ProfileExport, error) {
	endpoint := c.sessionBase + "/session/minecraft/profile/" + url.PathEscape(profileID)
	if signed {
		endpoint += "?unsigned=false"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return identity.ProfileExport{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return identity.ProfileExport{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var export identity.ProfileExport
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&export); err != nil {
			return identity.ProfileExport{}, fmt.Errorf("upstream: decode profile response: %w", err)
		}
		return export, nil
	case http.StatusNoContent, http.StatusNotFound:
		return identity.ProfileExport{}, ErrNotVerified
	default:
		return identity.ProfileExport{}, fmt.Errorf("upstream: profile returned %d", resp.StatusCode)
	}
}

// AcceptableUsername reports whether a name is worth forwarding
// upstream. Remote account names are 1-16 characters of letters,
// digits, and underscores; anything else can only be a local account,
// so the network round trip is skipped.
func AcceptableUsername(name string) bool {
	if len(name) == 0 || len(name) > 16 {
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
