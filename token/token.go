// Package token implements the bearer-token lifecycle: issuance,
// the valid / temporarily-valid / invalid state machine, and the
// volatile token store. Tokens are never persisted; a restart simply
// forces clients to re-authenticate.
package token

import (
	"time"
)

// Status is the lifecycle state of a bearer token.
type Status int

const (
	// StatusInvalid covers absent, expired, and revoked tokens.
	StatusInvalid Status = iota
	// StatusValid means the token is in the first half of its lifetime
	// and may be used for every operation, including session joins.
	StatusValid
	// StatusTemporarilyValid means the token passed half its lifetime:
	// still refreshable, no longer accepted for session joins.
	StatusTemporarilyValid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusTemporarilyValid:
		return "temporarily-valid"
	default:
		return "invalid"
	}
}

// Token is one issued bearer credential. ClientToken is the opaque
// client-chosen correlation value preserved across refreshes;
// ProfileID, once set, is immutable for the token's lifetime.
type Token struct {
	AccessToken string
	ClientToken string
	OwnerID     string
	ProfileID   string
	IssuedAt    time.Time
}

// statusAt computes the state machine transition for a token of the
// given age: age < period/2 is valid, age < period is temporarily
// valid, anything older is invalid.
func statusAt(t *Token, now time.Time, period time.Duration) Status {
	age := now.Sub(t.IssuedAt)
	switch {
	case age < period/2:
		return StatusValid
	case age < period:
		return StatusTemporarilyValid
	default:
		return StatusInvalid
	}
}
