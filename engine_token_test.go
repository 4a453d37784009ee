package yggdrasil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestTokenLifecycleHalving(t *testing.T) {
	e, clock := newTestEngine(t, func(cfg *Config) {
		cfg.Token.Validity = 72 * time.Hour
	})
	register(t, e, "user@example.com", "correct horse")
	tok := authenticate(t, e, "user@example.com", "correct horse")

	// First half of the lifetime: fully valid.
	if err := e.Validate(context.Background(), tok.AccessToken, ""); err != nil {
		t.Fatalf("fresh token: %v", err)
	}
	clock.Advance(35 * time.Hour)
	if err := e.Validate(context.Background(), tok.AccessToken, ""); err != nil {
		t.Fatalf("token at 35h of 72h: %v", err)
	}

	// Second half: refreshable but no longer valid.
	clock.Advance(2 * time.Hour)
	if err := e.Validate(context.Background(), tok.AccessToken, ""); !errors.Is(err, ErrTokenUnusable) {
		t.Fatalf("token at 37h: got %v, want ErrTokenUnusable", err)
	}
	if _, err := e.Refresh(context.Background(), tok.AccessToken, tok.ClientToken, ""); err != nil {
		t.Fatalf("refresh of temporarily valid token: %v", err)
	}

	// Past the full lifetime: gone.
	expired := authenticate(t, e, "user@example.com", "correct horse")
	clock.Advance(73 * time.Hour)
	if err := e.Validate(context.Background(), expired.AccessToken, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: got %v", err)
	}
	if _, err := e.Refresh(context.Background(), expired.AccessToken, expired.ClientToken, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh of expired token: got %v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	register(t, e, "user@example.com", "correct horse")
	setup := authenticate(t, e, "user@example.com", "correct horse")
	p := createProfile(t, e, setup.AccessToken, "Steve")

	tok := authenticate(t, e, "user@example.com", "correct horse")

	fresh, err := e.Refresh(context.Background(), tok.AccessToken, tok.ClientToken, "")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if fresh.AccessToken == tok.AccessToken {
		t.Fatal("refresh must rotate the access token")
	}
	if fresh.ClientToken != tok.ClientToken {
		t.Fatal("refresh must preserve the client token")
	}
	if fresh.SelectedProfile == nil || fresh.SelectedProfile.ID != p.ID {
		t.Fatal("refresh must preserve the profile binding")
	}

	// The old token is dead after rotation.
	if err := e.Validate(context.Background(), tok.AccessToken, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("old token after refresh: got %v", err)
	}
	if err := e.Validate(context.Background(), fresh.AccessToken, ""); err != nil {
		t.Fatalf("new token: %v", err)
	}
}

func TestRefreshClientTokenMismatch(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	register(t, e, "user@example.com", "correct horse")
	tok := authenticate(t, e, "user@example.com", "correct horse")

	_, err := e.Refresh(context.Background(), tok.AccessToken, "deadbeefdeadbeefdeadbeefdeadbeef", "")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("client token mismatch: got %v", err)
	}
	// The mismatch must not have burned the token.
	if err := e.Validate(context.Background(), tok.AccessToken, tok.ClientToken); err != nil {
		t.Fatalf("token should survive a failed refresh: %v", err)
	}
}

func TestRefreshBindsProfileOnce(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	register(t, e, "user@example.com", "correct horse")
	setup := authenticate(t, e, "user@example.com", "correct horse")
	steve := createProfile(t, e, setup.AccessToken, "Steve")
	alex := createProfile(t, e, setup.AccessToken, "Alex")

	// Two profiles, so the token starts unbound.
	tok := authenticate(t, e, "user@example.com", "correct horse")
	if tok.SelectedProfile != nil {
		t.Fatal("token should start unbound")
	}

	bound, err := e.Refresh(context.Background(), tok.AccessToken, tok.ClientToken, steve.ID)
	if err != nil {
		t.Fatalf("binding refresh: %v", err)
	}
	if bound.SelectedProfile == nil || bound.SelectedProfile.ID != steve.ID {
		t.Fatalf("binding did not stick: %+v", bound.SelectedProfile)
	}

	// A bound token refuses any profile selection, including its own
	// binding; only an omitted selection carries it forward.
	_, err = e.Refresh(context.Background(), bound.AccessToken, bound.ClientToken, alex.ID)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("rebinding: got %v", err)
	}
	_, err = e.Refresh(context.Background(), bound.AccessToken, bound.ClientToken, steve.ID)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("restating binding: got %v", err)
	}

	carried, err := e.Refresh(context.Background(), bound.AccessToken, bound.ClientToken, "")
	if err != nil {
		t.Fatalf("refresh without selection: %v", err)
	}
	if carried.SelectedProfile == nil || carried.SelectedProfile.ID != steve.ID {
		t.Fatalf("binding not carried forward: %+v", carried.SelectedProfile)
	}
}

func TestRefreshRotatesAtMostOnceUnderRace(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	register(t, e, "user@example.com", "correct horse")
	tok := authenticate(t, e, "user@example.com", "correct horse")

	const racers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var minted []string

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := e.Refresh(context.Background(), tok.AccessToken, tok.ClientToken, "")
			if err != nil {
				return
			}
			mu.Lock()
			minted = append(minted, fresh.AccessToken)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// One refresh wins; the rest must fail instead of each minting a
	// live replacement from the same credential.
	if len(minted) != 1 {
		t.Fatalf("%d concurrent refreshes of one token succeeded, want exactly 1", len(minted))
	}
	if err := e.Validate(context.Background(), tok.AccessToken, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("old token after racing refreshes: got %v", err)
	}
	if err := e.Validate(context.Background(), minted[0], ""); err != nil {
		t.Fatalf("winning replacement: %v", err)
	}
}

func TestRefreshRejectsForeignProfile(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	register(t, e, "owner@example.com", "correct horse")
	ownerTok := authenticate(t, e, "owner@example.com", "correct horse")
	foreign := createProfile(t, e, ownerTok.AccessToken, "Steve")

	register(t, e, "other@example.com", "correct horse")
	tok := authenticate(t, e, "other@example.com", "correct horse")

	_, err := e.Refresh(context.Background(), tok.AccessToken, tok.ClientToken, foreign.ID)
	if !errors.Is(err, ErrNotProfileOwner) {
		t.Fatalf("binding a foreign profile: got %v", err)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	register(t, e, "user@example.com", "correct horse")
	tok := authenticate(t, e, "user@example.com", "correct horse")

	e.Invalidate(context.Background(), tok.AccessToken)
	if err := e.Validate(context.Background(), tok.AccessToken, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token after invalidate: got %v", err)
	}

	// Unknown and repeated invalidations are silent no-ops.
	e.Invalidate(context.Background(), tok.AccessToken)
	e.Invalidate(context.Background(), "ffffffffffffffffffffffffffffffff")
}

func TestActiveTokenCap(t *testing.T) {
	e, _ := newTestEngine(t, func(cfg *Config) {
		cfg.Token.ActiveLimit = 3
	})
	register(t, e, "user@example.com", "correct horse")

	tokens := make([]AuthResult, 0, 4)
	for i := 0; i < 4; i++ {
		tokens = append(tokens, authenticate(t, e, "user@example.com", "correct horse"))
	}

	// The fourth authentication crossed the cap, revoking the first
	// three wholesale.
	for i := 0; i < 3; i++ {
		if err := e.Validate(context.Background(), tokens[i].AccessToken, ""); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %d should have been revoked at the cap: %v", i, err)
		}
	}
	if err := e.Validate(context.Background(), tokens[3].AccessToken, ""); err != nil {
		t.Fatalf("newest token: %v", err)
	}
}
