package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcauthd/yggdrasil/identity"
)

func TestHasJoinedVerified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/minecraft/hasJoined" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("username") != "Notch" || q.Get("serverId") != "abc123" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("ip") != "203.0.113.7" {
			t.Errorf("ip not forwarded: %v", q)
		}
		json.NewEncoder(w).Encode(identity.ProfileExport{
			ID:   "069a79f444e94726a5befca90e38aaf5",
			Name: "Notch",
			Properties: []identity.ProfileProperty{
				{Name: "textures", Value: "e30=", Signature: "sig"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	export, err := c.HasJoined(context.Background(), "abc123", "Notch", "203.0.113.7")
	if err != nil {
		t.Fatalf("HasJoined: %v", err)
	}
	if export.ID != "069a79f444e94726a5befca90e38aaf5" || export.Name != "Notch" {
		t.Fatalf("unexpected export: %+v", export)
	}
	if len(export.Properties) != 1 || export.Properties[0].Signature != "sig" {
		t.Fatalf("properties not preserved: %+v", export.Properties)
	}
}

func TestHasJoinedNotVerified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.HasJoined(context.Background(), "abc123", "Notch", "")
	if !errors.Is(err, ErrNotVerified) {
		t.Fatalf("want ErrNotVerified, got %v", err)
	}
}

func TestHasJoinedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.HasJoined(context.Background(), "abc123", "Notch", "")
	if err == nil || errors.Is(err, ErrNotVerified) {
		t.Fatalf("want transport error, got %v", err)
	}
}

func TestJoinForwardsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/minecraft/join" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["accessToken"] != "tok" || body["selectedProfile"] != "pid" || body["serverId"] != "sid" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if err := c.Join(context.Background(), "tok", "pid", "sid"); err != nil {
		t.Fatalf("Join: %v", err)
	}
}

func TestHasJoinedHonorsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, 10*time.Second)
	_, err := c.HasJoined(ctx, "abc123", "Notch", "")
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestAcceptableUsername(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"Notch", true},
		{"player_1", true},
		{"A", true},
		{"sixteen_chars_ok", true},
		{"", false},
		{"seventeen_chars__", false},
		{"has space", false},
		{"émile", false},
		{"dot.name", false},
	}
	for _, tc := range cases {
		if got := AcceptableUsername(tc.name); got != tc.want {
			t.Errorf("AcceptableUsername(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
