package yggdrasil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yggdrasil.ini")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
name = My Server
listen_addr = :9000
base_url = https://auth.example.com
skin_domains = auth.example.com,cdn.example.com

[token]
validity = 24h
active_limit = 3

[registration]
require_invite = true
invite_codes = alpha,beta
invite_cooldown = 30m
allow_nickname_login = false

[upstream]
enabled = true
session_url = https://sessionserver.example.com
timeout = 2s

[storage]
database_path = /tmp/test.db
flush_interval = 1s
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Name != "My Server" || cfg.Server.ListenAddr != ":9000" {
		t.Fatalf("server section: %+v", cfg.Server)
	}
	if len(cfg.Server.SkinDomains) != 2 || cfg.Server.SkinDomains[1] != "cdn.example.com" {
		t.Fatalf("skin domains: %v", cfg.Server.SkinDomains)
	}
	if cfg.Token.Validity != 24*time.Hour || cfg.Token.ActiveLimit != 3 {
		t.Fatalf("token section: %+v", cfg.Token)
	}
	if !cfg.Registration.RequireInvite || cfg.Registration.AllowNicknameLogin {
		t.Fatalf("registration section: %+v", cfg.Registration)
	}
	if len(cfg.Registration.InviteCodes) != 2 || cfg.Registration.InviteCodes[0] != "alpha" {
		t.Fatalf("invite codes: %v", cfg.Registration.InviteCodes)
	}
	if cfg.Registration.InviteCooldown != 30*time.Minute {
		t.Fatalf("invite cooldown: %v", cfg.Registration.InviteCooldown)
	}
	if !cfg.Upstream.Enabled || cfg.Upstream.Timeout != 2*time.Second {
		t.Fatalf("upstream section: %+v", cfg.Upstream)
	}

	// Untouched sections keep their defaults.
	if cfg.Password.Memory != 64*1024 {
		t.Fatalf("password defaults lost: %+v", cfg.Password)
	}
	if cfg.Registration.MaxProfiles != 5 {
		t.Fatalf("registration defaults lost: %+v", cfg.Registration)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.ini")); err == nil {
		t.Fatal("missing file should be an error")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen addr", func(c *Config) { c.Server.ListenAddr = "" }},
		{"empty base url", func(c *Config) { c.Server.BaseURL = "" }},
		{"zero token validity", func(c *Config) { c.Token.Validity = 0 }},
		{"negative active limit", func(c *Config) { c.Token.ActiveLimit = -1 }},
		{"zero max profiles", func(c *Config) { c.Registration.MaxProfiles = 0 }},
		{"zero min password", func(c *Config) { c.Registration.MinPasswordLength = 0 }},
		{"proxy without url", func(c *Config) {
			c.Upstream.Enabled = true
			c.Upstream.SessionURL = ""
		}},
		{"empty database path", func(c *Config) { c.Storage.DatabasePath = "" }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: validation passed, want error", tc.name)
		}
	}

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestDerivePersonalInviteShape(t *testing.T) {
	a := derivePersonalInvite("user-a", "192.0.2.1", "$argon2id$hash-a")
	b := derivePersonalInvite("user-b", "192.0.2.1", "$argon2id$hash-b")

	if len(a) != personalInviteLength || len(b) != personalInviteLength {
		t.Fatalf("code lengths: %d, %d", len(a), len(b))
	}
	if a == b {
		t.Fatal("distinct inputs produced the same code")
	}
	// Deterministic for the same inputs.
	if a != derivePersonalInvite("user-a", "192.0.2.1", "$argon2id$hash-a") {
		t.Fatal("derivation is not deterministic")
	}
}
