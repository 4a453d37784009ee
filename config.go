package yggdrasil

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// Config carries every tunable of the server. Instances are populated
// once at startup and treated as immutable afterwards.
type Config struct {
	Server       ServerConfig       `ini:"server"`
	Token        TokenConfig        `ini:"token"`
	Registration RegistrationConfig `ini:"registration"`
	Password     PasswordConfig     `ini:"password"`
	RateLimit    RateLimitConfig    `ini:"rate_limit"`
	Upstream     UpstreamConfig     `ini:"upstream"`
	Notify       NotifyConfig       `ini:"notify"`
	Storage      StorageConfig      `ini:"storage"`
}

/*
====================================
SERVER CONFIG
====================================
*/

// ServerConfig covers the HTTP listener and the instance identity
// advertised in the metadata document.
type ServerConfig struct {
	Name          string   `ini:"name"`
	ListenAddr    string   `ini:"listen_addr"`
	BaseURL       string   `ini:"base_url"`
	SkinDomains   []string `ini:"skin_domains" delim:","`
	SignatureKey  string   `ini:"signature_key"`
	Homepage      string   `ini:"homepage"`
	MaxUploadSize int64    `ini:"max_upload_size"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls the bearer-token lifecycle.
type TokenConfig struct {
	// Validity is the full token lifetime; tokens older than half of it
	// degrade to temporarily-valid.
	Validity time.Duration `ini:"validity"`
	// ActiveLimit caps live tokens per account, zero meaning unlimited.
	ActiveLimit int `ini:"active_limit"`
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig controls account creation and profile limits.
type RegistrationConfig struct {
	Enabled bool `ini:"enabled"`
	// RequireInvite gates registration behind invite codes. The very
	// first account is always exempt and becomes the administrator.
	RequireInvite bool `ini:"require_invite"`
	// InviteCodes are shared codes configured by the operator, each
	// throttled independently of personal codes.
	InviteCodes []string `ini:"invite_codes" delim:","`
	// PersonalInvites lets every account share its derived invite code.
	PersonalInvites bool          `ini:"personal_invites"`
	InviteCooldown  time.Duration `ini:"invite_cooldown"`
	// AllowNicknameLogin accepts non-email usernames at authentication
	// time by resolving them as profile names.
	AllowNicknameLogin bool `ini:"allow_nickname_login"`
	MaxProfiles        int  `ini:"max_profiles"`
	MinPasswordLength  int  `ini:"min_password_length"`
	MaxNicknameLength  int  `ini:"max_nickname_length"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32 `ini:"memory"` // in KB
	Time        uint32 `ini:"time"`
	Parallelism uint8  `ini:"parallelism"`
	SaltLength  uint32 `ini:"salt_length"`
	KeyLength   uint32 `ini:"key_length"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the fixed-window throttles on credential
// endpoints.
type RateLimitConfig struct {
	// LoginWindow is the minimum spacing between authentication
	// attempts per account.
	LoginWindow time.Duration `ini:"login_window"`
}

/*
====================================
UPSTREAM CONFIG
====================================
*/

// UpstreamConfig enables proxy mode against a remote session server.
type UpstreamConfig struct {
	Enabled    bool          `ini:"enabled"`
	SessionURL string        `ini:"session_url"`
	Timeout    time.Duration `ini:"timeout"`
}

/*
====================================
NOTIFY CONFIG
====================================
*/

// NotifyConfig controls the asynchronous event dispatcher.
type NotifyConfig struct {
	Enabled    bool   `ini:"enabled"`
	WebhookURL string `ini:"webhook_url"`
	BufferSize int    `ini:"buffer_size"`
	DropIfFull bool   `ini:"drop_if_full"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig covers the sqlite database and flush cadence.
type StorageConfig struct {
	DatabasePath string `ini:"database_path"`
	// FlushInterval is the debounce window between durable writes of
	// dirty records; zero flushes on shutdown only.
	FlushInterval time.Duration `ini:"flush_interval"`
}

// DefaultConfig returns the configuration a fresh instance runs with
// before any file overrides.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:          "yggdrasil",
			ListenAddr:    ":8080",
			BaseURL:       "http://localhost:8080",
			SignatureKey:  "signature.pem",
			MaxUploadSize: 1 << 20,
		},
		Token: TokenConfig{
			Validity:    72 * time.Hour,
			ActiveLimit: 10,
		},
		Registration: RegistrationConfig{
			Enabled:            true,
			RequireInvite:      false,
			PersonalInvites:    true,
			InviteCooldown:     time.Hour,
			AllowNicknameLogin: true,
			MaxProfiles:        5,
			MinPasswordLength:  8,
			MaxNicknameLength:  30,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		RateLimit: RateLimitConfig{
			LoginWindow: 3 * time.Second,
		},
		Upstream: UpstreamConfig{
			Enabled:    false,
			SessionURL: "https://sessionserver.mojang.com",
			Timeout:    5 * time.Second,
		},
		Notify: NotifyConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Storage: StorageConfig{
			DatabasePath:  "yggdrasil.db",
			FlushInterval: 5 * time.Second,
		},
	}
}

// LoadConfig reads an INI file over the defaults. A missing file is an
// error; run with defaults explicitly instead.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	file, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	if err := file.MapTo(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("config: server listen_addr is required")
	}
	if c.Server.BaseURL == "" {
		return errors.New("config: server base_url is required")
	}
	if c.Token.Validity <= 0 {
		return errors.New("config: token validity must be positive")
	}
	if c.Token.ActiveLimit < 0 {
		return errors.New("config: token active_limit must not be negative")
	}
	if c.Registration.MaxProfiles <= 0 {
		return errors.New("config: registration max_profiles must be positive")
	}
	if c.Registration.MinPasswordLength < 1 {
		return errors.New("config: registration min_password_length must be positive")
	}
	if c.Registration.InviteCooldown < 0 {
		return errors.New("config: registration invite_cooldown must not be negative")
	}
	if c.RateLimit.LoginWindow < 0 {
		return errors.New("config: rate_limit login_window must not be negative")
	}
	if c.Upstream.Enabled && c.Upstream.SessionURL == "" {
		return errors.New("config: upstream session_url is required in proxy mode")
	}
	if c.Notify.Enabled && c.Notify.BufferSize <= 0 {
		return errors.New("config: notify buffer_size must be positive")
	}
	if c.Storage.DatabasePath == "" {
		return errors.New("config: storage database_path is required")
	}
	return nil
}
