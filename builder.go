package yggdrasil

import (
	"errors"
	"log/slog"
	"time"

	"github.com/mcauthd/yggdrasil/identity"
	"github.com/mcauthd/yggdrasil/internal/notify"
	"github.com/mcauthd/yggdrasil/internal/rate"
	"github.com/mcauthd/yggdrasil/password"
	"github.com/mcauthd/yggdrasil/session"
	"github.com/mcauthd/yggdrasil/sign"
	"github.com/mcauthd/yggdrasil/token"
)

// Builder assembles an Engine from its collaborators. Configure during
// initialization, call Build once, discard.
type Builder struct {
	config  Config
	records identity.RecordStore

	textures   TextureStore
	upstream   UpstreamProvider
	signer     *sign.Signer
	notifySink notify.Sink
	logger     *slog.Logger
	clock      func() time.Time

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRecordStore sets the durable account/profile backend. Required.
func (b *Builder) WithRecordStore(rs identity.RecordStore) *Builder {
	b.records = rs
	return b
}

// WithTextureStore sets the texture blob backend. Required.
func (b *Builder) WithTextureStore(ts TextureStore) *Builder {
	b.textures = ts
	return b
}

// WithUpstream sets the federated provider consulted in proxy mode.
// Ignored unless the upstream config section enables proxying.
func (b *Builder) WithUpstream(up UpstreamProvider) *Builder {
	b.upstream = up
	return b
}

// WithSigner sets the profile-export signature service. Required.
func (b *Builder) WithSigner(s *sign.Signer) *Builder {
	b.signer = s
	return b
}

// WithNotifySink sets the event sink. Optional; without one, enabled
// notifications fall back to a no-op sink.
func (b *Builder) WithNotifySink(sink notify.Sink) *Builder {
	b.notifySink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock injects a time source, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration, wires the stores, and returns a
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.records == nil {
		return nil, errors.New("record store is required")
	}
	if b.textures == nil {
		return nil, errors.New("texture store is required")
	}
	if b.signer == nil {
		return nil, errors.New("signer is required")
	}
	if b.config.Upstream.Enabled && b.upstream == nil {
		return nil, errors.New("proxy mode requires an upstream provider")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	users, err := identity.NewStore(b.records, b.config.Storage.FlushInterval, logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      b.config,
		log:      logger,
		now:      clock,
		users:    users,
		tokens:   token.NewStoreWithClock(b.config.Token.Validity, clock),
		sessions: session.NewStoreWithClock(clock),
		throttle: rate.NewWithClock(clock),
		hasher:   hasher,
		signer:   b.signer,
		textures: b.textures,
		upstream: b.upstream,
		events: notify.NewDispatcher(notify.Config{
			Enabled:    b.config.Notify.Enabled,
			BufferSize: b.config.Notify.BufferSize,
			DropIfFull: b.config.Notify.DropIfFull,
		}, b.notifySink),
	}

	b.built = true
	return e, nil
}
