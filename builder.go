package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/keys"
	"github.com/MrEthical07/authcore/refresh"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config

	store        refresh.Store
	keySource    keys.Source
	keyManager   *keys.Manager
	userProvider UserProvider
	auditSink    AuditSink
	logger       *slog.Logger
	clock        func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; zero fields are not merged
// with defaults.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the refresh-token store. Required.
func (b *Builder) WithStore(store refresh.Store) *Builder {
	b.store = store
	return b
}

// WithKeySource loads keys from src instead of the JWKS files named in
// Config.Keys.
func (b *Builder) WithKeySource(src keys.Source) *Builder {
	b.keySource = src
	return b
}

// WithKeyManager shares an existing key manager. It takes precedence over
// WithKeySource and Config.Keys.
func (b *Builder) WithKeyManager(m *keys.Manager) *Builder {
	b.keyManager = m
	return b
}

// WithUserProvider sets the account lookup used on refresh. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink only has an effect when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger routes engine, key and refresh logs to l. Nil discards them.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for every component built.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, wires the key manager, token codec and
// refresh manager, and starts the audit dispatcher. A key load failure is
// not a Build error: the engine starts and token operations report
// ErrUnavailable until keys can be loaded.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("refresh store required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	// -------- KEYS --------
	km := b.keyManager
	if km == nil {
		src := b.keySource
		if src == nil {
			src = keys.FileSource{
				Dir:         cfg.Keys.Dir,
				PublicFile:  cfg.Keys.PublicFile,
				PrivateFile: cfg.Keys.PrivateFile,
			}
		}
		km = keys.NewManager(context.Background(), src, keys.Options{
			ActiveKeyID:   cfg.Keys.ActiveKeyID,
			RetryInterval: cfg.Keys.RetryInterval,
			Logger:        b.logger,
			Clock:         now,
		})
	}

	// -------- TOKEN CODEC --------
	codec, err := jwt.NewCodec(jwt.Config{
		Algorithm: keys.Algorithm(cfg.JWT.Algorithm),
		AccessTTL: cfg.JWT.AccessTTL,
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		Leeway:    cfg.JWT.Leeway,
		Clock:     now,
	}, km)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		keys:         km,
		codec:        codec,
		userProvider: b.userProvider,
		log:          logging.New(b.logger).With("component", "engine"),
		logger:       b.logger,
		now:          now,
		metrics:      NewMetrics(cfg.Metrics),
	}

	// -------- REFRESH MANAGER --------
	rm, err := refresh.NewManager(b.store, refresh.Config{
		TTL:           cfg.Refresh.TTL,
		RotationGrace: cfg.Refresh.RotationGrace,
		Logger:        b.logger,
		Clock:         now,
		OnReuse:       engine.onReuse,
	})
	if err != nil {
		return nil, err
	}
	engine.refresh = rm

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)

	b.built = true

	return engine, nil
}
