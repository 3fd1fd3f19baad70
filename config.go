package authcore

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/keys"
	"github.com/MrEthical07/authcore/refresh"
)

// Config holds every engine setting. All fields have working defaults, see
// DefaultConfig.
//
// Config instances are read during Build and copied; later changes have no
// effect on a built Engine.
type Config struct {
	JWT     JWTConfig
	Keys    KeysConfig
	Refresh RefreshConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access tokens.
type JWTConfig struct {
	AccessTTL time.Duration
	Issuer    string
	Audience  string
	// Algorithm pins the signing algorithm ("RS256", "ES256", "EdDSA").
	// Empty accepts whatever the key set provides.
	Algorithm string
	// Leeway tolerates clock skew when checking exp and iat. At most two
	// minutes.
	Leeway time.Duration
}

/*
====================================
KEYS CONFIG
====================================
*/

// KeysConfig locates the JWKS documents used when no key source is given to
// the Builder.
type KeysConfig struct {
	// Dir holds the public and private JWKS files. Empty searches $JWKS_DIR,
	// ./config and ../config.
	Dir         string
	PublicFile  string
	PrivateFile string
	// ActiveKeyID selects the signing key. Empty uses the first private key.
	ActiveKeyID string
	// RetryInterval throttles reload attempts while keys are unavailable.
	RetryInterval time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh tokens.
type RefreshConfig struct {
	TTL time.Duration
	// SweepInterval is the pause between background prune runs started by
	// Engine.RunSweeper.
	SweepInterval time.Duration
	// RotationGrace answers a just-rotated token with ErrInvalidToken
	// instead of reuse. Zero picks refresh.DefaultRotationGrace, negative
	// disables it.
	RotationGrace time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking callers when the buffer is
	// full. Dropped events are counted, see Engine.AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Issuer:    "authcore",
			Audience:  "authcore-clients",
			Leeway:    30 * time.Second,
		},
		Keys: KeysConfig{
			PublicFile:    keys.DefaultPublicFile,
			PrivateFile:   keys.DefaultPrivateFile,
			RetryInterval: keys.DefaultRetryInterval,
		},
		Refresh: RefreshConfig{
			TTL:           7 * 24 * time.Hour,
			SweepInterval: time.Hour,
			RotationGrace: refresh.DefaultRotationGrace,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return defaultConfig()
}

// Config is a plain value type today; cloneConfig keeps every copy point in
// one place.
func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer must be set")
	}
	if strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must be set")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	switch keys.Algorithm(c.JWT.Algorithm) {
	case "", keys.RS256, keys.ES256, keys.EdDSA:
	default:
		return errors.New("unsupported JWT Algorithm")
	}

	// Keys
	if c.Keys.RetryInterval < 0 {
		return errors.New("Keys RetryInterval must be >= 0")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if c.Refresh.SweepInterval < 0 {
		return errors.New("Refresh SweepInterval must be >= 0")
	}
	if c.Refresh.RotationGrace >= c.Refresh.TTL {
		return errors.New("Refresh RotationGrace must be below TTL")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
