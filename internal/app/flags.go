package app

import (
	"flag"
	"io"
	"strings"
)

// configPath returns the value of -config (or -c) without parsing the other
// flags.
func configPath(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := strings.TrimPrefix(args[i], "-")
		arg = strings.TrimPrefix(arg, "-")
		name, value, hasValue := strings.Cut(arg, "=")
		if name != "config" && name != "c" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// parseFlags overlays command-line flags onto config. Flag defaults are the
// values already in config, so an absent flag changes nothing.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("authcore", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var ignored string
	fs.StringVar(&ignored, "config", "", "path to JSON config file")
	fs.StringVar(&ignored, "c", "", "path to JSON config file (short)")

	fs.StringVar(&config.Addr, "addr", config.Addr, "HTTP listen address")
	fs.BoolVar(&config.Dev, "dev", config.Dev, "expose the dev-login route")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "debug, info, warn or error")

	fs.StringVar(&config.Store, "store", config.Store, "refresh store: memory, redis, postgres, miniredis")
	fs.StringVar(&config.RedisAddr, "redis-addr", config.RedisAddr, "redis address")
	fs.StringVar(&config.RedisPrefix, "redis-prefix", config.RedisPrefix, "redis key prefix")
	fs.StringVar(&config.PostgresDSN, "postgres-dsn", config.PostgresDSN, "PostgreSQL DSN")

	fs.StringVar(&config.KeysDir, "keys-dir", config.KeysDir, "directory holding the JWKS documents")
	fs.StringVar(&config.ActiveKeyID, "active-kid", config.ActiveKeyID, "signing key id")
	fs.StringVar(&config.S3Bucket, "s3-bucket", config.S3Bucket, "read JWKS documents from this bucket")
	fs.StringVar(&config.S3Region, "s3-region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3Endpoint, "s3-endpoint", config.S3Endpoint, "S3 compatible endpoint")
	fs.StringVar(&config.S3AccessKeyID, "s3-access-key", config.S3AccessKeyID, "S3 access key id")
	fs.StringVar(&config.S3SecretKey, "s3-secret-key", config.S3SecretKey, "S3 secret access key")
	fs.DurationVar(&config.KeyRetryInterval, "key-retry", config.KeyRetryInterval, "minimum delay between key reload attempts")

	fs.StringVar(&config.Algorithm, "alg", config.Algorithm, "pin the signing algorithm: RS256, ES256 or EdDSA")
	fs.StringVar(&config.Issuer, "issuer", config.Issuer, "token issuer")
	fs.StringVar(&config.Audience, "audience", config.Audience, "token audience")
	fs.DurationVar(&config.AccessTTL, "access-ttl", config.AccessTTL, "access token lifetime")
	fs.DurationVar(&config.RefreshTTL, "refresh-ttl", config.RefreshTTL, "refresh token lifetime")
	fs.DurationVar(&config.SweepInterval, "sweep-interval", config.SweepInterval, "expired record cleanup interval")

	fs.BoolVar(&config.AuditLog, "audit-log", config.AuditLog, "write audit events to stdout as JSON lines")
	fs.StringVar(&config.MetricsRole, "metrics-role", config.MetricsRole, "role required to read /metrics; empty keeps it public")

	fs.IntVar(&config.RefreshRateLimit, "refresh-rate", config.RefreshRateLimit, "refresh attempts per client IP and window (redis stores only)")
	fs.DurationVar(&config.RefreshRateWindow, "refresh-rate-window", config.RefreshRateWindow, "refresh throttle window")

	return fs.Parse(args)
}
