package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/MrEthical07/authcore"
)

// duration accepts a Go duration string ("15m") or integer nanoseconds.
type duration struct {
	time.Duration
}

func (d duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

type jsonUser struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

// jsonConfig is the file shape of Config. It is seeded from the current
// values so keys missing from the file keep them.
type jsonConfig struct {
	Addr     string `json:"addr"`
	Dev      bool   `json:"dev"`
	LogLevel string `json:"log_level"`

	Store       string `json:"store"`
	RedisAddr   string `json:"redis_addr"`
	RedisPrefix string `json:"redis_prefix"`
	PostgresDSN string `json:"postgres_dsn"`

	KeysDir          string   `json:"keys_dir"`
	ActiveKeyID      string   `json:"active_key_id"`
	S3Bucket         string   `json:"s3_bucket"`
	S3Region         string   `json:"s3_region"`
	S3Endpoint       string   `json:"s3_endpoint"`
	S3AccessKeyID    string   `json:"s3_access_key_id"`
	S3SecretKey      string   `json:"s3_secret_key"`
	S3PublicObject   string   `json:"s3_public_object"`
	S3PrivateObject  string   `json:"s3_private_object"`
	KeyRetryInterval duration `json:"key_retry_interval"`

	Algorithm     string   `json:"algorithm"`
	Issuer        string   `json:"issuer"`
	Audience      string   `json:"audience"`
	AccessTTL     duration `json:"access_ttl"`
	RefreshTTL    duration `json:"refresh_ttl"`
	SweepInterval duration `json:"sweep_interval"`

	AuditLog    bool   `json:"audit_log"`
	MetricsRole string `json:"metrics_role"`

	RefreshRateLimit  int      `json:"refresh_rate_limit"`
	RefreshRateWindow duration `json:"refresh_rate_window"`

	Users []jsonUser `json:"users"`
}

func loadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := toJSON(cfg)
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	fromJSON(cfg, c)
	return nil
}

func toJSON(cfg *Config) jsonConfig {
	c := jsonConfig{
		Addr:             cfg.Addr,
		Dev:              cfg.Dev,
		LogLevel:         cfg.LogLevel,
		Store:            cfg.Store,
		RedisAddr:        cfg.RedisAddr,
		RedisPrefix:      cfg.RedisPrefix,
		PostgresDSN:      cfg.PostgresDSN,
		KeysDir:          cfg.KeysDir,
		ActiveKeyID:      cfg.ActiveKeyID,
		S3Bucket:         cfg.S3Bucket,
		S3Region:         cfg.S3Region,
		S3Endpoint:       cfg.S3Endpoint,
		S3AccessKeyID:    cfg.S3AccessKeyID,
		S3SecretKey:      cfg.S3SecretKey,
		S3PublicObject:   cfg.S3PublicObject,
		S3PrivateObject:  cfg.S3PrivateObject,
		KeyRetryInterval: duration{cfg.KeyRetryInterval},
		Algorithm:        cfg.Algorithm,
		Issuer:           cfg.Issuer,
		Audience:         cfg.Audience,
		AccessTTL:        duration{cfg.AccessTTL},
		RefreshTTL:       duration{cfg.RefreshTTL},
		SweepInterval:    duration{cfg.SweepInterval},
		AuditLog:         cfg.AuditLog,
		MetricsRole:      cfg.MetricsRole,

		RefreshRateLimit:  cfg.RefreshRateLimit,
		RefreshRateWindow: duration{cfg.RefreshRateWindow},
	}
	for _, u := range cfg.Users {
		c.Users = append(c.Users, jsonUser{UserID: u.UserID, Email: u.Email, Role: u.Role, Active: u.Active})
	}
	return c
}

func fromJSON(cfg *Config, c jsonConfig) {
	cfg.Addr = c.Addr
	cfg.Dev = c.Dev
	cfg.LogLevel = c.LogLevel
	cfg.Store = c.Store
	cfg.RedisAddr = c.RedisAddr
	cfg.RedisPrefix = c.RedisPrefix
	cfg.PostgresDSN = c.PostgresDSN
	cfg.KeysDir = c.KeysDir
	cfg.ActiveKeyID = c.ActiveKeyID
	cfg.S3Bucket = c.S3Bucket
	cfg.S3Region = c.S3Region
	cfg.S3Endpoint = c.S3Endpoint
	cfg.S3AccessKeyID = c.S3AccessKeyID
	cfg.S3SecretKey = c.S3SecretKey
	cfg.S3PublicObject = c.S3PublicObject
	cfg.S3PrivateObject = c.S3PrivateObject
	cfg.KeyRetryInterval = c.KeyRetryInterval.Duration
	cfg.Algorithm = c.Algorithm
	cfg.Issuer = c.Issuer
	cfg.Audience = c.Audience
	cfg.AccessTTL = c.AccessTTL.Duration
	cfg.RefreshTTL = c.RefreshTTL.Duration
	cfg.SweepInterval = c.SweepInterval.Duration
	cfg.AuditLog = c.AuditLog
	cfg.MetricsRole = c.MetricsRole
	cfg.RefreshRateLimit = c.RefreshRateLimit
	cfg.RefreshRateWindow = c.RefreshRateWindow.Duration

	cfg.Users = nil
	for _, u := range c.Users {
		cfg.Users = append(cfg.Users, authcore.UserRecord{UserID: u.UserID, Email: u.Email, Role: u.Role, Active: u.Active})
	}
}
