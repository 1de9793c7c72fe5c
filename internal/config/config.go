package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP        HTTPConfig
	GRPC        GRPCConfig
	Postgres    PostgresConfig
	Definitions DefinitionsConfig
	Auth        AuthConfig
	Log         LogConfig
	RateLimit   RateLimitConfig
	Cache       CacheConfig
}

type HTTPConfig struct {
	Addr         string
	MaxBodyBytes int64
}

type GRPCConfig struct {
	Addr string
}

type PostgresConfig struct {
	DSN string
}

type DefinitionsConfig struct {
	// File is a YAML definitions document. Empty means built-in defaults
	// unless a Postgres DSN is configured.
	File string
}

type AuthConfig struct {
	Secret      string
	IssueTokens bool
	TokenTTL    time.Duration
}

type LogConfig struct {
	Level string
}

type RateLimitConfig struct {
	Burst     int
	PerSecond int
}

type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// Load reads configuration from AUTHZ_* environment variables and, when
// path is set, a config file (any format viper understands).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AUTHZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:         v.GetString("http.addr"),
			MaxBodyBytes: v.GetInt64("http.max_body_bytes"),
		},
		GRPC: GRPCConfig{
			Addr: v.GetString("grpc.addr"),
		},
		Postgres: PostgresConfig{
			DSN: v.GetString("pg.dsn"),
		},
		Definitions: DefinitionsConfig{
			File: v.GetString("definitions.file"),
		},
		Auth: AuthConfig{
			Secret:      v.GetString("auth.secret"),
			IssueTokens: v.GetBool("auth.issue_tokens"),
			TokenTTL:    v.GetDuration("auth.token_ttl"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		RateLimit: RateLimitConfig{
			Burst:     v.GetInt("ratelimit.burst"),
			PerSecond: v.GetInt("ratelimit.per_second"),
		},
		Cache: CacheConfig{
			Size: v.GetInt("cache.size"),
			TTL:  v.GetDuration("cache.ttl"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.max_body_bytes", int64(1<<20))
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("pg.dsn", "")
	v.SetDefault("definitions.file", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issue_tokens", false)
	v.SetDefault("auth.token_ttl", 15*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("ratelimit.burst", 50)
	v.SetDefault("ratelimit.per_second", 25)
	v.SetDefault("cache.size", 64)
	v.SetDefault("cache.ttl", 30*time.Second)
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("config: http.addr is required")
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		return errors.New("config: ratelimit values must be positive")
	}
	if c.Auth.IssueTokens && c.Auth.Secret == "" {
		return errors.New("config: auth.issue_tokens requires auth.secret")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: auth.token_ttl must be positive")
	}
	if c.Postgres.DSN != "" && c.Definitions.File != "" {
		return errors.New("config: set either pg.dsn or definitions.file, not both")
	}
	return nil
}
