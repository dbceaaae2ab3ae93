// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

// Package config loads QueryHub configuration from defaults, an optional
// YAML file, command-line flags and environment secrets, in that order of
// increasing precedence.
package config

import (
	"slices"
	"time"

	"github.com/samber/oops"

	"github.com/queryhub/queryhub/internal/auth"
	"github.com/queryhub/queryhub/internal/logging"
)

// Session store backends.
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config is the complete QueryHub configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server" json:"server" yaml:"server"`
	Observability ObservabilityConfig `koanf:"observability" json:"observability" yaml:"observability"`
	Log           LogConfig           `koanf:"log" json:"log" yaml:"log"`
	Database      DatabaseConfig      `koanf:"database" json:"database" yaml:"database"`
	Redis         RedisConfig         `koanf:"redis" json:"redis" yaml:"redis"`
	Auth          AuthConfig          `koanf:"auth" json:"auth" yaml:"auth"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr              string        `koanf:"addr" json:"addr" yaml:"addr" jsonschema:"description=API listen address"`
	Production        bool          `koanf:"production" json:"production" yaml:"production"`
	AllowedOrigins    []string      `koanf:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins" jsonschema:"description=CORS origin glob patterns"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes" json:"max_body_bytes" yaml:"max_body_bytes" jsonschema:"minimum=1"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" json:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ObservabilityConfig configures the metrics and health server.
type ObservabilityConfig struct {
	Addr string `koanf:"addr" json:"addr" yaml:"addr" jsonschema:"description=Metrics and health listen address; empty disables it"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `koanf:"format" json:"format" yaml:"format" jsonschema:"enum=json,enum=text"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL        string `koanf:"url" json:"url" yaml:"url" jsonschema:"description=PostgreSQL URL; prefer DATABASE_URL"`
	MaxConns   int32  `koanf:"max_conns" json:"max_conns" yaml:"max_conns" jsonschema:"minimum=0"`
	MaxRetries uint64 `koanf:"max_retries" json:"max_retries" yaml:"max_retries"`
}

// RedisConfig configures the optional Redis session store.
type RedisConfig struct {
	URL       string `koanf:"url" json:"url" yaml:"url" jsonschema:"description=Redis URL; prefer REDIS_URL"`
	KeyPrefix string `koanf:"key_prefix" json:"key_prefix" yaml:"key_prefix"`
}

// AuthConfig configures credentials and sessions.
type AuthConfig struct {
	OperationTimeout time.Duration   `koanf:"operation_timeout" json:"operation_timeout" yaml:"operation_timeout"`
	Hash             HashConfig      `koanf:"hash" json:"hash" yaml:"hash"`
	Session          SessionConfig   `koanf:"session" json:"session" yaml:"session"`
	Federated        FederatedConfig `koanf:"federated" json:"federated" yaml:"federated"`
}

// HashConfig holds the argon2id parameters and the hashing pool size.
type HashConfig struct {
	Time    uint32 `koanf:"time" json:"time" yaml:"time" jsonschema:"minimum=1"`
	Memory  uint32 `koanf:"memory" json:"memory" yaml:"memory" jsonschema:"minimum=8,description=Memory in KiB"`
	Threads uint8  `koanf:"threads" json:"threads" yaml:"threads" jsonschema:"minimum=1"`
	Workers int    `koanf:"workers" json:"workers" yaml:"workers" jsonschema:"minimum=0,description=Concurrent hash operations; 0 uses GOMAXPROCS"`
}

// SessionConfig configures sessions and the session cookie.
type SessionConfig struct {
	TTL             time.Duration `koanf:"ttl" json:"ttl" yaml:"ttl"`
	Store           string        `koanf:"store" json:"store" yaml:"store" jsonschema:"enum=postgres,enum=redis"`
	CookieName      string        `koanf:"cookie_name" json:"cookie_name" yaml:"cookie_name"`
	CookieSecure    bool          `koanf:"cookie_secure" json:"cookie_secure" yaml:"cookie_secure"`
	JanitorInterval time.Duration `koanf:"janitor_interval" json:"janitor_interval" yaml:"janitor_interval"`
}

// FederatedConfig configures Google login. It is enabled when a client id
// is set.
type FederatedConfig struct {
	ClientID     string `koanf:"client_id" json:"client_id" yaml:"client_id"`
	ClientSecret string `koanf:"client_secret" json:"client_secret" yaml:"client_secret" jsonschema:"description=Prefer GOOGLE_CLIENT_SECRET"`
	CallbackURL  string `koanf:"callback_url" json:"callback_url" yaml:"callback_url"`
	SuccessURL   string `koanf:"success_url" json:"success_url" yaml:"success_url"`
}

// Enabled reports whether federated login is configured.
func (f FederatedConfig) Enabled() bool {
	return f.ClientID != ""
}

// Default returns the built-in configuration.
func Default() Config {
	hash := auth.DefaultArgon2Params()
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			AllowedOrigins:    []string{"http://localhost:*"},
			MaxBodyBytes:      1 << 20,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
		},
		Observability: ObservabilityConfig{Addr: ":9100"},
		Log:           LogConfig{Level: "info", Format: "json"},
		Database:      DatabaseConfig{MaxRetries: 5},
		Redis:         RedisConfig{KeyPrefix: "queryhub:"},
		Auth: AuthConfig{
			OperationTimeout: auth.DefaultOperationTimeout,
			Hash: HashConfig{
				Time:    hash.Time,
				Memory:  hash.Memory,
				Threads: hash.Threads,
			},
			Session: SessionConfig{
				TTL:             auth.DefaultSessionTTL,
				Store:           SessionStorePostgres,
				CookieName:      "queryhub-session-cookie",
				JanitorInterval: 10 * time.Minute,
			},
			Federated: FederatedConfig{SuccessURL: "/"},
		},
	}
}

// Argon2Params returns the hashing parameters with the library's salt and
// key lengths.
func (h HashConfig) Argon2Params() auth.Argon2Params {
	p := auth.DefaultArgon2Params()
	p.Time = h.Time
	p.Memory = h.Memory
	p.Threads = h.Threads
	return p
}

// Validate checks cross-field rules the schema cannot express.
func (c *Config) Validate() error {
	invalid := func(field, msg string) error {
		return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s: %s", field, msg)
	}

	if c.Server.Addr == "" {
		return invalid("server.addr", "is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return invalid("server.max_body_bytes", "must be positive")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error")
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		return invalid("log.format", "must be json or text")
	}
	if c.Auth.Session.TTL <= 0 {
		return invalid("auth.session.ttl", "must be positive")
	}
	if c.Auth.OperationTimeout <= 0 {
		return invalid("auth.operation_timeout", "must be positive")
	}
	if c.Auth.Hash.Time == 0 || c.Auth.Hash.Memory == 0 || c.Auth.Hash.Threads == 0 {
		return invalid("auth.hash", "time, memory and threads must be positive")
	}
	switch c.Auth.Session.Store {
	case SessionStorePostgres:
	case SessionStoreRedis:
		if c.Redis.URL == "" {
			return invalid("redis.url", "is required when auth.session.store is redis")
		}
	default:
		return invalid("auth.session.store", "must be postgres or redis")
	}
	if f := c.Auth.Federated; f.Enabled() && (f.ClientSecret == "" || f.CallbackURL == "") {
		return invalid("auth.federated", "client_secret and callback_url are required with client_id")
	}
	return nil
}

const redacted = "[redacted]"

// Redacted returns a copy with secrets replaced, for display.
func (c Config) Redacted() Config {
	if c.Database.URL != "" {
		c.Database.URL = redacted
	}
	if c.Redis.URL != "" {
		c.Redis.URL = redacted
	}
	if c.Auth.Federated.ClientSecret != "" {
		c.Auth.Federated.ClientSecret = redacted
	}
	c.Server.AllowedOrigins = slices.Clone(c.Server.AllowedOrigins)
	return c
}
