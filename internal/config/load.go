// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package config

import (
	"bytes"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"
)

// Secrets are read from the environment and override any file or flag value.
type Secrets struct {
	DatabaseURL        string `env:"DATABASE_URL"`
	RedisURL           string `env:"REDIS_URL"`
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`
	CookieSecure       *bool  `env:"SESSION_COOKIE_SECURE"`
}

// LoadOptions tells Load where to read from.
type LoadOptions struct {
	// Path is an optional YAML file.
	Path string
	// Flags are applied over the file. Flags left at their default only fill
	// keys the file did not set.
	Flags *pflag.FlagSet
	// Environ replaces the process environment when non-nil.
	Environ map[string]string
}

// RegisterFlags adds the overridable settings to fs, with defaults taken
// from Default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("server.addr", d.Server.Addr, "API listen address")
	fs.Bool("server.production", d.Server.Production, "production mode (SameSite=None cookies, generic 500 bodies)")
	fs.StringSlice("server.allowed_origins", d.Server.AllowedOrigins, "CORS origin glob patterns")
	fs.String("observability.addr", d.Observability.Addr, "metrics and health listen address; empty disables it")
	fs.String("log.level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log.format", d.Log.Format, "log format (json, text)")
	fs.String("auth.session.store", d.Auth.Session.Store, "session store (postgres, redis)")
	fs.String("auth.federated.success_url", d.Auth.Federated.SuccessURL, "redirect after a federated login")
}

// Load builds the configuration: defaults, then the YAML file, then flags,
// then environment secrets. The file is validated against the config schema
// before it is merged and the result is checked with Validate.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(defaultsProvider{}, nil); err != nil {
		return nil, oops.Code("CONFIG_DEFAULTS_FAILED").Wrap(err)
	}

	if opts.Path != "" {
		provider := file.Provider(opts.Path)
		data, err := provider.ReadBytes()
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", opts.Path).Wrap(err)
		}
		if len(bytes.TrimSpace(data)) > 0 {
			if err := ValidateYAML(data); err != nil {
				return nil, oops.With("path", opts.Path).Wrap(err)
			}
			if err := k.Load(provider, yaml.Parser()); err != nil {
				return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", opts.Path).Wrap(err)
			}
		}
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.Provider(opts.Flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	var secrets Secrets
	if err := env.ParseWithOptions(&secrets, env.Options{Environment: opts.Environ}); err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}
	secrets.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// defaultsProvider is a koanf.Provider serving Default as a nested map.
type defaultsProvider struct{}

func (defaultsProvider) ReadBytes() ([]byte, error) {
	return nil, oops.Code("CONFIG_DEFAULTS_FAILED").Errorf("defaults provider does not support ReadBytes")
}

func (defaultsProvider) Read() (map[string]any, error) {
	raw, err := yamlv3.Marshal(Default())
	if err != nil {
		return nil, oops.Code("CONFIG_DEFAULTS_FAILED").Wrap(err)
	}
	var m map[string]any
	if err := yamlv3.Unmarshal(raw, &m); err != nil {
		return nil, oops.Code("CONFIG_DEFAULTS_FAILED").Wrap(err)
	}
	return m, nil
}

func (s Secrets) apply(cfg *Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Database.URL, s.DatabaseURL)
	set(&cfg.Redis.URL, s.RedisURL)
	set(&cfg.Auth.Federated.ClientID, s.GoogleClientID)
	set(&cfg.Auth.Federated.ClientSecret, s.GoogleClientSecret)
	set(&cfg.Auth.Federated.CallbackURL, s.GoogleCallbackURL)
	if s.CookieSecure != nil {
		cfg.Auth.Session.CookieSecure = *s.CookieSecure
	}
}
