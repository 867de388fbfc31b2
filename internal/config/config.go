// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

// Package config loads process configuration from a YAML file with
// command-line flag overrides. The resulting Config is built once at
// startup and passed into constructors; there is no global config
// state.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/studyshare/studyshare/internal/auth"
)

// Config is the full configuration surface of the auth service.
type Config struct {
	Database      DatabaseConfig      `koanf:"database"`
	Auth          AuthConfig          `koanf:"auth"`
	Tokens        TokensConfig        `koanf:"tokens"`
	Mail          MailConfig          `koanf:"mail"`
	Observability ObservabilityConfig `koanf:"observability"`
	Log           LogConfig           `koanf:"log"`
}

// DatabaseConfig selects the PostgreSQL instance.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig tunes credential hashing and the lockout policy.
type AuthConfig struct {
	BcryptCost       int           `koanf:"bcrypt_cost"`
	LockoutThreshold int           `koanf:"lockout_threshold"`
	LockoutCooldown  time.Duration `koanf:"lockout_cooldown"`
}

// TokensConfig holds signing secrets and lifetimes. Secret is the
// shared fallback; purpose-specific secrets take precedence and are the
// recommended deployment.
type TokensConfig struct {
	Secret        string `koanf:"secret"`
	AccessSecret  string `koanf:"access_secret"`
	RefreshSecret string `koanf:"refresh_secret"`
	ResetSecret   string `koanf:"reset_secret"`

	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
	ResetTTL   time.Duration `koanf:"reset_ttl"`
}

// MailConfig selects the reset-link delivery backend.
type MailConfig struct {
	// Provider is "log" (development) or "mailgun".
	Provider string `koanf:"provider"`
	Domain   string `koanf:"domain"`
	APIKey   string `koanf:"api_key"`
	Sender   string `koanf:"sender"`
	// ResetBaseURL is the frontend URL the reset token is appended to.
	ResetBaseURL string `koanf:"reset_base_url"`
}

// ObservabilityConfig sets the metrics/health listen address.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig selects the log output format.
type LogConfig struct {
	// Format is "json" or "text".
	Format string `koanf:"format"`
}

// Default returns the baseline configuration. Anything secret or
// deployment-specific is intentionally empty and must come from the
// file or flags.
func Default() Config {
	return Config{
		Auth: AuthConfig{
			BcryptCost:       auth.DefaultBcryptCost,
			LockoutThreshold: auth.DefaultLockoutThreshold,
			LockoutCooldown:  auth.DefaultLockoutCooldown,
		},
		Tokens: TokensConfig{
			AccessTTL:  auth.DefaultAccessTTL,
			RefreshTTL: auth.DefaultRefreshTTL,
			ResetTTL:   auth.DefaultResetTTL,
		},
		Mail: MailConfig{
			Provider: "log",
		},
		Observability: ObservabilityConfig{
			Addr: "127.0.0.1:9100",
		},
		Log: LogConfig{
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, then the YAML file at path (when
// non-empty), then flag overrides (when non-nil). Later sources win.
// Flags that were not set on the command line never shadow earlier
// sources; posflag checks the existing keys for that.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("source", "defaults").
			Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "flags").
				Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "unmarshal config").
			Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	if c.Tokens.Secret == "" && (c.Tokens.AccessSecret == "" || c.Tokens.RefreshSecret == "" || c.Tokens.ResetSecret == "") {
		return oops.Code("CONFIG_INVALID").Errorf("tokens.secret or all purpose-specific token secrets are required")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").
			With("format", c.Log.Format).
			Errorf("log.format must be json or text")
	}
	switch c.Mail.Provider {
	case "log":
	case "mailgun":
		if c.Mail.Domain == "" || c.Mail.APIKey == "" || c.Mail.Sender == "" {
			return oops.Code("CONFIG_INVALID").Errorf("mail.domain, mail.api_key and mail.sender are required for the mailgun provider")
		}
	default:
		return oops.Code("CONFIG_INVALID").
			With("provider", c.Mail.Provider).
			Errorf("mail.provider must be log or mailgun")
	}
	return nil
}

// TokenConfig resolves the purpose-specific secrets (falling back to
// the shared one) into the auth package's token configuration.
func (c *Config) TokenConfig() auth.TokenConfig {
	pick := func(specific string) []byte {
		if specific != "" {
			return []byte(specific)
		}
		return []byte(c.Tokens.Secret)
	}
	return auth.TokenConfig{
		AccessSecret:  pick(c.Tokens.AccessSecret),
		RefreshSecret: pick(c.Tokens.RefreshSecret),
		ResetSecret:   pick(c.Tokens.ResetSecret),
		AccessTTL:     c.Tokens.AccessTTL,
		RefreshTTL:    c.Tokens.RefreshTTL,
		ResetTTL:      c.Tokens.ResetTTL,
	}
}
