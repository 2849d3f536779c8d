// Package config loads the middleware configuration from a YAML file and
// RESTKIT_-prefixed environment variables, applies defaults, and validates
// the result at startup.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/restkit/restkit/internal/domain"
)

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	CSRF        CSRFConfig        `koanf:"csrf"`
	Negotiation NegotiationConfig `koanf:"negotiation"`
	Storage     StorageConfig     `koanf:"storage"`
}

type ServerConfig struct {
	Port int `koanf:"port"`

	// SecretKey is the application-wide secret. The CSRF secret falls back
	// to it when csrf.secret is unset.
	SecretKey string `koanf:"secret_key"`

	// AllowedHosts is the referer allow-list consulted on secure requests.
	AllowedHosts []string `koanf:"allowed_hosts"`
}

type CSRFConfig struct {
	CookieName         string        `koanf:"cookie_name"`
	Header             string        `koanf:"header"`
	Methods            []string      `koanf:"methods"`
	TokenLength        int           `koanf:"token_length"`
	AllowedChars       string        `koanf:"allowed_chars"`
	Secret             string        `koanf:"secret"`
	SecretSalt         string        `koanf:"secret_salt"`
	ForceSecureReferer bool          `koanf:"force_secure_referer"`
	CookieSameSite     string        `koanf:"cookie_samesite"`
	CookieSecure       bool          `koanf:"cookie_secure"`
	CookieMaxAge       time.Duration `koanf:"cookie_max_age"`
	TokenExpiresIn     time.Duration `koanf:"token_expires_in"`
	TokenGracePeriod   time.Duration `koanf:"token_grace_period"`
}

type NegotiationConfig struct {
	// QueryArgName selects the response media type from the query string
	// (e.g. "format"). Empty disables the mechanism.
	QueryArgName string `koanf:"query_arg_name"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

const alnum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Load reads configuration from path (optional, YAML) and the environment,
// applies defaults, and validates. A missing CSRF secret with no app-secret
// fallback is a fatal configuration error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// A missing file is fine, env vars may carry everything.
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	// Environment variables override file config: RESTKIT_CSRF__SECRET etc.
	if err := k.Load(env.Provider("RESTKIT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RESTKIT_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	defaults := map[string]any{
		"server.port":               8080,
		"csrf.cookie_name":          "csrftoken",
		"csrf.header":               "X-CSRFToken",
		"csrf.methods":              []string{"POST", "PUT", "PATCH", "DELETE"},
		"csrf.token_length":         32,
		"csrf.allowed_chars":        alnum,
		"csrf.secret_salt":          "restkit-csrf-token",
		"csrf.force_secure_referer": true,
		"csrf.cookie_samesite":      "Lax",
		"csrf.cookie_secure":        true,
		"csrf.cookie_max_age":       7 * 24 * time.Hour,
		"csrf.token_expires_in":     24 * time.Hour,
		"csrf.token_grace_period":   7 * 24 * time.Hour,
		"storage.sqlite.path":       "./data/restkit.db",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// CSRFSecret resolves the effective CSRF signing secret, falling back to the
// application secret key.
func (c *Config) CSRFSecret() string {
	if c.CSRF.Secret != "" {
		return c.CSRF.Secret
	}
	return c.Server.SecretKey
}

func (c *Config) validate() error {
	if c.CSRFSecret() == "" {
		return domain.NewConfigurationError("csrf.secret is not set and server.secret_key provides no fallback")
	}
	if c.CSRF.TokenLength <= 0 {
		return domain.NewConfigurationError("csrf.token_length must be positive, got %d", c.CSRF.TokenLength)
	}
	if c.CSRF.AllowedChars == "" {
		return domain.NewConfigurationError("csrf.allowed_chars must not be empty")
	}
	switch c.CSRF.CookieSameSite {
	case "Strict", "Lax", "None":
	default:
		return domain.NewConfigurationError("csrf.cookie_samesite must be Strict, Lax or None, got %q", c.CSRF.CookieSameSite)
	}
	return nil
}
