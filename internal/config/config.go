package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/relayguard/relayguard/internal/models"
)

// Config represents the complete application configuration.
type Config struct {
	Version  string          `yaml:"version"`
	Server   ServerConfig    `yaml:"server"`
	API      APIConfig       `yaml:"api"`
	Upstream UpstreamConfig  `yaml:"upstream"`
	OAuth    OAuthConfig     `yaml:"oauth"`
	Session  SessionConfig   `yaml:"session"`
	Telegram TelegramConfig  `yaml:"telegram"`
	Accounts []AccountConfig `yaml:"accounts,omitempty"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

// APIConfig contains management API configuration.
type APIConfig struct {
	BasePath  string          `yaml:"base_path"`
	Keys      []string        `yaml:"keys"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// UpstreamConfig describes the service requests are proxied to.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	UseUTLS bool          `yaml:"use_utls"`
	// RateLimitCooldown is applied when the provider signals a rate limit
	// without a usable reset hint.
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`
}

// OAuthConfig describes the identity provider endpoints used for the
// authorization-code and refresh-token grants.
type OAuthConfig struct {
	AuthorizeURL string        `yaml:"authorize_url"`
	MaxURL       string        `yaml:"max_url"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	Scopes       []string      `yaml:"scopes"`
	RedirectURI  string        `yaml:"redirect_uri"`
	SafetyMargin time.Duration `yaml:"safety_margin"`
}

// SessionConfig bounds the OAuth session store.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// TelegramConfig contains alert delivery configuration.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	// Throttle suppresses duplicate alerts inside this window.
	Throttle time.Duration `yaml:"throttle"`
}

// AccountConfig declares a seed account in the config file.
type AccountConfig struct {
	Name         string `yaml:"name"`
	APIKey       string `yaml:"api_key,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty"`
	Tier         string `yaml:"tier"`
	Priority     int    `yaml:"priority"`
	Enabled      *bool  `yaml:"enabled,omitempty"`
	Mode         string `yaml:"mode,omitempty"`
}

// Default values applied when the config file omits a section.
const (
	DefaultHTTPPort          = 8318
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultUpstreamTimeout   = 2 * time.Minute
	DefaultSafetyMargin      = time.Minute
	DefaultRateLimitCooldown = time.Minute
	DefaultSweepInterval     = time.Minute
)

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if c.Upstream.RateLimitCooldown == 0 {
		c.Upstream.RateLimitCooldown = DefaultRateLimitCooldown
	}
	if c.OAuth.SafetyMargin == 0 {
		c.OAuth.SafetyMargin = DefaultSafetyMargin
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = models.DefaultSessionTTL
	}
	if c.Session.SweepInterval == 0 {
		c.Session.SweepInterval = DefaultSweepInterval
	}
	if c.Telegram.Throttle == 0 {
		c.Telegram.Throttle = 5 * time.Minute
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Upstream.BaseURL != "" {
		if err := validateURL("upstream.base_url", c.Upstream.BaseURL); err != nil {
			return err
		}
	}
	for field, value := range map[string]string{
		"oauth.authorize_url": c.OAuth.AuthorizeURL,
		"oauth.max_url":       c.OAuth.MaxURL,
		"oauth.token_url":     c.OAuth.TokenURL,
		"oauth.redirect_uri":  c.OAuth.RedirectURI,
	} {
		if value == "" {
			continue
		}
		if err := validateURL(field, value); err != nil {
			return err
		}
	}

	if c.Session.TTL < 0 {
		return fmt.Errorf("session.ttl cannot be negative")
	}

	seen := make(map[string]bool, len(c.Accounts))
	for _, acc := range c.Accounts {
		if acc.Name == "" {
			return fmt.Errorf("account name is required")
		}
		if seen[acc.Name] {
			return fmt.Errorf("duplicate account name: %s", acc.Name)
		}
		seen[acc.Name] = true
		if acc.APIKey == "" && acc.RefreshToken == "" {
			return fmt.Errorf("account %s needs an api key or a refresh token", acc.Name)
		}
		if acc.Mode != "" && !models.AuthMode(acc.Mode).Valid() {
			return fmt.Errorf("account %s has unknown mode %q", acc.Name, acc.Mode)
		}
	}

	if c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.BotToken) == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	return nil
}

func validateURL(field, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s is not a valid URL: %s", field, value)
	}
	return nil
}

// ProviderConfig resolves the OAuth endpoints for a given mode. The max
// surface uses its own authorize URL when configured; everything else is
// shared.
func (c *OAuthConfig) ProviderConfig(mode models.AuthMode) OAuthProviderConfig {
	authorizeURL := c.AuthorizeURL
	if mode == models.ModeMax && c.MaxURL != "" {
		authorizeURL = c.MaxURL
	}
	return OAuthProviderConfig{
		AuthorizeURL: authorizeURL,
		TokenURL:     c.TokenURL,
		ClientID:     c.ClientID,
		Scopes:       append([]string(nil), c.Scopes...),
		RedirectURI:  c.RedirectURI,
		Mode:         mode,
	}
}

// OAuthProviderConfig is the immutable per-mode view handed to the exchange
// protocol.
type OAuthProviderConfig struct {
	AuthorizeURL string
	TokenURL     string
	ClientID     string
	Scopes       []string
	RedirectURI  string
	Mode         models.AuthMode
}
