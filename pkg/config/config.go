// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config defines the authrelay configuration and loads it from
// flags, environment and an optional YAML file. Every component receives
// its slice of Config at construction time; nothing reads the environment
// while serving requests.
package config

import (
	"time"
)

// ProviderType selects how the upstream identity provider is reached.
type ProviderType string

const (
	// ProviderTypeOIDC resolves endpoints through OIDC discovery when they
	// are not configured explicitly.
	ProviderTypeOIDC ProviderType = "oidc"

	// ProviderTypeOAuth2 requires explicit endpoints.
	ProviderTypeOAuth2 ProviderType = "oauth2"
)

// Upstream presets.
const (
	PresetAccess = "access"
	PresetGitHub = "github"
)

// StorageType selects the token store backend.
type StorageType string

const (
	// StorageTypeMemory keeps tokens in process memory.
	StorageTypeMemory StorageType = "memory"

	// StorageTypeRedis keeps tokens in Redis so several replicas can share them.
	StorageTypeRedis StorageType = "redis"
)

const (
	// DefaultListenAddress is where the relay listens when nothing is configured.
	DefaultListenAddress = ":8787"

	// DefaultScope is requested from the upstream identity provider.
	DefaultScope = "openid email profile"

	// DefaultLivenessText is returned by GET /.
	DefaultLivenessText = "ok"

	// DefaultImageModel is the image generation model.
	DefaultImageModel = "@cf/black-forest-labs/flux-1-schnell"

	// MinCookieKeyLength is the minimum length of the cookie encryption key.
	MinCookieKeyLength = 32
)

// Config is the complete authrelay configuration.
type Config struct {
	// ListenAddress is the host:port the HTTP server binds.
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`

	// BaseURL is the public origin of the relay, e.g. https://mcp.example.com.
	// The upstream redirect URI is BaseURL + "/callback".
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// LivenessText is the body of GET /.
	LivenessText string `mapstructure:"liveness_text" yaml:"liveness_text"`

	// CookieEncryptionKey keys the approval cookie and the relay state MAC.
	CookieEncryptionKey string `mapstructure:"cookie_encryption_key" yaml:"cookie_encryption_key"`

	// AllowedEmails enables the gated tools for these identities.
	AllowedEmails []string `mapstructure:"allowed_emails" yaml:"allowed_emails"`

	Upstream  UpstreamProviderConfig `mapstructure:"upstream" yaml:"upstream"`
	Server    ServerInfo             `mapstructure:"server" yaml:"server"`
	Tools     ToolsConfig            `mapstructure:"tools" yaml:"tools"`
	Image     ImageConfig            `mapstructure:"image" yaml:"image"`
	Storage   StorageConfig          `mapstructure:"storage" yaml:"storage"`
	Tokens    TokenConfig            `mapstructure:"tokens" yaml:"tokens"`
	RateLimit RateLimitConfig        `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// UpstreamProviderConfig describes one upstream identity provider. A single
// relay instance is parameterized by exactly one of these.
type UpstreamProviderConfig struct {
	// Preset fills endpoint and claim defaults for a known provider
	// ("access" or "github"). Explicit fields win over the preset.
	Preset string `mapstructure:"preset" yaml:"preset,omitempty"`

	Type ProviderType `mapstructure:"type" yaml:"type"`

	// Issuer is used for OIDC discovery.
	Issuer string `mapstructure:"issuer" yaml:"issuer,omitempty"`

	AuthorizeURL string `mapstructure:"authorize_url" yaml:"authorize_url,omitempty"`
	TokenURL     string `mapstructure:"token_url" yaml:"token_url,omitempty"`
	UserInfoURL  string `mapstructure:"userinfo_url" yaml:"userinfo_url,omitempty"`

	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`

	// Scope is the space separated scope requested upstream.
	Scope string `mapstructure:"scope" yaml:"scope"`

	// Claim paths in the userinfo response (gjson syntax).
	SubjectClaim string `mapstructure:"subject_claim" yaml:"subject_claim"`
	NameClaim    string `mapstructure:"name_claim" yaml:"name_claim"`
	EmailClaim   string `mapstructure:"email_claim" yaml:"email_claim"`
}

// ServerInfo is shown on the approval dialog and in authorization server metadata.
type ServerInfo struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Description string `mapstructure:"description" yaml:"description"`
	LogoURL     string `mapstructure:"logo_url" yaml:"logo_url"`
}

// ToolsConfig configures the outbound endpoints the tools call.
type ToolsConfig struct {
	EchoURL           string        `mapstructure:"echo_url" yaml:"echo_url"`
	WatermarkURL      string        `mapstructure:"watermark_url" yaml:"watermark_url"`
	ShareURL          string        `mapstructure:"share_url" yaml:"share_url"`
	ShareUploadSecret string        `mapstructure:"share_upload_secret" yaml:"share_upload_secret"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
}

// ImageConfig configures the image generation backend.
type ImageConfig struct {
	// BaseURL overrides the inference API origin (tests, proxies).
	BaseURL   string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	AccountID string `mapstructure:"account_id" yaml:"account_id"`
	APIToken  string `mapstructure:"api_token" yaml:"api_token"`
	Model     string `mapstructure:"model" yaml:"model"`
}

// Enabled reports whether the image backend has credentials.
func (c ImageConfig) Enabled() bool {
	return c.AccountID != "" && c.APIToken != ""
}

// StorageConfig selects and configures the token store.
type StorageConfig struct {
	Type  StorageType `mapstructure:"type" yaml:"type"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig configures the Redis token store.
type RedisConfig struct {
	Address   string `mapstructure:"address" yaml:"address"`
	Username  string `mapstructure:"username" yaml:"username,omitempty"`
	Password  string `mapstructure:"password" yaml:"password,omitempty"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// TokenConfig sets downstream token lifetimes.
type TokenConfig struct {
	AccessTokenLifespan  time.Duration `mapstructure:"access_token_lifespan" yaml:"access_token_lifespan"`
	RefreshTokenLifespan time.Duration `mapstructure:"refresh_token_lifespan" yaml:"refresh_token_lifespan"`
	AuthCodeLifespan     time.Duration `mapstructure:"auth_code_lifespan" yaml:"auth_code_lifespan"`
}

// RateLimitConfig bounds the rate of /authorize and /callback requests.
// A zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// RedirectURI is the upstream redirect target registered with the provider.
func (c *Config) RedirectURI() string {
	return trimTrailingSlash(c.BaseURL) + "/callback"
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "REDACTED"
	}
	c.CookieEncryptionKey = mask(c.CookieEncryptionKey)
	c.Upstream.ClientSecret = mask(c.Upstream.ClientSecret)
	c.Tools.ShareUploadSecret = mask(c.Tools.ShareUploadSecret)
	c.Image.APIToken = mask(c.Image.APIToken)
	c.Storage.Redis.Password = mask(c.Storage.Redis.Password)
	c.AllowedEmails = append([]string(nil), c.AllowedEmails...)
	return c
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
