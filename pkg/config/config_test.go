// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCookieKey = "0123456789abcdef0123456789abcdef"

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.Set("base_url", "https://relay.example.com")
	v.Set("cookie_encryption_key", testCookieKey)
	v.Set("upstream.preset", PresetAccess)
	v.Set("upstream.issuer", "https://sso.example.com")
	v.Set("upstream.client_id", "relay-client")
	v.Set("upstream.client_secret", "relay-secret")
	return v
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddress, cfg.ListenAddress)
	assert.Equal(t, DefaultLivenessText, cfg.LivenessText)
	assert.Equal(t, ProviderTypeOIDC, cfg.Upstream.Type)
	assert.Equal(t, DefaultScope, cfg.Upstream.Scope)
	assert.Equal(t, "sub", cfg.Upstream.SubjectClaim)
	assert.Equal(t, StorageTypeMemory, cfg.Storage.Type)
	assert.Equal(t, time.Hour, cfg.Tokens.AccessTokenLifespan)
	assert.Equal(t, 10*time.Minute, cfg.Tokens.AuthCodeLifespan)
	assert.Equal(t, 30*time.Second, cfg.Tools.HTTPTimeout)
	assert.Equal(t, DefaultImageModel, cfg.Image.Model)
	assert.Equal(t, "https://relay.example.com/callback", cfg.RedirectURI())
	assert.True(t, cfg.Upstream.NeedsDiscovery())
}

func TestLoad_GitHubPreset(t *testing.T) {
	t.Parallel()

	v := newTestViper(t)
	v.Set("upstream.preset", PresetGitHub)
	v.Set("upstream.issuer", "")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ProviderTypeOAuth2, cfg.Upstream.Type)
	assert.Equal(t, GitHubAuthorizeURL, cfg.Upstream.AuthorizeURL)
	assert.Equal(t, GitHubTokenURL, cfg.Upstream.TokenURL)
	assert.Equal(t, GitHubUserInfoURL, cfg.Upstream.UserInfoURL)
	assert.Equal(t, "login", cfg.Upstream.SubjectClaim)
	assert.Equal(t, DefaultScope, cfg.Upstream.Scope)
	assert.False(t, cfg.Upstream.NeedsDiscovery())
}

func TestLoad_ExplicitFieldsWinOverPreset(t *testing.T) {
	t.Parallel()

	v := newTestViper(t)
	v.Set("upstream.preset", PresetGitHub)
	v.Set("upstream.scope", "read:user")
	v.Set("upstream.token_url", "https://ghe.example.com/login/oauth/access_token")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "read:user", cfg.Upstream.Scope)
	assert.Equal(t, "https://ghe.example.com/login/oauth/access_token", cfg.Upstream.TokenURL)
}

func TestLoad_CommaSeparatedAllowList(t *testing.T) {
	t.Parallel()

	v := newTestViper(t)
	v.Set("allowed_emails", "a@example.com, b@example.com,,")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.AllowedEmails)
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "authrelay.yaml")
	content := `
base_url: https://file.example.com
cookie_encryption_key: ` + testCookieKey + `
allowed_emails:
  - owner@example.com
upstream:
  preset: access
  authorize_url: https://sso.example.com/authorize
  token_url: https://sso.example.com/token
  userinfo_url: https://sso.example.com/userinfo
  client_id: file-client
  client_secret: file-secret
storage:
  type: redis
  redis:
    address: localhost:6379
tokens:
  access_token_lifespan: 15m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.Set(ConfigFileKey, path)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com", cfg.BaseURL)
	assert.Equal(t, []string{"owner@example.com"}, cfg.AllowedEmails)
	assert.Equal(t, "file-client", cfg.Upstream.ClientID)
	assert.False(t, cfg.Upstream.NeedsDiscovery())
	assert.Equal(t, StorageTypeRedis, cfg.Storage.Type)
	assert.Equal(t, "authrelay:", cfg.Storage.Redis.KeyPrefix)
	assert.Equal(t, 15*time.Minute, cfg.Tokens.AccessTokenLifespan)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	v := newTestViper(t)
	v.Set(ConfigFileKey, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_UnknownPreset(t *testing.T) {
	t.Parallel()

	v := newTestViper(t)
	v.Set("upstream.preset", "myspace")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown upstream preset")
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		ListenAddress:       ":8787",
		BaseURL:             "relay.example.com",
		CookieEncryptionKey: "short",
		Upstream:            UpstreamProviderConfig{Preset: PresetGitHub},
		Tools: ToolsConfig{
			EchoURL:      "https://echo.example.com",
			WatermarkURL: "ftp://watermark.example.com",
			ShareURL:     "https://share.example.com",
		},
		Storage: StorageConfig{Type: StorageTypeRedis},
		Tokens: TokenConfig{
			AccessTokenLifespan:  time.Hour,
			RefreshTokenLifespan: time.Hour,
			AuthCodeLifespan:     time.Minute,
		},
	}
	require.NoError(t, cfg.Upstream.ApplyPreset())

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"base_url must use http or https scheme",
		"cookie_encryption_key must be at least 32 bytes",
		"client_id is required",
		"client_secret is required",
		"tools.watermark_url must use http or https scheme",
		"storage.redis.address is required",
		"storage.redis.key_prefix is required",
	} {
		assert.True(t, strings.Contains(msg, want), "missing %q in %q", want, msg)
	}
}

func TestUpstreamValidate_OIDCWithoutIssuer(t *testing.T) {
	t.Parallel()

	u := UpstreamProviderConfig{ClientID: "id", ClientSecret: "secret"}
	require.NoError(t, u.ApplyPreset())

	err := u.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer is required")
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	cfg := Config{
		CookieEncryptionKey: testCookieKey,
		Upstream:            UpstreamProviderConfig{ClientID: "id", ClientSecret: "secret"},
		Tools:               ToolsConfig{ShareUploadSecret: "share"},
		Image:               ImageConfig{APIToken: "token"},
	}

	redacted := cfg.Redacted()

	assert.Equal(t, "REDACTED", redacted.CookieEncryptionKey)
	assert.Equal(t, "REDACTED", redacted.Upstream.ClientSecret)
	assert.Equal(t, "REDACTED", redacted.Tools.ShareUploadSecret)
	assert.Equal(t, "REDACTED", redacted.Image.APIToken)
	assert.Empty(t, redacted.Storage.Redis.Password)
	assert.Equal(t, "id", redacted.Upstream.ClientID)
	assert.Equal(t, testCookieKey, cfg.CookieEncryptionKey)
}
