// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. AUTHRELAY_UPSTREAM_CLIENT_ID.
const EnvPrefix = "AUTHRELAY"

// ConfigFileKey is the viper key holding an optional YAML config file path.
const ConfigFileKey = "config"

var defaults = map[string]any{
	"listen_address":                DefaultListenAddress,
	"base_url":                      "",
	"liveness_text":                 DefaultLivenessText,
	"cookie_encryption_key":         "",
	"allowed_emails":                []string{},
	"upstream.preset":               PresetAccess,
	"upstream.type":                 "",
	"upstream.issuer":               "",
	"upstream.authorize_url":        "",
	"upstream.token_url":            "",
	"upstream.userinfo_url":         "",
	"upstream.client_id":            "",
	"upstream.client_secret":        "",
	"upstream.scope":                "",
	"upstream.subject_claim":        "",
	"upstream.name_claim":           "",
	"upstream.email_claim":          "",
	"server.name":                   "Access MCP Server",
	"server.description":            "MCP remote server protected by upstream single sign-on.",
	"server.logo_url":               "",
	"tools.echo_url":                "https://test.almightyzero.com/anything",
	"tools.watermark_url":           "https://pdf.hypersloth.io/api/v1/security/add-watermark",
	"tools.share_url":               "https://share.hypersloth.io",
	"tools.share_upload_secret":     "",
	"tools.http_timeout":            30 * time.Second,
	"image.base_url":                "",
	"image.account_id":              "",
	"image.api_token":               "",
	"image.model":                   DefaultImageModel,
	"storage.type":                  string(StorageTypeMemory),
	"storage.redis.address":         "",
	"storage.redis.username":        "",
	"storage.redis.password":        "",
	"storage.redis.db":              0,
	"storage.redis.key_prefix":      "authrelay:",
	"tokens.access_token_lifespan":  time.Hour,
	"tokens.refresh_token_lifespan": 7 * 24 * time.Hour,
	"tokens.auth_code_lifespan":     10 * time.Minute,

	"rate_limit.requests_per_second": 20.0,
	"rate_limit.burst":               40,
}

// SetDefaults registers defaults on v. Registering every key also makes
// AutomaticEnv see nested keys during Unmarshal.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load builds a Config from v: flags bound to v, then environment, then the
// YAML file named by the "config" key, then defaults. The result has presets
// applied and is validated.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	if path := v.GetString(ConfigFileKey); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.AllowedEmails = splitList(cfg.AllowedEmails)

	if err := cfg.Upstream.ApplyPreset(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Join(errors.New("invalid configuration"), err)
	}
	return &cfg, nil
}

// splitList flattens comma separated entries, which is how list values
// arrive from a single environment variable.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
