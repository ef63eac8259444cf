// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
)

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddress == "" {
		errs = append(errs, errors.New("listen_address is required"))
	}
	if err := validateAbsoluteURL("base_url", c.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if len(c.CookieEncryptionKey) < MinCookieKeyLength {
		errs = append(errs, fmt.Errorf("cookie_encryption_key must be at least %d bytes", MinCookieKeyLength))
	}

	if err := c.Upstream.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("upstream: %w", err))
	}

	for name, value := range map[string]string{
		"tools.echo_url":      c.Tools.EchoURL,
		"tools.watermark_url": c.Tools.WatermarkURL,
		"tools.share_url":     c.Tools.ShareURL,
	} {
		if err := validateAbsoluteURL(name, value); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Tools.HTTPTimeout < 0 {
		errs = append(errs, errors.New("tools.http_timeout must not be negative"))
	}

	if c.Image.Enabled() && c.Image.BaseURL != "" {
		if err := validateAbsoluteURL("image.base_url", c.Image.BaseURL); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Storage.Type {
	case StorageTypeMemory:
	case StorageTypeRedis:
		if c.Storage.Redis.Address == "" {
			errs = append(errs, errors.New("storage.redis.address is required for redis storage"))
		}
		if c.Storage.Redis.KeyPrefix == "" {
			errs = append(errs, errors.New("storage.redis.key_prefix is required for redis storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage type %q", c.Storage.Type))
	}

	if c.Tokens.AccessTokenLifespan <= 0 || c.Tokens.RefreshTokenLifespan <= 0 || c.Tokens.AuthCodeLifespan <= 0 {
		errs = append(errs, errors.New("token lifespans must be positive"))
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}

	return errors.Join(errs...)
}
