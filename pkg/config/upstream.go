// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// GitHub endpoints used by the github preset.
const (
	GitHubAuthorizeURL = "https://github.com/login/oauth/authorize"
	GitHubTokenURL     = "https://github.com/login/oauth/access_token"
	GitHubUserInfoURL  = "https://api.github.com/user"
)

// ApplyPreset fills unset fields from the named preset and the generic
// defaults. It is idempotent.
func (u *UpstreamProviderConfig) ApplyPreset() error {
	switch strings.ToLower(u.Preset) {
	case "":
	case PresetAccess:
		setIfEmpty((*string)(&u.Type), string(ProviderTypeOIDC))
	case PresetGitHub:
		setIfEmpty((*string)(&u.Type), string(ProviderTypeOAuth2))
		setIfEmpty(&u.AuthorizeURL, GitHubAuthorizeURL)
		setIfEmpty(&u.TokenURL, GitHubTokenURL)
		setIfEmpty(&u.UserInfoURL, GitHubUserInfoURL)
		setIfEmpty(&u.SubjectClaim, "login")
	default:
		return fmt.Errorf("unknown upstream preset %q", u.Preset)
	}

	setIfEmpty((*string)(&u.Type), string(ProviderTypeOIDC))
	setIfEmpty(&u.Scope, DefaultScope)
	setIfEmpty(&u.SubjectClaim, "sub")
	setIfEmpty(&u.NameClaim, "name")
	setIfEmpty(&u.EmailClaim, "email")
	return nil
}

// NeedsDiscovery reports whether endpoints must be resolved from the issuer.
func (u *UpstreamProviderConfig) NeedsDiscovery() bool {
	return u.Type == ProviderTypeOIDC &&
		(u.AuthorizeURL == "" || u.TokenURL == "" || u.UserInfoURL == "")
}

// Validate checks the provider configuration after presets are applied.
func (u *UpstreamProviderConfig) Validate() error {
	var errs []error

	switch u.Type {
	case ProviderTypeOIDC:
		if u.NeedsDiscovery() {
			if err := validateAbsoluteURL("issuer", u.Issuer); err != nil {
				errs = append(errs, fmt.Errorf("%w (required when endpoints are not all set)", err))
			}
		}
	case ProviderTypeOAuth2:
	default:
		errs = append(errs, fmt.Errorf("unsupported upstream type %q", u.Type))
	}

	for name, value := range map[string]string{
		"authorize_url": u.AuthorizeURL,
		"token_url":     u.TokenURL,
		"userinfo_url":  u.UserInfoURL,
	} {
		if value == "" && u.Type == ProviderTypeOIDC {
			continue
		}
		if err := validateAbsoluteURL(name, value); err != nil {
			errs = append(errs, err)
		}
	}

	if u.ClientID == "" {
		errs = append(errs, errors.New("client_id is required"))
	}
	if u.ClientSecret == "" {
		errs = append(errs, errors.New("client_secret is required"))
	}

	return errors.Join(errs...)
}

func validateAbsoluteURL(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid URL", name)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", name)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", name)
	}
	return nil
}

func setIfEmpty(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}
