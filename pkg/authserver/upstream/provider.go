// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stacklok/mcp-authrelay/pkg/config"
)

// Provider bundles the three upstream components for one configured
// identity provider.
type Provider struct {
	Name      string
	Endpoints Endpoints
	Redirect  *RedirectBuilder
	Exchanger *TokenExchanger
	Claims    *ClaimsFetcher
}

// NewProvider builds the upstream components from cfg, resolving missing
// endpoints through OIDC discovery when the provider type calls for it.
// cfg must already have its preset applied.
func NewProvider(
	ctx context.Context,
	cfg config.UpstreamProviderConfig,
	redirectURI string,
	httpClient *http.Client,
	opts ...DiscoveryOption,
) (*Provider, error) {
	endpoints := Endpoints{
		AuthorizeURL: cfg.AuthorizeURL,
		TokenURL:     cfg.TokenURL,
		UserInfoURL:  cfg.UserInfoURL,
	}

	if cfg.NeedsDiscovery() {
		discovered, err := Discover(ctx, cfg.Issuer, httpClient, opts...)
		if err != nil {
			return nil, err
		}
		endpoints = endpoints.merge(discovered)
	}

	if endpoints.AuthorizeURL == "" || endpoints.TokenURL == "" || endpoints.UserInfoURL == "" {
		return nil, fmt.Errorf("upstream %q is missing endpoints", cfg.Preset)
	}

	slog.Info("upstream identity provider configured",
		"preset", cfg.Preset,
		"type", cfg.Type,
		"authorize_endpoint", endpoints.AuthorizeURL,
		"token_endpoint", endpoints.TokenURL,
		"userinfo_endpoint", endpoints.UserInfoURL,
		"client_id", cfg.ClientID,
	)

	return &Provider{
		Name:      cfg.Preset,
		Endpoints: endpoints,
		Redirect:  NewRedirectBuilder(endpoints.AuthorizeURL, cfg.ClientID, redirectURI, cfg.Scope),
		Exchanger: NewTokenExchanger(endpoints.TokenURL, cfg.ClientID, cfg.ClientSecret, redirectURI, httpClient),
		Claims: NewClaimsFetcher(endpoints.UserInfoURL, ClaimMapping{
			Subject: cfg.SubjectClaim,
			Name:    cfg.NameClaim,
			Email:   cfg.EmailClaim,
		}, httpClient),
	}, nil
}
