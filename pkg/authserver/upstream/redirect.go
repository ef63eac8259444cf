// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"strings"

	"golang.org/x/oauth2"
)

// RedirectBuilder constructs upstream authorization URLs.
type RedirectBuilder struct {
	config oauth2.Config
}

// NewRedirectBuilder returns a builder for the given upstream authorization
// endpoint. scope is space separated.
func NewRedirectBuilder(authorizeURL, clientID, redirectURI, scope string) *RedirectBuilder {
	return &RedirectBuilder{
		config: oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURI,
			Scopes:      strings.Fields(scope),
			Endpoint:    oauth2.Endpoint{AuthURL: authorizeURL},
		},
	}
}

// Build returns the upstream authorization URL carrying state unchanged.
// Output depends only on the builder configuration and state, with
// response_type=code, client_id, redirect_uri, scope and state parameters.
func (b *RedirectBuilder) Build(state string) string {
	return b.config.AuthCodeURL(state)
}
