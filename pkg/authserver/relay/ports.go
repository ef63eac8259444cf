// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package relay

//go:generate mockgen -destination=mocks/mock_ports.go -package=mocks -source=ports.go

import (
	"context"
	"net/http"

	"github.com/stacklok/mcp-authrelay/pkg/auth"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/upstream"
)

// AuthRequest is an inbound authorization request from an MCP client. It is
// what the state parameter carries across the upstream round trip.
type AuthRequest struct {
	ResponseType        string   `json:"responseType"`
	ClientID            string   `json:"clientId"`
	RedirectURI         string   `json:"redirectUri"`
	Scope               []string `json:"scope"`
	State               string   `json:"state"`
	CodeChallenge       string   `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string   `json:"codeChallengeMethod,omitempty"`
}

// ClientInfo is the display metadata of a registered client.
type ClientInfo struct {
	ClientID     string
	ClientName   string
	ClientURI    string
	LogoURI      string
	RedirectURIs []string
}

// CompleteRequest is everything the authorization server needs to finish an
// authorization once the upstream identity is known.
type CompleteRequest struct {
	Request *AuthRequest
	UserID  string
	Label   string
	Scope   []string
	Props   auth.Props
}

// AuthorizationServer parses inbound requests, knows registered clients and
// mints the downstream grant.
type AuthorizationServer interface {
	// ParseAuthRequest validates an inbound /authorize request. A request
	// without client_id yields an AuthRequest with an empty ClientID and no
	// error so that the relay can answer it uniformly.
	ParseAuthRequest(ctx context.Context, r *http.Request) (*AuthRequest, error)

	// LookupClient returns the client's display metadata.
	LookupClient(ctx context.Context, clientID string) (*ClientInfo, error)

	// CompleteAuthorization issues the downstream authorization code and
	// returns the URL to send the client back to.
	CompleteAuthorization(ctx context.Context, req CompleteRequest) (string, error)
}

// TokenExchanger trades an upstream authorization code for a bearer token.
// Failures are *upstream.Error values.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (string, error)
}

// ClaimsFetcher resolves a bearer token to the upstream identity.
type ClaimsFetcher interface {
	Fetch(ctx context.Context, accessToken string) (*upstream.Claims, error)
}

// RedirectBuilder returns the upstream authorization URL for a state value.
type RedirectBuilder interface {
	Build(state string) string
}
