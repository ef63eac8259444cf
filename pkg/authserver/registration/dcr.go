// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registration implements OAuth 2.0 Dynamic Client Registration
// (RFC 7591) request validation and client construction for MCP clients.
package registration

import (
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/ory/fosite"

	"github.com/stacklok/mcp-authrelay/pkg/authserver/storage"
)

// DCR error codes per RFC 7591 Section 3.2.2
const (
	// ErrorInvalidRedirectURI indicates that the value of one or more
	// redirect_uris is invalid.
	ErrorInvalidRedirectURI = "invalid_redirect_uri"

	// ErrorInvalidClientMetadata indicates that the value of one of the
	// client metadata fields is invalid.
	ErrorInvalidClientMetadata = "invalid_client_metadata"
)

// Token endpoint authentication methods accepted at registration.
const (
	AuthMethodNone              = "none"
	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
)

// Validation limits.
const (
	// MaxRedirectURICount is the maximum number of redirect URIs allowed per client.
	MaxRedirectURICount = 10

	// MaxClientNameLength is the maximum allowed length for a client name.
	MaxClientNameLength = 256

	// MaxURILength bounds client_uri, logo_uri and each redirect URI.
	MaxURILength = 2048
)

// Request is an RFC 7591 registration request.
type Request struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	LogoURI                 string   `json:"logo_uri,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`

	// Scope is a space separated list.
	Scope string `json:"scope,omitempty"`
}

// Response is a successful RFC 7591 registration response.
type Response struct {
	ClientID         string `json:"client_id"`
	ClientIDIssuedAt int64  `json:"client_id_issued_at,omitempty"`

	// ClientSecret is only set for confidential clients. A zero
	// ClientSecretExpiresAt means the secret does not expire.
	ClientSecret          string `json:"client_secret,omitempty"`
	ClientSecretExpiresAt *int64 `json:"client_secret_expires_at,omitempty"`

	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	LogoURI                 string   `json:"logo_uri,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope,omitempty"`
}

// Error is an RFC 7591 error response.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Description
}

var (
	defaultGrantTypes    = []string{"authorization_code", "refresh_token"}
	defaultResponseTypes = []string{"code"}

	allowedGrantTypes    = []string{"authorization_code", "refresh_token"}
	allowedResponseTypes = []string{"code"}
	allowedAuthMethods   = []string{AuthMethodNone, AuthMethodClientSecretBasic, AuthMethodClientSecretPost}

	// Schemes a browser must never be redirected to.
	forbiddenSchemes = []string{"javascript", "data", "vbscript", "file"}
)

// Validate checks req and returns a copy with defaults applied. Requested
// scopes must be a subset of supported; when none are requested the client
// gets all of them.
func Validate(req *Request, supportedScopes []string) (*Request, *Error) {
	if len(req.RedirectURIs) == 0 {
		return nil, &Error{Code: ErrorInvalidRedirectURI, Description: "redirect_uris is required"}
	}
	if len(req.RedirectURIs) > MaxRedirectURICount {
		return nil, &Error{Code: ErrorInvalidRedirectURI, Description: "too many redirect_uris (maximum 10)"}
	}
	for _, uri := range req.RedirectURIs {
		if err := ValidateRedirectURI(uri); err != nil {
			return nil, err
		}
	}

	if len(req.ClientName) > MaxClientNameLength {
		return nil, &Error{Code: ErrorInvalidClientMetadata, Description: "client_name too long (maximum 256 characters)"}
	}
	for field, value := range map[string]string{"client_uri": req.ClientURI, "logo_uri": req.LogoURI} {
		if err := validateWebURI(field, value); err != nil {
			return nil, err
		}
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = AuthMethodNone
	}
	if !slices.Contains(allowedAuthMethods, authMethod) {
		return nil, &Error{Code: ErrorInvalidClientMetadata, Description: "unsupported token_endpoint_auth_method: " + authMethod}
	}

	grantTypes, err := validateList(req.GrantTypes, defaultGrantTypes, allowedGrantTypes, "authorization_code", "grant_type")
	if err != nil {
		return nil, err
	}
	responseTypes, err := validateList(req.ResponseTypes, defaultResponseTypes, allowedResponseTypes, "code", "response_type")
	if err != nil {
		return nil, err
	}

	scopes := strings.Fields(req.Scope)
	if len(scopes) == 0 {
		scopes = supportedScopes
	}
	for _, s := range scopes {
		if !slices.Contains(supportedScopes, s) {
			return nil, &Error{Code: ErrorInvalidClientMetadata, Description: "unsupported scope: " + s}
		}
	}

	return &Request{
		RedirectURIs:            req.RedirectURIs,
		ClientName:              req.ClientName,
		ClientURI:               req.ClientURI,
		LogoURI:                 req.LogoURI,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		Scope:                   strings.Join(scopes, " "),
	}, nil
}

// IsPublic reports whether the validated request registers a public client.
func (r *Request) IsPublic() bool {
	return r.TokenEndpointAuthMethod == AuthMethodNone
}

func validateList(values, defaults, allowed []string, required, name string) ([]string, *Error) {
	if len(values) == 0 {
		values = defaults
	}
	if !slices.Contains(values, required) {
		return nil, &Error{Code: ErrorInvalidClientMetadata, Description: name + "s must include '" + required + "'"}
	}
	for _, v := range values {
		if !slices.Contains(allowed, v) {
			return nil, &Error{Code: ErrorInvalidClientMetadata, Description: "unsupported " + name + ": " + v}
		}
	}
	return values, nil
}

// ValidateRedirectURI accepts absolute URIs without fragments. HTTPS and
// private-use schemes are allowed for any host; plain HTTP only for
// loopback hosts.
func ValidateRedirectURI(uri string) *Error {
	invalid := func(desc string) *Error {
		return &Error{Code: ErrorInvalidRedirectURI, Description: desc}
	}

	if len(uri) > MaxURILength {
		return invalid("redirect_uri too long")
	}
	parsed, err := url.Parse(uri)
	if err != nil || !parsed.IsAbs() {
		return invalid("redirect_uri must be an absolute URI: " + uri)
	}
	if parsed.Fragment != "" {
		return invalid("redirect_uri must not contain a fragment: " + uri)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch {
	case slices.Contains(forbiddenSchemes, scheme):
		return invalid("redirect_uri scheme is not allowed: " + scheme)
	case scheme == "http":
		if !isLoopback(parsed.Hostname()) {
			return invalid("http redirect_uri is only allowed for loopback hosts: " + uri)
		}
	case scheme == "https":
		if parsed.Host == "" {
			return invalid("redirect_uri must include a host: " + uri)
		}
	}
	return nil
}

func validateWebURI(field, value string) *Error {
	if value == "" {
		return nil
	}
	parsed, err := url.Parse(value)
	if len(value) > MaxURILength || err != nil || parsed.Host == "" ||
		(parsed.Scheme != "https" && parsed.Scheme != "http") {
		return &Error{Code: ErrorInvalidClientMetadata, Description: field + " must be an http(s) URL"}
	}
	return nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ClientConfig is a validated registration turned into client settings.
type ClientConfig struct {
	ID           string
	HashedSecret []byte
	Request      *Request

	// Audience lists the resources the client may bind tokens to. Refresh
	// re-checks the granted audience against it.
	Audience []string
}

// NewClient builds the stored client for cfg.
func NewClient(cfg ClientConfig) *storage.Client {
	req := cfg.Request
	return &storage.Client{
		DefaultClient: &fosite.DefaultClient{
			ID:            cfg.ID,
			Secret:        cfg.HashedSecret,
			RedirectURIs:  req.RedirectURIs,
			GrantTypes:    req.GrantTypes,
			ResponseTypes: req.ResponseTypes,
			Scopes:        strings.Fields(req.Scope),
			Audience:      cfg.Audience,
			Public:        req.IsPublic(),
		},
		Name:      req.ClientName,
		ClientURI: req.ClientURI,
		LogoURI:   req.LogoURI,
	}
}
