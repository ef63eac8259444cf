// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authserver is the downstream OAuth 2.1 authorization server that
// MCP clients talk to. It is built on fosite: it parses and re-validates
// authorization requests for the relay, mints authorization codes bound to
// the upstream identity, serves the token, registration, revocation and
// introspection endpoints, and validates bearer tokens on the MCP endpoint.
package authserver

import (
	"context"
	"crypto/hkdf"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ory/fosite"
	"github.com/ory/fosite/compose"
	"github.com/stacklok/toolhive-core/httperr"

	"github.com/stacklok/mcp-authrelay/pkg/authserver/relay"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/session"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/storage"
)

// Endpoint paths relative to the issuer.
const (
	AuthorizePath                   = "/authorize"
	TokenPath                       = "/token"
	RegisterPath                    = "/register"
	RevokePath                      = "/revoke"
	IntrospectPath                  = "/introspect"
	AuthorizationServerMetadataPath = "/.well-known/oauth-authorization-server"
	ProtectedResourceMetadataPath   = "/.well-known/oauth-protected-resource"
	DefaultResourcePath             = "/mcp"
)

const (
	// MinSecretLength is the minimum length of Config.Secret.
	MinSecretLength = 32

	tokenKeyPurpose = "mcp-authrelay token hmac v1"
)

// DefaultScopes are offered to clients that register without a scope.
var DefaultScopes = []string{"openid", "profile", "email", "offline_access", "mcp"}

// Config configures the authorization server.
type Config struct {
	// Issuer is the public base URL, without a trailing slash.
	Issuer string

	// Secret keys the HMAC token strategy. The actual key is derived from it.
	Secret []byte

	AccessTokenLifespan  time.Duration
	RefreshTokenLifespan time.Duration
	AuthCodeLifespan     time.Duration

	ScopesSupported []string

	// ResourcePath is the protected MCP endpoint. Defaults to /mcp.
	ResourcePath string

	// ResourceName is advertised in protected resource metadata.
	ResourceName string
}

func (c *Config) applyDefaults() {
	c.Issuer = strings.TrimRight(c.Issuer, "/")
	if c.AccessTokenLifespan <= 0 {
		c.AccessTokenLifespan = storage.DefaultAccessTokenTTL
	}
	if c.RefreshTokenLifespan <= 0 {
		c.RefreshTokenLifespan = storage.DefaultRefreshTokenTTL
	}
	if c.AuthCodeLifespan <= 0 {
		c.AuthCodeLifespan = storage.DefaultAuthCodeTTL
	}
	if len(c.ScopesSupported) == 0 {
		c.ScopesSupported = DefaultScopes
	}
	if c.ResourcePath == "" {
		c.ResourcePath = DefaultResourcePath
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Issuer == "" {
		errs = append(errs, errors.New("issuer is required"))
	} else if u, err := url.Parse(c.Issuer); err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("issuer must be an absolute URL: %q", c.Issuer))
	}
	if len(c.Secret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("secret must be at least %d bytes", MinSecretLength))
	}
	return errors.Join(errs...)
}

// ResourceURL is the canonical URL of the protected MCP endpoint.
func (c *Config) ResourceURL() string {
	return c.Issuer + c.ResourcePath
}

// Server is the fosite-backed authorization server. It implements
// relay.AuthorizationServer.
type Server struct {
	config   *Config
	fosite   *fosite.Config
	provider fosite.OAuth2Provider
	storage  storage.Storage
}

var _ relay.AuthorizationServer = (*Server)(nil)

// New composes a fosite provider over stor.
func New(cfg Config, stor storage.Storage) (*Server, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid authorization server config: %w", err)
	}
	if stor == nil {
		return nil, errors.New("authorization server requires storage")
	}

	globalSecret, err := hkdf.Key(sha256.New, cfg.Secret, nil, tokenKeyPurpose, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token key: %w", err)
	}

	fositeConfig := &fosite.Config{
		AccessTokenIssuer:           cfg.Issuer,
		AccessTokenLifespan:         cfg.AccessTokenLifespan,
		RefreshTokenLifespan:        cfg.RefreshTokenLifespan,
		AuthorizeCodeLifespan:       cfg.AuthCodeLifespan,
		GlobalSecret:                globalSecret,
		TokenURL:                    cfg.Issuer + TokenPath,
		EnforcePKCEForPublicClients: true,
		ScopeStrategy:               fosite.HierarchicScopeStrategy,
		AudienceMatchingStrategy:    fosite.DefaultAudienceMatchingStrategy,
	}

	// Opaque HMAC tokens throughout: only this server validates them, and
	// the MCP endpoint introspects them against storage.
	provider := compose.Compose(
		fositeConfig,
		stor,
		&compose.CommonStrategy{CoreStrategy: compose.NewOAuth2HMACStrategy(fositeConfig)},
		compose.OAuth2AuthorizeExplicitFactory,
		compose.OAuth2RefreshTokenGrantFactory,
		compose.OAuth2PKCEFactory,
		compose.OAuth2TokenIntrospectionFactory,
		compose.OAuth2TokenRevocationFactory,
	)

	slog.Debug("configured authorization server",
		"issuer", cfg.Issuer,
		"resource", cfg.ResourceURL(),
		"access_token_lifespan", cfg.AccessTokenLifespan,
	)

	return &Server{
		config:   &cfg,
		fosite:   fositeConfig,
		provider: provider,
		storage:  stor,
	}, nil
}

// ParseAuthRequest validates an inbound /authorize request with fosite:
// client, redirect URI, response type, scopes and PKCE parameters.
func (s *Server) ParseAuthRequest(ctx context.Context, r *http.Request) (*relay.AuthRequest, error) {
	if r.URL.Query().Get("client_id") == "" {
		return &relay.AuthRequest{}, nil
	}

	ar, err := s.provider.NewAuthorizeRequest(ctx, r)
	if err != nil {
		return nil, authorizeError(err)
	}

	form := ar.GetRequestForm()
	return &relay.AuthRequest{
		ResponseType:        strings.Join(ar.GetResponseTypes(), " "),
		ClientID:            ar.GetClient().GetID(),
		RedirectURI:         form.Get("redirect_uri"),
		Scope:               []string(ar.GetRequestedScopes()),
		State:               ar.GetState(),
		CodeChallenge:       form.Get("code_challenge"),
		CodeChallengeMethod: form.Get("code_challenge_method"),
	}, nil
}

// LookupClient returns display metadata for a registered client.
func (s *Server) LookupClient(ctx context.Context, clientID string) (*relay.ClientInfo, error) {
	client, err := s.storage.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, httperr.WithCode(fmt.Errorf("unknown client %q", clientID), http.StatusBadRequest)
		}
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}

	info := &relay.ClientInfo{
		ClientID:     client.GetID(),
		RedirectURIs: client.GetRedirectURIs(),
	}
	if sc, ok := client.(*storage.Client); ok {
		info.ClientName = sc.Name
		info.ClientURI = sc.ClientURI
		info.LogoURI = sc.LogoURI
	}
	return info, nil
}

// CompleteAuthorization re-validates the original request against the
// client registry, grants the requested scopes, issues an authorization
// code bound to the upstream identity and returns the client redirect.
func (s *Server) CompleteAuthorization(ctx context.Context, req relay.CompleteRequest) (string, error) {
	if req.Request == nil {
		return "", errors.New("missing authorization request")
	}

	httpReq, err := authorizeHTTPRequest(ctx, s.config.Issuer, req.Request)
	if err != nil {
		return "", err
	}

	ar, err := s.provider.NewAuthorizeRequest(ctx, httpReq)
	if err != nil {
		return "", authorizeError(err)
	}

	for _, scope := range req.Scope {
		ar.GrantScope(scope)
	}

	resp, err := s.provider.NewAuthorizeResponse(ctx, ar, session.New(req.UserID, req.Label, req.Props))
	if err != nil {
		return "", authorizeError(err)
	}

	redirectTo := *ar.GetRedirectURI()
	query := redirectTo.Query()
	for key, values := range resp.GetParameters() {
		query[key] = values
	}
	if query.Get("state") == "" && ar.GetState() != "" {
		query.Set("state", ar.GetState())
	}
	redirectTo.RawQuery = query.Encode()

	slog.Debug("issued authorization code",
		"client_id", ar.GetClient().GetID(),
		"subject", req.UserID,
	)
	return redirectTo.String(), nil
}

// authorizeHTTPRequest rebuilds the /authorize request a relay.AuthRequest
// was parsed from.
func authorizeHTTPRequest(ctx context.Context, issuer string, areq *relay.AuthRequest) (*http.Request, error) {
	q := url.Values{}
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set("response_type", areq.ResponseType)
	set("client_id", areq.ClientID)
	set("redirect_uri", areq.RedirectURI)
	set("scope", strings.Join(areq.Scope, " "))
	set("state", areq.State)
	set("code_challenge", areq.CodeChallenge)
	set("code_challenge_method", areq.CodeChallengeMethod)

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+AuthorizePath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild authorization request: %w", err)
	}
	return r, nil
}

// authorizeError attaches the fosite error's status so that the relay
// answers with it.
func authorizeError(err error) error {
	rfcErr := fosite.ErrorToRFC6749Error(err)
	msg := rfcErr.ErrorField
	if desc := rfcErr.GetDescription(); desc != "" {
		msg += ": " + desc
	}
	return httperr.WithCode(fmt.Errorf("%s: %w", msg, err), rfcErr.CodeField)
}
