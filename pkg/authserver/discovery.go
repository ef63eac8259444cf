// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ory/fosite"

	"github.com/stacklok/mcp-authrelay/pkg/authserver/registration"
)

// DefaultDiscoveryCacheMaxAge is the Cache-Control max-age for metadata documents.
const DefaultDiscoveryCacheMaxAge = 3600

// AuthorizationServerMetadata is the RFC 8414 metadata document.
type AuthorizationServerMetadata struct {
	Issuer                                 string   `json:"issuer"`
	AuthorizationEndpoint                  string   `json:"authorization_endpoint"`
	TokenEndpoint                          string   `json:"token_endpoint"`
	RegistrationEndpoint                   string   `json:"registration_endpoint,omitempty"`
	RevocationEndpoint                     string   `json:"revocation_endpoint,omitempty"`
	IntrospectionEndpoint                  string   `json:"introspection_endpoint,omitempty"`
	ScopesSupported                        []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported                 []string `json:"response_types_supported"`
	ResponseModesSupported                 []string `json:"response_modes_supported,omitempty"`
	GrantTypesSupported                    []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported      []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	RevocationEndpointAuthMethodsSupported []string `json:"revocation_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported          []string `json:"code_challenge_methods_supported,omitempty"`
}

// ProtectedResourceMetadata is the RFC 9728 metadata document for the MCP endpoint.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// Metadata returns the authorization server metadata.
func (s *Server) Metadata() AuthorizationServerMetadata {
	issuer := s.config.Issuer
	authMethods := []string{
		registration.AuthMethodClientSecretBasic,
		registration.AuthMethodClientSecretPost,
		registration.AuthMethodNone,
	}

	return AuthorizationServerMetadata{
		Issuer:                 issuer,
		AuthorizationEndpoint:  issuer + AuthorizePath,
		TokenEndpoint:          issuer + TokenPath,
		RegistrationEndpoint:   issuer + RegisterPath,
		RevocationEndpoint:     issuer + RevokePath,
		IntrospectionEndpoint:  issuer + IntrospectPath,
		ScopesSupported:        s.config.ScopesSupported,
		ResponseTypesSupported: []string{"code"},
		ResponseModesSupported: []string{"query"},
		GrantTypesSupported: []string{
			string(fosite.GrantTypeAuthorizationCode),
			string(fosite.GrantTypeRefreshToken),
		},
		TokenEndpointAuthMethodsSupported:      authMethods,
		RevocationEndpointAuthMethodsSupported: authMethods,
		CodeChallengeMethodsSupported:          []string{"S256"},
	}
}

// ResourceMetadata returns the protected resource metadata for the MCP endpoint.
func (s *Server) ResourceMetadata() ProtectedResourceMetadata {
	return ProtectedResourceMetadata{
		Resource:               s.config.ResourceURL(),
		AuthorizationServers:   []string{s.config.Issuer},
		ScopesSupported:        s.config.ScopesSupported,
		BearerMethodsSupported: []string{"header"},
		ResourceName:           s.config.ResourceName,
	}
}

// ResourceMetadataURL is advertised in WWW-Authenticate challenges.
func (s *Server) ResourceMetadataURL() string {
	return s.config.Issuer + ProtectedResourceMetadataPath
}

// OAuthDiscoveryHandler handles GET /.well-known/oauth-authorization-server.
func (s *Server) OAuthDiscoveryHandler(w http.ResponseWriter, _ *http.Request) {
	writeMetadata(w, s.Metadata())
}

// ProtectedResourceHandler handles GET /.well-known/oauth-protected-resource.
func (s *Server) ProtectedResourceHandler(w http.ResponseWriter, _ *http.Request) {
	writeMetadata(w, s.ResourceMetadata())
}

func writeMetadata(w http.ResponseWriter, doc any) {
	data, err := json.Marshal(doc)
	if err != nil {
		slog.Error("failed to encode metadata", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", DefaultDiscoveryCacheMaxAge))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(data)
}
