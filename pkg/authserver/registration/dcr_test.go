// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var supported = []string{"openid", "profile", "email", "mcp"}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	validated, err := Validate(&Request{
		RedirectURIs: []string{"http://localhost:6274/oauth/callback"},
		ClientName:   "MCP Inspector",
	}, supported)
	require.Nil(t, err)

	assert.Equal(t, AuthMethodNone, validated.TokenEndpointAuthMethod)
	assert.True(t, validated.IsPublic())
	assert.Equal(t, []string{"authorization_code", "refresh_token"}, validated.GrantTypes)
	assert.Equal(t, []string{"code"}, validated.ResponseTypes)
	assert.Equal(t, "openid profile email mcp", validated.Scope)
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tooMany := make([]string, MaxRedirectURICount+1)
	for i := range tooMany {
		tooMany[i] = "https://example.com/cb"
	}

	tests := []struct {
		name string
		req  Request
		code string
	}{
		{name: "no redirect uris", req: Request{}, code: ErrorInvalidRedirectURI},
		{name: "too many redirect uris", req: Request{RedirectURIs: tooMany}, code: ErrorInvalidRedirectURI},
		{name: "http on public host", req: Request{RedirectURIs: []string{"http://evil.example.com/cb"}}, code: ErrorInvalidRedirectURI},
		{name: "javascript scheme", req: Request{RedirectURIs: []string{"javascript:alert(1)"}}, code: ErrorInvalidRedirectURI},
		{name: "fragment", req: Request{RedirectURIs: []string{"https://example.com/cb#frag"}}, code: ErrorInvalidRedirectURI},
		{name: "relative", req: Request{RedirectURIs: []string{"/cb"}}, code: ErrorInvalidRedirectURI},
		{
			name: "long client name",
			req:  Request{RedirectURIs: []string{"https://example.com/cb"}, ClientName: strings.Repeat("a", MaxClientNameLength+1)},
			code: ErrorInvalidClientMetadata,
		},
		{
			name: "bad client uri",
			req:  Request{RedirectURIs: []string{"https://example.com/cb"}, ClientURI: "ftp://example.com"},
			code: ErrorInvalidClientMetadata,
		},
		{
			name: "unsupported auth method",
			req:  Request{RedirectURIs: []string{"https://example.com/cb"}, TokenEndpointAuthMethod: "private_key_jwt"},
			code: ErrorInvalidClientMetadata,
		},
		{
			name: "refresh token only",
			req:  Request{RedirectURIs: []string{"https://example.com/cb"}, GrantTypes: []string{"refresh_token"}},
			code: ErrorInvalidClientMetadata,
		},
		{
			name: "implicit grant",
			req:  Request{RedirectURIs: []string{"https://example.com/cb"}, GrantTypes: []string{"authorization_code", "implicit"}},
			code: ErrorInvalidClientMetadata,
		},
		{
			name: "token response type",
			req:  Request{RedirectURIs: []string{"https://example.com/cb"}, ResponseTypes: []string{"code", "token"}},
			code: ErrorInvalidClientMetadata,
		},
		{
			name: "unknown scope",
			req:  Request{RedirectURIs: []string{"https://example.com/cb"}, Scope: "mcp admin"},
			code: ErrorInvalidClientMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Validate(&tt.req, supported)
			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}

func TestValidateRedirectURI_Accepts(t *testing.T) {
	t.Parallel()

	for _, uri := range []string{
		"https://claude.ai/api/mcp/auth_callback",
		"http://localhost:6274/oauth/callback",
		"http://127.0.0.1:33418/callback",
		"http://[::1]:8080/cb",
		"cursor://anysphere.cursor-retrieval/oauth/callback",
	} {
		assert.Nil(t, ValidateRedirectURI(uri), uri)
	}
}

func TestNewClient_Confidential(t *testing.T) {
	t.Parallel()

	validated, dcrErr := Validate(&Request{
		RedirectURIs:            []string{"https://example.com/cb"},
		ClientName:              "Server App",
		ClientURI:               "https://example.com",
		LogoURI:                 "https://example.com/logo.png",
		TokenEndpointAuthMethod: AuthMethodClientSecretBasic,
		Scope:                   "mcp",
	}, supported)
	require.Nil(t, dcrErr)

	client := NewClient(ClientConfig{
		ID:           "abc",
		HashedSecret: []byte("hash"),
		Request:      validated,
		Audience:     []string{"https://mcp.example.com/mcp"},
	})

	assert.Equal(t, "abc", client.GetID())
	assert.False(t, client.IsPublic())
	assert.Equal(t, []byte("hash"), client.GetHashedSecret())
	assert.Equal(t, []string{"mcp"}, []string(client.GetScopes()))
	assert.Equal(t, []string{"https://mcp.example.com/mcp"}, []string(client.GetAudience()))
	assert.Equal(t, "Server App", client.Name)
	assert.Equal(t, "https://example.com", client.ClientURI)
	assert.Equal(t, "https://example.com/logo.png", client.LogoURI)
}
