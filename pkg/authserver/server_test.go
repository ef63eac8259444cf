// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stacklok/toolhive-core/httperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-authrelay/pkg/auth"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/relay"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/storage"
)

const (
	testIssuer      = "https://relay.example.com"
	testRedirectURI = "http://localhost:6274/oauth/callback"
	testVerifier    = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXkdBjftJeZ4CVP"
	testState       = "client-state-123456"
)

var testProps = auth.Props{
	Login:       "octocat",
	Name:        "The Octocat",
	Email:       "octocat@example.com",
	AccessToken: "upstream-token",
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	stor := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = stor.Close() })

	srv, err := New(Config{
		Issuer:       testIssuer + "/",
		Secret:       []byte("0123456789abcdef0123456789abcdef"),
		ResourceName: "Access OAuth Proxy Demo",
	}, stor)
	require.NoError(t, err)
	return srv, srv.Handler()
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func registerClient(t *testing.T, h http.Handler, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, RegisterPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func authorizeRequest(clientID string, mutate func(url.Values)) *http.Request {
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"mcp offline_access"},
		"state":                 {testState},
		"code_challenge":        {pkceChallenge(testVerifier)},
		"code_challenge_method": {"S256"},
	}
	if mutate != nil {
		mutate(q)
	}
	return httptest.NewRequest(http.MethodGet, AuthorizePath+"?"+q.Encode(), nil)
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// authorize runs ParseAuthRequest and CompleteAuthorization and returns the
// downstream authorization code.
func authorize(t *testing.T, srv *Server, clientID string) string {
	t.Helper()
	ctx := context.Background()

	areq, err := srv.ParseAuthRequest(ctx, authorizeRequest(clientID, nil))
	require.NoError(t, err)

	redirectTo, err := srv.CompleteAuthorization(ctx, relay.CompleteRequest{
		Request: areq,
		UserID:  testProps.Login,
		Label:   testProps.Name,
		Scope:   areq.Scope,
		Props:   testProps,
	})
	require.NoError(t, err)

	u, err := url.Parse(redirectTo)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6274", u.Host)
	assert.Equal(t, "/oauth/callback", u.Path)
	assert.Equal(t, testState, u.Query().Get("state"))
	code := u.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

func exchangeCode(t *testing.T, h http.Handler, clientID, code string) tokenResponse {
	t.Helper()
	rec := postForm(t, h, TokenPath, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {clientID},
		"code_verifier": {testVerifier},
		"resource":      {testIssuer + "/mcp"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tok tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	return tok
}

// propsBehindBearer calls a RequireBearer-protected handler with token.
func propsBehindBearer(srv *Server, token string) (*httptest.ResponseRecorder, *auth.Props) {
	var seen *auth.Props
	h := srv.RequireBearer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = auth.PropsFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestServer_FullFlow(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t)
	client := registerClient(t, h, `{"redirect_uris":["`+testRedirectURI+`"],"client_name":"MCP Inspector"}`)
	clientID := client["client_id"].(string)
	assert.Equal(t, "none", client["token_endpoint_auth_method"])
	assert.NotContains(t, client, "client_secret")

	info, err := srv.LookupClient(context.Background(), clientID)
	require.NoError(t, err)
	assert.Equal(t, "MCP Inspector", info.ClientName)
	assert.Equal(t, []string{testRedirectURI}, info.RedirectURIs)

	code := authorize(t, srv, clientID)
	tok := exchangeCode(t, h, clientID, code)
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.RefreshToken)
	assert.Equal(t, "bearer", strings.ToLower(tok.TokenType))

	rec, props := propsBehindBearer(srv, tok.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, props)
	assert.Equal(t, testProps, *props)

	// Refreshing carries the identity over and retires the old access token.
	refreshed := postForm(t, h, TokenPath, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tok.RefreshToken},
		"client_id":     {clientID},
	})
	require.Equal(t, http.StatusOK, refreshed.Code, refreshed.Body.String())
	var next tokenResponse
	require.NoError(t, json.Unmarshal(refreshed.Body.Bytes(), &next))

	rec, props = propsBehindBearer(srv, next.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testProps, *props)

	rec, _ = propsBehindBearer(srv, tok.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Revocation invalidates the new access token.
	revoked := postForm(t, h, RevokePath, url.Values{
		"token":           {next.AccessToken},
		"token_type_hint": {"access_token"},
		"client_id":       {clientID},
	})
	assert.Equal(t, http.StatusOK, revoked.Code)
	rec, _ = propsBehindBearer(srv, next.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The code is single use.
	replay := postForm(t, h, TokenPath, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {clientID},
		"code_verifier": {testVerifier},
	})
	assert.Equal(t, http.StatusBadRequest, replay.Code)
}

func TestServer_WrongVerifierIsRejected(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t)
	clientID := registerClient(t, h, `{"redirect_uris":["`+testRedirectURI+`"]}`)["client_id"].(string)
	code := authorize(t, srv, clientID)

	rec := postForm(t, h, TokenPath, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {clientID},
		"code_verifier": {strings.Repeat("x", 64)},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_TokenRejectsForeignResource(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t)
	clientID := registerClient(t, h, `{"redirect_uris":["`+testRedirectURI+`"]}`)["client_id"].(string)
	code := authorize(t, srv, clientID)

	rec := postForm(t, h, TokenPath, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {clientID},
		"code_verifier": {testVerifier},
		"resource":      {"https://other.example.com/mcp"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_target")
}

func TestServer_RefreshKeepsResourceBinding(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t)
	clientID := registerClient(t, h, `{"redirect_uris":["`+testRedirectURI+`"]}`)["client_id"].(string)

	stored, err := srv.storage.GetClient(context.Background(), clientID)
	require.NoError(t, err)
	assert.Equal(t, []string{testIssuer + "/mcp"}, []string(stored.GetAudience()))

	tok := exchangeCode(t, h, clientID, authorize(t, srv, clientID))

	// Clients may repeat the resource on refresh or leave it out.
	for _, form := range []url.Values{
		{"resource": {testIssuer + "/mcp"}},
		{},
	} {
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", tok.RefreshToken)
		form.Set("client_id", clientID)

		rec := postForm(t, h, TokenPath, form)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))

		bearer, props := propsBehindBearer(srv, tok.AccessToken)
		require.Equal(t, http.StatusOK, bearer.Code)
		assert.Equal(t, testProps, *props)
	}
}

func TestServer_RequireBearerRejectsOtherResource(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t)
	clientID := registerClient(t, h, `{"redirect_uris":["`+testRedirectURI+`"]}`)["client_id"].(string)
	tok := exchangeCode(t, h, clientID, authorize(t, srv, clientID))

	// Same key and storage, different resource URL.
	other, err := New(Config{
		Issuer: "https://other.example.com",
		Secret: []byte("0123456789abcdef0123456789abcdef"),
	}, srv.storage)
	require.NoError(t, err)

	rec, props := propsBehindBearer(other, tok.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
	assert.Nil(t, props)

	rec, _ = propsBehindBearer(srv, tok.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAudienceAllows(t *testing.T) {
	t.Parallel()

	const resource = testIssuer + "/mcp"
	tests := []struct {
		name     string
		audience []string
		want     bool
	}{
		{name: "unbound", want: true},
		{name: "bound here", audience: []string{resource}, want: true},
		{name: "bound elsewhere", audience: []string{"https://other.example.com/mcp"}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, audienceAllows(tc.audience, resource))
		})
	}
}

func TestServer_ParseAuthRequest(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t)
	clientID := registerClient(t, h, `{"redirect_uris":["`+testRedirectURI+`"]}`)["client_id"].(string)
	ctx := context.Background()

	t.Run("captures the request", func(t *testing.T) {
		t.Parallel()
		areq, err := srv.ParseAuthRequest(ctx, authorizeRequest(clientID, nil))
		require.NoError(t, err)
		assert.Equal(t, &relay.AuthRequest{
			ResponseType:        "code",
			ClientID:            clientID,
			RedirectURI:         testRedirectURI,
			Scope:               []string{"mcp", "offline_access"},
			State:               testState,
			CodeChallenge:       pkceChallenge(testVerifier),
			CodeChallengeMethod: "S256",
		}, areq)
	})

	t.Run("missing client id is not an error", func(t *testing.T) {
		t.Parallel()
		areq, err := srv.ParseAuthRequest(ctx, httptest.NewRequest(http.MethodGet, "/authorize", nil))
		require.NoError(t, err)
		assert.Empty(t, areq.ClientID)
	})

	rejected := map[string]func(url.Values){
		"unknown client":            func(q url.Values) { q.Set("client_id", "nope") },
		"unregistered redirect uri": func(q url.Values) { q.Set("redirect_uri", "http://localhost:9999/elsewhere") },
		"unsupported response type": func(q url.Values) { q.Set("response_type", "token") },
		"unknown scope":             func(q url.Values) { q.Set("scope", "admin") },
	}
	for name, mutate := range rejected {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := srv.ParseAuthRequest(ctx, authorizeRequest(clientID, mutate))
			require.Error(t, err)
			assert.GreaterOrEqual(t, httperr.Code(err), http.StatusBadRequest)
			assert.Less(t, httperr.Code(err), http.StatusInternalServerError)
		})
	}
}

func TestServer_CompleteAuthorizationRevalidates(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t)
	clientID := registerClient(t, h, `{"redirect_uris":["`+testRedirectURI+`"]}`)["client_id"].(string)
	ctx := context.Background()

	areq, err := srv.ParseAuthRequest(ctx, authorizeRequest(clientID, nil))
	require.NoError(t, err)

	forged := *areq
	forged.RedirectURI = "https://attacker.example.com/cb"
	_, err = srv.CompleteAuthorization(ctx, relay.CompleteRequest{Request: &forged, UserID: "octocat", Props: testProps})
	require.Error(t, err)
	assert.GreaterOrEqual(t, httperr.Code(err), http.StatusBadRequest)

	// Public clients must use PKCE; fosite checks it when issuing the code.
	noPKCE := *areq
	noPKCE.CodeChallenge = ""
	noPKCE.CodeChallengeMethod = ""
	_, err = srv.CompleteAuthorization(ctx, relay.CompleteRequest{Request: &noPKCE, UserID: "octocat", Props: testProps})
	require.Error(t, err)

	_, err = srv.CompleteAuthorization(ctx, relay.CompleteRequest{})
	require.Error(t, err)
}

func TestServer_LookupClientUnknown(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	_, err := srv.LookupClient(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperr.Code(err))
}

func TestServer_RegisterConfidentialClient(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t)
	client := registerClient(t, h, `{
		"redirect_uris": ["https://app.example.com/cb"],
		"client_name": "Server App",
		"token_endpoint_auth_method": "client_secret_basic"
	}`)
	clientID := client["client_id"].(string)
	secret, ok := client["client_secret"].(string)
	require.True(t, ok)
	require.NotEmpty(t, secret)
	assert.InDelta(t, 0, client["client_secret_expires_at"], 0)

	stored, err := srv.storage.GetClient(context.Background(), clientID)
	require.NoError(t, err)
	assert.False(t, stored.IsPublic())
	assert.NotEqual(t, []byte(secret), stored.GetHashedSecret(), "secret must be stored hashed")

	// Confidential clients may introspect.
	introspect := httptest.NewRequest(http.MethodPost, IntrospectPath,
		strings.NewReader(url.Values{"token": {"not-a-token"}}.Encode()))
	introspect.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	introspect.SetBasicAuth(url.QueryEscape(clientID), url.QueryEscape(secret))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, introspect)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"active":false}`, rec.Body.String())
}

func TestServer_RegisterErrors(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t)

	tests := []struct {
		name        string
		contentType string
		body        string
		wantError   string
	}{
		{name: "wrong content type", contentType: "text/plain", body: `{}`, wantError: "invalid_client_metadata"},
		{name: "bad json", contentType: "application/json", body: `{`, wantError: "invalid_client_metadata"},
		{name: "no redirect uris", contentType: "application/json", body: `{}`, wantError: "invalid_redirect_uri"},
		{
			name:        "insecure redirect",
			contentType: "application/json",
			body:        `{"redirect_uris":["http://evil.example.com/cb"]}`,
			wantError:   "invalid_redirect_uri",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, RegisterPath, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}

func TestServer_RequireBearerChallenges(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	rec, props := propsBehindBearer(srv, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, props)
	assert.Equal(t,
		`Bearer resource_metadata="https://relay.example.com/.well-known/oauth-protected-resource"`,
		rec.Header().Get("WWW-Authenticate"))

	rec, props = propsBehindBearer(srv, "garbage.token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, props)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
}

func TestServer_Metadata(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t)

	get := func(path string) map[string]any {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
		var doc map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		return doc
	}

	as := get(AuthorizationServerMetadataPath)
	assert.Equal(t, testIssuer, as["issuer"])
	assert.Equal(t, testIssuer+"/authorize", as["authorization_endpoint"])
	assert.Equal(t, testIssuer+"/token", as["token_endpoint"])
	assert.Equal(t, testIssuer+"/register", as["registration_endpoint"])
	assert.Equal(t, []any{"S256"}, as["code_challenge_methods_supported"])
	assert.Equal(t, []any{"openid", "profile", "email", "offline_access", "mcp"}, as["scopes_supported"])

	for _, path := range []string{ProtectedResourceMetadataPath, ProtectedResourceMetadataPath + "/mcp"} {
		pr := get(path)
		assert.Equal(t, testIssuer+"/mcp", pr["resource"])
		assert.Equal(t, []any{testIssuer}, pr["authorization_servers"])
		assert.Equal(t, "Access OAuth Proxy Demo", pr["resource_name"])
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	stor := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = stor.Close() })

	_, err := New(Config{Issuer: "not a url", Secret: []byte("short")}, stor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer")
	assert.Contains(t, err.Error(), "secret")

	_, err = New(Config{Issuer: testIssuer, Secret: []byte("0123456789abcdef0123456789abcdef")}, nil)
	require.Error(t, err)
}
