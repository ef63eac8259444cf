// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/stacklok/mcp-authrelay/pkg/versions"
)

// Claims is the identity read from the userinfo endpoint.
type Claims struct {
	Subject string
	Name    string
	Email   string
}

// ClaimMapping holds gjson paths for each claim in the userinfo body.
type ClaimMapping struct {
	Subject string
	Name    string
	Email   string
}

func (m ClaimMapping) withDefaults() ClaimMapping {
	if m.Subject == "" {
		m.Subject = "sub"
	}
	if m.Name == "" {
		m.Name = "name"
	}
	if m.Email == "" {
		m.Email = "email"
	}
	return m
}

// ClaimsFetcher reads the identity behind an upstream bearer token.
type ClaimsFetcher struct {
	userInfoURL string
	mapping     ClaimMapping
	httpClient  *http.Client
}

// NewClaimsFetcher returns a fetcher for userInfoURL. Empty mapping paths
// default to the OIDC names sub, name and email.
func NewClaimsFetcher(userInfoURL string, mapping ClaimMapping, httpClient *http.Client) *ClaimsFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ClaimsFetcher{
		userInfoURL: userInfoURL,
		mapping:     mapping.withDefaults(),
		httpClient:  httpClient,
	}
}

// Fetch issues GET userinfo with the bearer token. A non-2xx response, a body
// that is not JSON, or a missing subject all fail; a partial identity is
// never returned.
func (f *ClaimsFetcher) Fetch(ctx context.Context, accessToken string) (*Claims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.userInfoURL, nil)
	if err != nil {
		return nil, newLocalError(OperationUserInfo, http.StatusInternalServerError, "Failed to fetch user info", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", versions.UserAgent())

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, newLocalError(OperationUserInfo, http.StatusBadGateway, "Failed to fetch user info", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, newLocalError(OperationUserInfo, http.StatusBadGateway, "Failed to fetch user info", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("upstream userinfo endpoint returned an error status", "status", resp.StatusCode)
		return nil, &Error{
			Op:          OperationUserInfo,
			StatusCode:  forwardedStatus(resp.StatusCode),
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}
	}

	if !gjson.ValidBytes(body) {
		return nil, newLocalError(OperationUserInfo, http.StatusBadGateway, "Invalid user info response",
			errors.New("userinfo body is not valid JSON"))
	}

	claims := &Claims{
		Subject: gjson.GetBytes(body, f.mapping.Subject).String(),
		Name:    gjson.GetBytes(body, f.mapping.Name).String(),
		Email:   gjson.GetBytes(body, f.mapping.Email).String(),
	}
	if claims.Subject == "" {
		return nil, newLocalError(OperationUserInfo, http.StatusBadGateway, "User info response has no subject", ErrMissingSubject)
	}

	return claims, nil
}
