// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/stacklok/mcp-authrelay/pkg/versions"
)

// maxResponseSize bounds how much of an upstream response body is read.
const maxResponseSize = 1 << 20

// TokenExchanger trades an upstream authorization code for a bearer token.
type TokenExchanger struct {
	tokenURL     string
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
}

// NewTokenExchanger returns an exchanger. redirectURI must equal the one sent
// in the upstream authorization redirect.
func NewTokenExchanger(tokenURL, clientID, clientSecret, redirectURI string, httpClient *http.Client) *TokenExchanger {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenExchanger{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		httpClient:   httpClient,
	}
}

// tokenResponse is the subset of an RFC 6749 token response the relay uses.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange performs one form-encoded POST to the token endpoint and returns
// the access token. Any failure is an *Error holding the response to show
// the end user; the absence of a token is the only failure signal.
func (e *TokenExchanger) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", newLocalError(OperationToken, http.StatusBadRequest, "Missing code", nil)
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {e.clientID},
		"client_secret": {e.clientSecret},
		"code":          {code},
		"redirect_uri":  {e.redirectURI},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", newLocalError(OperationToken, http.StatusInternalServerError, "Failed to fetch access token", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", versions.UserAgent())

	slog.Debug("exchanging upstream authorization code", "token_endpoint", e.tokenURL)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", newLocalError(OperationToken, http.StatusBadGateway, "Failed to fetch access token", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", newLocalError(OperationToken, http.StatusBadGateway, "Failed to fetch access token", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("upstream token endpoint returned an error status", "status", resp.StatusCode)
		return "", &Error{
			Op:          OperationToken,
			StatusCode:  forwardedStatus(resp.StatusCode),
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}
	}

	parsed, err := parseTokenResponse(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", newLocalError(OperationToken, http.StatusBadGateway, "Failed to parse access token response", err)
	}
	if parsed.Error != "" {
		slog.Warn("upstream token endpoint returned an error", "error", parsed.Error)
		return "", &Error{
			Op:          OperationToken,
			StatusCode:  http.StatusBadRequest,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}
	}
	if parsed.AccessToken == "" {
		return "", newLocalError(OperationToken, http.StatusBadRequest, "Missing access token", nil)
	}

	return parsed.AccessToken, nil
}

// parseTokenResponse accepts JSON and, for providers that ignore the Accept
// header, form-encoded bodies.
func parseTokenResponse(body []byte, contentType string) (*tokenResponse, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "text/plain" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("invalid form token response: %w", err)
		}
		return &tokenResponse{
			AccessToken:      values.Get("access_token"),
			TokenType:        values.Get("token_type"),
			Error:            values.Get("error"),
			ErrorDescription: values.Get("error_description"),
		}, nil
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON token response: %w", err)
	}
	return &parsed, nil
}
