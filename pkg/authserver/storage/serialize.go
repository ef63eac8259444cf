// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/ory/fosite"

	"github.com/stacklok/mcp-authrelay/pkg/auth"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/session"
)

// storedClient is the JSON form of a fosite.Client.
type storedClient struct {
	ID            string   `json:"id"`
	Secret        []byte   `json:"secret,omitempty"`
	RedirectURIs  []string `json:"redirect_uris"`
	GrantTypes    []string `json:"grant_types"`
	ResponseTypes []string `json:"response_types"`
	Scopes        []string `json:"scopes"`
	Audience      []string `json:"audience"`
	Public        bool     `json:"public"`
	Name          string   `json:"client_name,omitempty"`
	ClientURI     string   `json:"client_uri,omitempty"`
	LogoURI       string   `json:"logo_uri,omitempty"`
}

func newStoredClient(c fosite.Client) storedClient {
	stored := storedClient{
		ID:            c.GetID(),
		Secret:        c.GetHashedSecret(),
		RedirectURIs:  c.GetRedirectURIs(),
		GrantTypes:    c.GetGrantTypes(),
		ResponseTypes: c.GetResponseTypes(),
		Scopes:        c.GetScopes(),
		Audience:      c.GetAudience(),
		Public:        c.IsPublic(),
	}
	if described, ok := c.(*Client); ok {
		stored.Name = described.Name
		stored.ClientURI = described.ClientURI
		stored.LogoURI = described.LogoURI
	}
	return stored
}

func (c storedClient) client() *Client {
	return &Client{
		DefaultClient: &fosite.DefaultClient{
			ID:            c.ID,
			Secret:        c.Secret,
			RedirectURIs:  c.RedirectURIs,
			GrantTypes:    c.GrantTypes,
			ResponseTypes: c.ResponseTypes,
			Scopes:        c.Scopes,
			Audience:      c.Audience,
			Public:        c.Public,
		},
		Name:      c.Name,
		ClientURI: c.ClientURI,
		LogoURI:   c.LogoURI,
	}
}

// storedRequest is the JSON form of a fosite.Requester whose session is a
// session.Session. The client is stored by ID and re-read on load.
type storedRequest struct {
	RequestID         string              `json:"request_id"`
	ClientID          string              `json:"client_id"`
	RequestedAt       time.Time           `json:"requested_at"`
	RequestedScopes   []string            `json:"requested_scopes"`
	GrantedScopes     []string            `json:"granted_scopes"`
	RequestedAudience []string            `json:"requested_audience"`
	GrantedAudience   []string            `json:"granted_audience"`
	Form              map[string][]string `json:"form"`
	Subject           string              `json:"subject"`
	Label             string              `json:"label,omitempty"`
	Props             auth.Props          `json:"props"`
	ExpiresAt         map[string]int64    `json:"expires_at"`
}

var expiringTokenTypes = []fosite.TokenType{fosite.AccessToken, fosite.RefreshToken, fosite.AuthorizeCode}

func marshalRequester(request fosite.Requester) ([]byte, error) {
	stored := storedRequest{
		RequestID:         request.GetID(),
		ClientID:          request.GetClient().GetID(),
		RequestedAt:       request.GetRequestedAt(),
		RequestedScopes:   request.GetRequestedScopes(),
		GrantedScopes:     request.GetGrantedScopes(),
		RequestedAudience: request.GetRequestedAudience(),
		GrantedAudience:   request.GetGrantedAudience(),
		Form:              request.GetRequestForm(),
		ExpiresAt:         make(map[string]int64),
	}

	if sess := request.GetSession(); sess != nil {
		stored.Subject = sess.GetSubject()
		for _, tokenType := range expiringTokenTypes {
			if exp := sess.GetExpiresAt(tokenType); !exp.IsZero() {
				stored.ExpiresAt[string(tokenType)] = exp.Unix()
			}
		}
		if relay, ok := sess.(*session.Session); ok {
			stored.Label = relay.Label
			stored.Props = relay.Props
		}
	}

	return json.Marshal(stored)
}

func unmarshalRequester(ctx context.Context, data []byte, s *RedisStorage) (fosite.Requester, error) {
	var stored storedRequest
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}

	client, err := s.GetClient(ctx, stored.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client for request: %w", err)
	}

	sess := session.New(stored.Subject, stored.Label, stored.Props)
	for tokenType, unix := range stored.ExpiresAt {
		sess.SetExpiresAt(fosite.TokenType(tokenType), time.Unix(unix, 0))
	}

	return &fosite.Request{
		ID:                stored.RequestID,
		RequestedAt:       stored.RequestedAt,
		Client:            client,
		RequestedScope:    stored.RequestedScopes,
		GrantedScope:      stored.GrantedScopes,
		RequestedAudience: stored.RequestedAudience,
		GrantedAudience:   stored.GrantedAudience,
		Form:              url.Values(stored.Form),
		Session:           sess,
	}, nil
}
