// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Approval cookie attributes.
const (
	ApprovalCookieName   = "mcp-approved-clients"
	ApprovalCookieMaxAge = 365 * 24 * time.Hour
)

// maxApprovedClients caps the cookie so it stays under browser size limits.
// The oldest approvals are dropped first.
const maxApprovedClients = 64

type approvalClaims struct {
	Clients []string `json:"clients"`
	jwt.RegisteredClaims
}

// ApprovalStore reads and writes the signed cookie listing the client IDs
// the browser has approved. A cookie that fails verification counts as no
// approvals.
type ApprovalStore struct {
	key []byte
	now func() time.Time
}

// NewApprovalStore derives the cookie signing key from secret.
func NewApprovalStore(secret []byte) (*ApprovalStore, error) {
	key, err := deriveKey(secret, keyPurposeApproval)
	if err != nil {
		return nil, err
	}
	return &ApprovalStore{key: key, now: time.Now}, nil
}

// IsApproved reports whether the request carries a valid approval for clientID.
func (s *ApprovalStore) IsApproved(r *http.Request, clientID string) bool {
	return slices.Contains(s.approved(r), clientID)
}

// Approve returns a cookie whose approved set is the request's set plus clientID.
func (s *ApprovalStore) Approve(r *http.Request, clientID string) (*http.Cookie, error) {
	clients := s.approved(r)
	if !slices.Contains(clients, clientID) {
		clients = append(clients, clientID)
	}
	if len(clients) > maxApprovedClients {
		clients = clients[len(clients)-maxApprovedClients:]
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, approvalClaims{
		Clients: clients,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ApprovalCookieMaxAge)),
		},
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     ApprovalCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(ApprovalCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

func (s *ApprovalStore) approved(r *http.Request) []string {
	cookie, err := r.Cookie(ApprovalCookieName)
	if err != nil {
		return nil
	}

	var claims approvalClaims
	_, err = jwt.ParseWithClaims(cookie.Value, &claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		slog.Debug("ignoring invalid approval cookie", "error", err)
		return nil
	}
	return claims.Clients
}
