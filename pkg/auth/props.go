// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth holds the identity that an authorized session carries into the
// tool layer and the capability predicate that decides which gated tools that
// identity may use.
package auth

import (
	"fmt"
	"log/slog"
)

// Props is the authenticated-session payload handed to tool handlers once an
// authorization completes. It is written once by the relay callback and only
// read afterwards.
type Props struct {
	// Login is the upstream subject identifier.
	Login string `json:"login"`

	// Name is the display name reported by the upstream userinfo endpoint.
	Name string `json:"name"`

	// Email is the email reported by the upstream userinfo endpoint.
	Email string `json:"email"`

	// AccessToken is the upstream bearer token, forwarded by tools that call
	// services sitting behind the same identity provider.
	//
	// It is redacted by String and LogValue. JSON encoding keeps it because
	// the token store persists Props.
	AccessToken string `json:"accessToken"`
}

// IsZero reports whether no identity is present.
func (p Props) IsZero() bool {
	return p == Props{}
}

// String returns a representation safe for logs.
func (p Props) String() string {
	return fmt.Sprintf("Props{Login:%q, Email:%q}", p.Login, p.Email)
}

// LogValue implements slog.LogValuer so the access token never reaches a log sink.
func (p Props) LogValue() slog.Value {
	token := ""
	if p.AccessToken != "" {
		token = "REDACTED"
	}
	return slog.GroupValue(
		slog.String("login", p.Login),
		slog.String("name", p.Name),
		slog.String("email", p.Email),
		slog.String("access_token", token),
	)
}
