// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the fosite storage backends for the relay's
// authorization server: registered clients, authorization codes, access and
// refresh tokens, and PKCE sessions. Every grant carries a session.Session,
// so the upstream identity is recoverable from any issued token.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ory/fosite"
	"github.com/ory/fosite/handler/oauth2"
	"github.com/ory/fosite/handler/pkce"
)

// ErrNotFound is wrapped by every lookup miss, alongside fosite.ErrNotFound.
var ErrNotFound = errors.New("storage: not found")

// Fallback lifetimes used when a requester's session carries no expiry.
const (
	DefaultCleanupInterval    = 5 * time.Minute
	DefaultAccessTokenTTL     = time.Hour
	DefaultRefreshTokenTTL    = 7 * 24 * time.Hour
	DefaultAuthCodeTTL        = 10 * time.Minute
	DefaultInvalidatedCodeTTL = 30 * time.Minute
	DefaultPublicClientTTL    = 30 * 24 * time.Hour
)

// Storage is everything the fosite provider needs plus client registration.
type Storage interface {
	fosite.ClientManager
	oauth2.AuthorizeCodeStorage
	oauth2.AccessTokenStorage
	oauth2.RefreshTokenStorage
	oauth2.TokenRevocationStorage
	pkce.PKCERequestStorage

	// RegisterClient adds or replaces a client. Used for dynamic client
	// registration.
	RegisterClient(ctx context.Context, client fosite.Client) error

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error

	// Close releases background resources.
	Close() error
}

// Client is a registered OAuth client together with the display metadata
// supplied at registration.
type Client struct {
	*fosite.DefaultClient

	Name      string
	ClientURI string
	LogoURI   string
}

// expiresAt returns the expiry recorded on the requester's session for
// tokenType, or now+fallback when none is set.
func expiresAt(request fosite.Requester, tokenType fosite.TokenType, fallback time.Duration) time.Time {
	if request != nil {
		if sess := request.GetSession(); sess != nil {
			if exp := sess.GetExpiresAt(tokenType); !exp.IsZero() {
				return exp
			}
		}
	}
	return time.Now().Add(fallback)
}

// ttlFor is expiresAt expressed as a duration from now. A past expiry
// yields the fallback so that the record stays readable long enough for
// fosite to report it as expired.
func ttlFor(request fosite.Requester, tokenType fosite.TokenType, fallback time.Duration) time.Duration {
	ttl := time.Until(expiresAt(request, tokenType, fallback))
	if ttl <= 0 {
		return fallback
	}
	return ttl
}

func notFound(what string) error {
	return fmt.Errorf("%w: %w", ErrNotFound, fosite.ErrNotFound.WithHint(what+" not found"))
}

func validateCreate(key string, request fosite.Requester, what string) error {
	if key == "" {
		return fosite.ErrInvalidRequest.WithHint(what + " cannot be empty")
	}
	if request == nil {
		return fosite.ErrInvalidRequest.WithHint("request cannot be nil")
	}
	return nil
}
