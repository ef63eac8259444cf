// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coreos/go-oidc/v3/oidc"
)

const defaultDiscoveryMaxTries = 5

// Endpoints are the upstream URLs the relay calls.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string
}

// merge fills empty fields of e from other.
func (e Endpoints) merge(other Endpoints) Endpoints {
	if e.AuthorizeURL == "" {
		e.AuthorizeURL = other.AuthorizeURL
	}
	if e.TokenURL == "" {
		e.TokenURL = other.TokenURL
	}
	if e.UserInfoURL == "" {
		e.UserInfoURL = other.UserInfoURL
	}
	return e
}

type discoveryOptions struct {
	backOff  backoff.BackOff
	maxTries uint
}

// DiscoveryOption tunes Discover.
type DiscoveryOption func(*discoveryOptions)

// WithDiscoveryBackOff replaces the exponential backoff between attempts.
func WithDiscoveryBackOff(b backoff.BackOff) DiscoveryOption {
	return func(o *discoveryOptions) {
		o.backOff = b
	}
}

// WithDiscoveryMaxTries bounds the number of discovery attempts.
func WithDiscoveryMaxTries(n uint) DiscoveryOption {
	return func(o *discoveryOptions) {
		o.maxTries = n
	}
}

// Discover fetches the issuer's OIDC discovery document and returns its
// authorization, token and userinfo endpoints. Transient failures are
// retried with exponential backoff; this runs once at startup.
func Discover(ctx context.Context, issuer string, httpClient *http.Client, opts ...DiscoveryOption) (Endpoints, error) {
	options := &discoveryOptions{
		backOff:  backoff.NewExponentialBackOff(),
		maxTries: defaultDiscoveryMaxTries,
	}
	for _, opt := range opts {
		opt(options)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	operation := func() (Endpoints, error) {
		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), issuer)
		if err != nil {
			return Endpoints{}, err
		}
		endpoint := provider.Endpoint()
		return Endpoints{
			AuthorizeURL: endpoint.AuthURL,
			TokenURL:     endpoint.TokenURL,
			UserInfoURL:  provider.UserInfoEndpoint(),
		}, nil
	}

	endpoints, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(options.backOff),
		backoff.WithMaxTries(options.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("OIDC discovery failed, retrying", "issuer", issuer, "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return Endpoints{}, fmt.Errorf("OIDC discovery for %s failed: %w", issuer, err)
	}

	if endpoints.UserInfoURL == "" {
		return Endpoints{}, fmt.Errorf("issuer %s does not advertise a userinfo endpoint", issuer)
	}
	return endpoints, nil
}
