// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package relay implements the authorization relay: it receives an MCP
// client's authorization request, obtains consent, sends the browser to the
// upstream identity provider with the request carried in a signed state
// parameter, and on the way back exchanges the upstream code, fetches the
// user's identity and asks the authorization server to complete the grant.
package relay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stacklok/toolhive-core/httperr"
	"golang.org/x/time/rate"

	"github.com/stacklok/mcp-authrelay/pkg/auth"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/upstream"
)

// Route labels used in metrics and logs.
const (
	routeAuthorize = "authorize"
	routeApprove   = "approve"
	routeCallback  = "callback"
)

// Client-facing error bodies.
const (
	msgInvalidRequest = "Invalid request"
	msgInvalidState   = "Invalid state"
)

// DefaultLivenessText is returned by GET / when none is configured.
const DefaultLivenessText = "ok"

// Options configures a Relay.
type Options struct {
	Server    AuthorizationServer
	Redirect  RedirectBuilder
	Exchanger TokenExchanger
	Claims    ClaimsFetcher

	// CookieKey is the secret that state and approval-cookie keys are
	// derived from.
	CookieKey []byte

	ServerInfo   ServerInfo
	LivenessText string
	StateTTL     time.Duration

	// RequestsPerSecond and Burst bound /authorize and /callback. Zero
	// disables the limit.
	RequestsPerSecond float64
	Burst             int

	Metrics *Metrics
}

// Relay serves /, /authorize and /callback for one upstream provider.
type Relay struct {
	server    AuthorizationServer
	redirect  RedirectBuilder
	exchanger TokenExchanger
	claims    ClaimsFetcher

	states    *StateCodec
	approvals *ApprovalStore

	serverInfo   ServerInfo
	livenessText string
	limiter      *rate.Limiter
	metrics      *Metrics
}

// New builds a Relay from opts.
func New(opts Options) (*Relay, error) {
	if opts.Server == nil || opts.Redirect == nil || opts.Exchanger == nil || opts.Claims == nil {
		return nil, errors.New("relay requires an authorization server and all upstream components")
	}

	states, err := NewStateCodec(opts.CookieKey, opts.StateTTL)
	if err != nil {
		return nil, err
	}
	approvals, err := NewApprovalStore(opts.CookieKey)
	if err != nil {
		return nil, err
	}

	liveness := opts.LivenessText
	if liveness == "" {
		liveness = DefaultLivenessText
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := max(opts.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Relay{
		server:       opts.Server,
		redirect:     opts.Redirect,
		exchanger:    opts.Exchanger,
		claims:       opts.Claims,
		states:       states,
		approvals:    approvals,
		serverInfo:   opts.ServerInfo,
		livenessText: liveness,
		limiter:      limiter,
		metrics:      opts.Metrics,
	}, nil
}

// Routes registers the relay endpoints on r.
func (rl *Relay) Routes(r chi.Router) {
	r.Get("/", rl.handleLiveness)
	r.Group(func(r chi.Router) {
		r.Use(rl.rateLimit)
		r.Get("/authorize", rl.handleAuthorizeGet)
		r.Post("/authorize", rl.handleAuthorizePost)
		r.Get("/callback", rl.handleCallback)
	})
}

// Handler returns the relay endpoints as a standalone handler.
func (rl *Relay) Handler() http.Handler {
	r := chi.NewRouter()
	rl.Routes(r)
	return r
}

func (rl *Relay) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, rl.livenessText)
}

// handleAuthorizeGet either skips straight to the upstream redirect for a
// client this browser already approved, or renders the approval dialog.
func (rl *Relay) handleAuthorizeGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	areq, err := rl.server.ParseAuthRequest(ctx, r)
	if err != nil {
		rl.writeError(w, routeAuthorize, err)
		return
	}
	if areq == nil || areq.ClientID == "" {
		rl.badRequest(w, routeAuthorize, msgInvalidRequest)
		return
	}

	state, err := rl.states.Encode(areq)
	if err != nil {
		rl.writeError(w, routeAuthorize, err)
		return
	}

	if rl.approvals.IsApproved(r, areq.ClientID) {
		slog.Debug("client already approved, redirecting upstream", "client_id", areq.ClientID)
		rl.redirectUpstream(w, r, routeAuthorize, state)
		return
	}

	client, err := rl.server.LookupClient(ctx, areq.ClientID)
	if err != nil {
		rl.writeError(w, routeAuthorize, err)
		return
	}

	rl.metrics.observeRequest(routeAuthorize, outcomeDialog)
	renderApprovalDialog(w, rl.serverInfo, client, state)
}

// handleAuthorizePost consumes the approval form, remembers the approval in
// a cookie and redirects upstream.
func (rl *Relay) handleAuthorizePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		rl.badRequest(w, routeApprove, msgInvalidRequest)
		return
	}

	areq, err := rl.states.Decode(r.PostForm.Get("state"))
	if err != nil {
		slog.Debug("rejecting approval form", "error", err)
		rl.badRequest(w, routeApprove, msgInvalidRequest)
		return
	}

	cookie, err := rl.approvals.Approve(r, areq.ClientID)
	if err != nil {
		rl.writeError(w, routeApprove, fmt.Errorf("failed to issue approval cookie: %w", err))
		return
	}

	// Re-sign so the upstream round trip gets the full state lifetime
	// regardless of how long the dialog was open.
	state, err := rl.states.Encode(areq)
	if err != nil {
		rl.writeError(w, routeApprove, err)
		return
	}

	http.SetCookie(w, cookie)
	rl.redirectUpstream(w, r, routeApprove, state)
}

// handleCallback finishes one authorization attempt. Token exchange,
// identity fetch and completion run strictly in that order, and the first
// failure ends the request.
func (rl *Relay) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	areq, err := rl.states.Decode(query.Get("state"))
	if err != nil {
		slog.Debug("rejecting callback", "error", err)
		rl.badRequest(w, routeCallback, msgInvalidState)
		return
	}

	log := slog.With("attempt_id", uuid.NewString(), "client_id", areq.ClientID)

	start := time.Now()
	accessToken, err := rl.exchanger.Exchange(ctx, query.Get("code"))
	rl.metrics.observeUpstream(string(upstream.OperationToken), start, err)
	if err != nil {
		log.Warn("upstream token exchange failed", "error", err)
		rl.writeUpstreamError(w, r, err)
		return
	}

	start = time.Now()
	claims, err := rl.claims.Fetch(ctx, accessToken)
	rl.metrics.observeUpstream(string(upstream.OperationUserInfo), start, err)
	if err != nil {
		log.Warn("upstream identity fetch failed", "error", err)
		rl.writeUpstreamError(w, r, err)
		return
	}

	props := auth.Props{
		Login:       claims.Subject,
		Name:        claims.Name,
		Email:       claims.Email,
		AccessToken: accessToken,
	}
	redirectTo, err := rl.server.CompleteAuthorization(ctx, CompleteRequest{
		Request: areq,
		UserID:  claims.Subject,
		Label:   claims.Name,
		Scope:   areq.Scope,
		Props:   props,
	})
	if err != nil {
		log.Warn("authorization completion failed", "error", err)
		rl.writeError(w, routeCallback, err)
		return
	}

	log.Info("authorization completed", "props", props)
	rl.metrics.observeRequest(routeCallback, outcomeCompleted)
	http.Redirect(w, r, redirectTo, http.StatusFound)
}

func (rl *Relay) redirectUpstream(w http.ResponseWriter, r *http.Request, route, state string) {
	rl.metrics.observeRequest(route, outcomeRedirected)
	http.Redirect(w, r, rl.redirect.Build(state), http.StatusFound)
}

func (rl *Relay) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limiter != nil && !rl.limiter.Allow() {
			rl.metrics.observeRequest(strings.TrimPrefix(r.URL.Path, "/"), outcomeRateLimited)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *Relay) badRequest(w http.ResponseWriter, route, msg string) {
	rl.metrics.observeRequest(route, outcomeBadRequest)
	http.Error(w, msg, http.StatusBadRequest)
}

// writeUpstreamError writes the prepared upstream response when there is
// one and a generic gateway error otherwise.
func (rl *Relay) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	rl.metrics.observeRequest(routeCallback, outcomeUpstreamErr)

	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		upErr.ServeHTTP(w, r)
		return
	}
	http.Error(w, "Bad gateway", http.StatusBadGateway)
}

// writeError maps err to its httperr status. Client errors echo the
// message; server errors do not.
func (rl *Relay) writeError(w http.ResponseWriter, route string, err error) {
	code := httperr.Code(err)
	if code < http.StatusBadRequest {
		code = http.StatusInternalServerError
	}

	if code >= http.StatusInternalServerError {
		slog.Error("relay request failed", "route", route, "error", err)
		rl.metrics.observeRequest(route, outcomeServerErr)
		http.Error(w, "Internal server error", code)
		return
	}

	rl.metrics.observeRequest(route, outcomeBadRequest)
	http.Error(w, err.Error(), code)
}
