// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gateway assembles the relay, the authorization server and the MCP
// tool server behind one HTTP listener.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/mcp-authrelay/pkg/auth"
	"github.com/stacklok/mcp-authrelay/pkg/authserver"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/relay"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/storage"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/upstream"
	"github.com/stacklok/mcp-authrelay/pkg/config"
	"github.com/stacklok/mcp-authrelay/pkg/imagegen"
	mcpserver "github.com/stacklok/mcp-authrelay/pkg/mcp/server"
	"github.com/stacklok/mcp-authrelay/pkg/versions"
	"github.com/stacklok/mcp-authrelay/pkg/watermark"
)

const (
	// HealthPath reports token storage health.
	HealthPath = "/health"

	// MetricsPath serves Prometheus metrics.
	MetricsPath = "/metrics"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Server is the assembled authrelay HTTP server.
type Server struct {
	config   *config.Config
	router   chi.Router
	storage  storage.Storage
	registry *prometheus.Registry
}

type options struct {
	httpClient *http.Client
	storage    storage.Storage
	discovery  []upstream.DiscoveryOption
}

// Option customizes New.
type Option func(*options)

// WithHTTPClient sets the client used for every outbound call.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithStorage replaces the storage backend selected by the configuration.
func WithStorage(s storage.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithDiscoveryOptions tunes upstream OIDC discovery.
func WithDiscoveryOptions(opts ...upstream.DiscoveryOption) Option {
	return func(o *options) {
		o.discovery = append(o.discovery, opts...)
	}
}

// New wires every component from cfg. It performs upstream discovery and
// connects to storage, so it blocks until both are ready or fail.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Tools.HTTPTimeout}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	provider, err := upstream.NewProvider(ctx, cfg.Upstream, cfg.RedirectURI(), o.httpClient, o.discovery...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure upstream provider: %w", err)
	}

	stor := o.storage
	if stor == nil {
		stor, err = storage.New(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create token storage: %w", err)
		}
	}

	srv, err := build(cfg, provider, stor, registry, o.httpClient)
	if err != nil {
		_ = stor.Close()
		return nil, err
	}
	return srv, nil
}

func build(
	cfg *config.Config,
	provider *upstream.Provider,
	stor storage.Storage,
	registry *prometheus.Registry,
	httpClient *http.Client,
) (*Server, error) {
	authServer, err := authserver.New(authserver.Config{
		Issuer:               cfg.BaseURL,
		Secret:               []byte(cfg.CookieEncryptionKey),
		AccessTokenLifespan:  cfg.Tokens.AccessTokenLifespan,
		RefreshTokenLifespan: cfg.Tokens.RefreshTokenLifespan,
		AuthCodeLifespan:     cfg.Tokens.AuthCodeLifespan,
		ResourceName:         cfg.Server.Name,
	}, stor)
	if err != nil {
		return nil, err
	}

	rl, err := relay.New(relay.Options{
		Server:    authServer,
		Redirect:  provider.Redirect,
		Exchanger: provider.Exchanger,
		Claims:    provider.Claims,
		CookieKey: []byte(cfg.CookieEncryptionKey),
		ServerInfo: relay.ServerInfo{
			Name:        cfg.Server.Name,
			Description: cfg.Server.Description,
			LogoURL:     cfg.Server.LogoURL,
		},
		LivenessText:      cfg.LivenessText,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Metrics:           relay.NewMetrics(registry),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create relay: %w", err)
	}

	pipeline, err := watermark.New(watermark.Options{
		WatermarkURL: cfg.Tools.WatermarkURL,
		ShareURL:     cfg.Tools.ShareURL,
		ShareSecret:  cfg.Tools.ShareUploadSecret,
		HTTPClient:   httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create watermark pipeline: %w", err)
	}

	var images mcpserver.ImageGenerator
	if cfg.Image.Enabled() {
		images = imagegen.New(cfg.Image)
	} else {
		slog.Info("image generation disabled: no account id or API token configured")
	}

	tools, err := mcpserver.New(mcpserver.Config{
		Version:    versions.GetVersionInfo().Version,
		EchoURL:    cfg.Tools.EchoURL,
		HTTPClient: httpClient,
		Watermark:  pipeline,
		Images:     images,
		Capability: auth.NewAllowSetCapability(cfg.AllowedEmails, mcpserver.ToolGenerateImage),
		Registerer: registry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)
	rl.Routes(r)
	authServer.Routes(r)
	r.Get(HealthPath, healthHandler(stor))
	r.Handle(MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	r.Handle(mcpserver.DefaultEndpointPath, authServer.RequireBearer(tools.Handler()))

	return &Server{
		config:   cfg,
		router:   r,
		storage:  stor,
		registry: registry,
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		_ = s.storage.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done, then shuts down gracefully and
// closes token storage.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("authrelay listening", "address", listener.Addr().String(), "base_url", s.config.BaseURL)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		slog.Info("authrelay stopped")
		return nil
	})

	err := g.Wait()
	if closeErr := s.storage.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close token storage: %w", closeErr))
	}
	return err
}

func healthHandler(stor storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := stor.Health(r.Context()); err != nil {
			slog.Warn("token storage unhealthy", "error", err)
			http.Error(w, "token storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
