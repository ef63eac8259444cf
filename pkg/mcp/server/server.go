// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server provides the MCP tool server exposed behind the relay.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stacklok/mcp-authrelay/pkg/auth"
	"github.com/stacklok/mcp-authrelay/pkg/imagegen"
	"github.com/stacklok/mcp-authrelay/pkg/watermark"
)

const (
	// DefaultName is the server name reported during initialization.
	DefaultName = "Access OAuth Proxy Demo"

	// DefaultEndpointPath is where the streamable HTTP transport is mounted.
	DefaultEndpointPath = "/mcp"
)

// Watermarker runs the watermark pipeline.
type Watermarker interface {
	Run(ctx context.Context, req watermark.Request) (string, error)
}

// ImageGenerator renders an image from a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, steps int) (*imagegen.Image, error)
}

// Config holds the configuration for the MCP server
type Config struct {
	Name    string
	Version string

	// EchoURL is the origin echoRequest calls.
	EchoURL    string
	HTTPClient *http.Client

	Watermark Watermarker

	// Images backs generateImage. The tool is not registered when nil.
	Images ImageGenerator

	// Capability decides which gated tools a session may list and call.
	Capability auth.Capability

	// Registerer receives the tool call metrics. Nil disables them.
	Registerer prometheus.Registerer
}

// Server is the MCP tool server.
type Server struct {
	mcpServer *server.MCPServer
	tools     *toolset
	metrics   *toolMetrics
}

// New creates the MCP server and registers its tools.
func New(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.EchoURL == "" {
		return nil, errors.New("echo URL is required")
	}
	if cfg.Watermark == nil {
		return nil, errors.New("watermark pipeline is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	tools := newToolset(cfg)
	validator, err := newArgumentValidator(tools.definitions())
	if err != nil {
		return nil, fmt.Errorf("failed to compile tool schemas: %w", err)
	}

	var metrics *toolMetrics
	if cfg.Registerer != nil {
		metrics = newToolMetrics(cfg.Registerer)
	}
	gate := newCapabilityGate(cfg.Capability, gatedTools...)

	// Middlewares run in registration order, outermost first.
	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(metrics.middleware),
		server.WithToolHandlerMiddleware(gate.middleware),
		server.WithToolHandlerMiddleware(validator.middleware),
		server.WithToolFilter(gate.filter),
	)
	tools.register(mcpServer)

	return &Server{mcpServer: mcpServer, tools: tools, metrics: metrics}, nil
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Handler returns the streamable HTTP transport mounted at DefaultEndpointPath.
// Session Props placed on the request context by the bearer middleware are
// carried into tool handlers.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath(DefaultEndpointPath),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if props, ok := auth.PropsFromContext(r.Context()); ok {
				return auth.WithProps(ctx, props)
			}
			return ctx
		}),
	)
}
