// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stacklok/mcp-authrelay/pkg/auth"
)

// capabilityGate hides gated tools from tools/list and rejects calls to them
// unless the session's capability enables them. Ungated tools pass through.
type capabilityGate struct {
	capability auth.Capability
	gated      map[string]struct{}
}

func newCapabilityGate(capability auth.Capability, tools ...string) *capabilityGate {
	gated := make(map[string]struct{}, len(tools))
	for _, name := range tools {
		gated[name] = struct{}{}
	}
	return &capabilityGate{capability: capability, gated: gated}
}

func (g *capabilityGate) allowed(ctx context.Context, tool string) bool {
	if _, ok := g.gated[tool]; !ok {
		return true
	}
	props, ok := auth.PropsFromContext(ctx)
	if !ok {
		return false
	}
	return g.capability.Enabled(*props, tool)
}

func (g *capabilityGate) filter(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	visible := make([]mcp.Tool, 0, len(tools))
	for _, tool := range tools {
		if g.allowed(ctx, tool.Name) {
			visible = append(visible, tool)
		}
	}
	return visible
}

// middleware answers a call to a hidden tool exactly like a call to an
// unknown one.
func (g *capabilityGate) middleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !g.allowed(ctx, req.Params.Name) {
			slog.Debug("denied gated tool call", "tool", req.Params.Name)
			return nil, fmt.Errorf("tool '%s' not found: %w", req.Params.Name, server.ErrToolNotFound)
		}
		return next(ctx, req)
	}
}
