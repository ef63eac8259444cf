// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tool call outcomes.
const (
	outcomeSuccess   = "success"
	outcomeToolError = "tool_error"
	outcomeDenied    = "denied"
	outcomeFailed    = "failed"
)

type toolMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newToolMetrics(reg prometheus.Registerer) *toolMetrics {
	factory := promauto.With(reg)
	return &toolMetrics{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authrelay_tool_calls_total",
			Help: "MCP tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authrelay_tool_call_duration_seconds",
			Help:    "MCP tool call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
	}
}

func (m *toolMetrics) middleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	if m == nil {
		return next
	}
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := next(ctx, req)

		outcome := outcomeSuccess
		switch {
		case errors.Is(err, server.ErrToolNotFound):
			outcome = outcomeDenied
		case err != nil:
			outcome = outcomeFailed
		case result != nil && result.IsError:
			outcome = outcomeToolError
		}
		m.calls.WithLabelValues(req.Params.Name, outcome).Inc()
		m.duration.WithLabelValues(req.Params.Name).Observe(time.Since(start).Seconds())
		return result, err
	}
}
