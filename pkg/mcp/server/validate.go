// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/xeipuuv/gojsonschema"
)

// argumentValidator checks call arguments against each tool's input schema
// before the handler runs.
type argumentValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func newArgumentValidator(tools []mcp.Tool) (*argumentValidator, error) {
	v := &argumentValidator{schemas: make(map[string]*gojsonschema.Schema, len(tools))}
	for _, tool := range tools {
		raw := tool.RawInputSchema
		if raw == nil {
			var err error
			if raw, err = json.Marshal(tool.InputSchema); err != nil {
				return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
			}
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		v.schemas[tool.Name] = schema
	}
	return v, nil
}

// validate returns a message describing every violation, or "" when args conform.
func (v *argumentValidator) validate(tool string, args map[string]any) (string, error) {
	schema, ok := v.schemas[tool]
	if !ok {
		return "", nil
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return "", err
	}
	if result.Valid() {
		return "", nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return "invalid arguments: " + strings.Join(problems, "; "), nil
}

func (v *argumentValidator) middleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, err := v.validate(req.Params.Name, req.GetArguments())
		if err != nil {
			return nil, fmt.Errorf("failed to validate arguments: %w", err)
		}
		if msg != "" {
			return mcp.NewToolResultError(msg), nil
		}
		return next(ctx, req)
	}
}
