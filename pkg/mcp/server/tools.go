// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stacklok/mcp-authrelay/pkg/auth"
	"github.com/stacklok/mcp-authrelay/pkg/imagegen"
	"github.com/stacklok/mcp-authrelay/pkg/watermark"
)

// Tool names.
const (
	ToolAdd           = "add"
	ToolEchoRequest   = "echoRequest"
	ToolWatermarkPDF  = "watermarkPDF"
	ToolGenerateImage = "generateImage"
)

// gatedTools are only listed and callable for identities the capability enables.
var gatedTools = []string{ToolGenerateImage}

const maxEchoBody = 1 << 20

type toolset struct {
	echoURL   string
	client    *http.Client
	watermark Watermarker
	images    ImageGenerator
	tools     []server.ServerTool
}

func newToolset(cfg Config) *toolset {
	t := &toolset{
		echoURL:   cfg.EchoURL,
		client:    cfg.HTTPClient,
		watermark: cfg.Watermark,
		images:    cfg.Images,
	}

	t.tools = []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolAdd,
				mcp.WithDescription("Add two numbers the way only MCP can"),
				mcp.WithNumber("a", mcp.Required()),
				mcp.WithNumber("b", mcp.Required()),
			),
			Handler: t.add,
		},
		{
			Tool: mcp.NewTool(ToolEchoRequest,
				mcp.WithDescription("See what the request looks like on the origin"),
			),
			Handler: t.echoRequest,
		},
		{
			Tool: mcp.NewTool(ToolWatermarkPDF,
				mcp.WithDescription("Add a watermark to a pdf"),
				mcp.WithString("pdfUrl", mcp.Required(), formatURI),
				mcp.WithString("watermarkText", mcp.Required()),
			),
			Handler: t.watermarkPDF,
		},
	}

	if t.images != nil {
		t.tools = append(t.tools, server.ServerTool{
			Tool: mcp.NewTool(ToolGenerateImage,
				mcp.WithDescription("Generate an image using the `flux-1-schnell` model. Works best with 8 steps."),
				mcp.WithString("prompt",
					mcp.Required(),
					mcp.Description("A text description of the image you want to generate."),
				),
				mcp.WithNumber("steps",
					mcp.DefaultNumber(imagegen.DefaultSteps),
					mcp.Description("The number of diffusion steps; higher values can improve quality but take longer. "+
						"Must be between 4 and 8, inclusive."),
				),
			),
			Handler: t.generateImage,
		})
	}
	return t
}

func formatURI(schema map[string]any) {
	schema["format"] = "uri"
}

func (t *toolset) definitions() []mcp.Tool {
	defs := make([]mcp.Tool, 0, len(t.tools))
	for _, st := range t.tools {
		defs = append(defs, st.Tool)
	}
	return defs
}

func (t *toolset) register(s *server.MCPServer) {
	s.AddTools(t.tools...)
}

func (*toolset) add(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := req.RequireFloat("a")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := req.RequireFloat("b")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strconv.FormatFloat(a+b, 'f', -1, 64)), nil
}

func (t *toolset) echoRequest(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	props, ok := auth.PropsFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("not authenticated"), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.echoURL, nil)
	if err != nil {
		return mcp.NewToolResultError("failed to make the request"), nil
	}
	req.Header.Set("cf-access-token", props.AccessToken)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := t.client.Do(req)
	if err != nil {
		slog.Debug("echo request failed", "error", err)
		return mcp.NewToolResultError("failed to make the request"), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return mcp.NewToolResultError(fmt.Sprintf("got an error. Status code = %d", resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEchoBody))
	if err != nil {
		return mcp.NewToolResultError("failed to make the request"), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (t *toolset) watermarkPDF(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	props, ok := auth.PropsFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("not authenticated"), nil
	}
	pdfURL, err := req.RequireString("pdfUrl")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("watermarkText")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := t.watermark.Run(ctx, watermark.Request{
		PDFURL:      pdfURL,
		Text:        text,
		AccessToken: props.AccessToken,
	})
	if err != nil {
		var stepErr *watermark.StepError
		if errors.As(err, &stepErr) {
			return mcp.NewToolResultError(stepErr.Message), nil
		}
		return mcp.NewToolResultError("Error watermarking PDF"), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (t *toolset) generateImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	steps := imagegen.ClampSteps(int(req.GetFloat("steps", imagegen.DefaultSteps)))

	img, err := t.images.Generate(ctx, prompt, steps)
	if err != nil {
		slog.Warn("image generation failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to generate image: %v", err)), nil
	}
	return mcp.NewToolResultImage("", img.Data, img.MIMEType), nil
}
