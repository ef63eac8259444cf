// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package imagegen is a client for the Workers AI text-to-image REST API.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stacklok/mcp-authrelay/pkg/config"
)

const (
	// DefaultBaseURL is the public API origin.
	DefaultBaseURL = "https://api.cloudflare.com"

	// MinSteps and MaxSteps bound the diffusion step count.
	MinSteps = 4
	MaxSteps = 8

	// DefaultSteps is used when the caller does not choose.
	DefaultSteps = MinSteps

	// MIMEType is the format of generated images.
	MIMEType = "image/jpeg"

	maxResponseSize = 20 << 20
	defaultTimeout  = 60 * time.Second
)

// ErrNotConfigured is returned when no account or token is set.
var ErrNotConfigured = errors.New("image generation is not configured")

// Image is a generated image.
type Image struct {
	// Data is base64 encoded, as returned by the API.
	Data     string
	MIMEType string
}

// Client calls the inference API.
type Client struct {
	baseURL   string
	accountID string
	apiToken  string
	model     string
	http      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// New creates a Client from cfg.
func New(cfg config.ImageConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		accountID: cfg.AccountID,
		apiToken:  cfg.APIToken,
		model:     cfg.Model,
		http:      &http.Client{Timeout: defaultTimeout},
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = config.DefaultImageModel
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClampSteps bounds steps to [MinSteps, MaxSteps].
func ClampSteps(steps int) int {
	return min(max(steps, MinSteps), MaxSteps)
}

// Generate renders prompt. steps is clamped before it is sent.
func (c *Client) Generate(ctx context.Context, prompt string, steps int) (*Image, error) {
	if c.accountID == "" || c.apiToken == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt is required")
	}

	payload, err := json.Marshal(struct {
		Prompt string `json:"prompt"`
		Steps  int    `json:"steps"`
	}{Prompt: prompt, Steps: ClampSteps(steps)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/client/v4/accounts/%s/ai/run/%s",
		c.baseURL, url.PathEscape(c.accountID), c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read image response: %w", err)
	}
	slog.Debug("image generation finished", "model", c.model, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		if msg := gjson.GetBytes(body, "errors.0.message"); msg.Exists() {
			return nil, fmt.Errorf("image generation failed with status %d: %s", resp.StatusCode, msg.String())
		}
		return nil, fmt.Errorf("image generation failed with status %d", resp.StatusCode)
	}

	image := gjson.GetBytes(body, "result.image")
	if !image.Exists() || image.String() == "" {
		return nil, errors.New("image generation response has no image")
	}
	return &Image{Data: image.String(), MIMEType: MIMEType}, nil
}
