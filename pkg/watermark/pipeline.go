// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watermark fetches a PDF, stamps it through a watermarking service
// and publishes the result to a sharing endpoint. The three calls run as an
// ordered list of steps; the first failing step ends the run and its error
// text is what the caller reports.
package watermark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"
)

// Default endpoints.
const (
	DefaultWatermarkURL = "https://pdf.hypersloth.io/api/v1/security/add-watermark"
	DefaultShareURL     = "https://share.hypersloth.io"
)

// MaxDocumentSize bounds every document read into memory.
const MaxDocumentSize = 50 << 20

const defaultTimeout = 60 * time.Second

// Style is the fixed watermark styling sent with every request.
type Style struct {
	FontSize          string
	Rotation          string
	Opacity           string
	WidthSpacer       string
	HeightSpacer      string
	CustomColor       string
	ConvertPDFToImage bool
}

// DefaultStyle is a diagonal, half-transparent dark grey text watermark.
var DefaultStyle = Style{
	FontSize:     "30",
	Rotation:     "45",
	Opacity:      ".5",
	WidthSpacer:  "50",
	HeightSpacer: "50",
	CustomColor:  "#363d3d",
}

// Options configures a Pipeline.
type Options struct {
	WatermarkURL string
	ShareURL     string

	// ShareSecret is sent verbatim as the Authorization header of the upload.
	ShareSecret string

	Style      *Style
	HTTPClient *http.Client
}

// Request is one watermarking job.
type Request struct {
	PDFURL string
	Text   string

	// AccessToken is the caller's upstream token, forwarded to the
	// watermarking service.
	AccessToken string
}

// StepError is a step failure. Its message is meant for the end user.
type StepError struct {
	Step    string
	Message string
	Err     error
}

func (e *StepError) Error() string {
	return e.Message
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// job carries intermediate results between steps.
type job struct {
	req         Request
	source      []byte
	watermarked []byte
	shareText   string
}

type step struct {
	name string
	run  func(ctx context.Context, j *job) error
}

// Pipeline runs the fetch, watermark and upload steps.
type Pipeline struct {
	watermarkURL string
	shareURL     string
	shareHost    string
	shareSecret  string
	style        Style
	client       *http.Client
	steps        []step
}

// New builds a Pipeline. Empty endpoints fall back to the defaults.
func New(opts Options) (*Pipeline, error) {
	p := &Pipeline{
		watermarkURL: opts.WatermarkURL,
		shareURL:     opts.ShareURL,
		shareSecret:  opts.ShareSecret,
		style:        DefaultStyle,
		client:       opts.HTTPClient,
	}
	if p.watermarkURL == "" {
		p.watermarkURL = DefaultWatermarkURL
	}
	if p.shareURL == "" {
		p.shareURL = DefaultShareURL
	}
	if opts.Style != nil {
		p.style = *opts.Style
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: defaultTimeout}
	}

	share, err := url.Parse(p.shareURL)
	if err != nil || share.Host == "" {
		return nil, fmt.Errorf("invalid share URL %q", p.shareURL)
	}
	p.shareHost = share.Host

	p.steps = []step{
		{name: "fetch", run: p.fetch},
		{name: "watermark", run: p.watermark},
		{name: "upload", run: p.upload},
	}
	return p, nil
}

// Run executes the steps in order and returns the success message. A
// failure is returned as a *StepError.
func (p *Pipeline) Run(ctx context.Context, req Request) (string, error) {
	j := &job{req: req}
	for _, s := range p.steps {
		start := time.Now()
		if err := s.run(ctx, j); err != nil {
			slog.Debug("watermark step failed", "step", s.name, "error", err)
			var stepErr *StepError
			if errors.As(err, &stepErr) {
				return "", stepErr
			}
			return "", &StepError{Step: s.name, Message: fmt.Sprintf("Error during %s step", s.name), Err: err}
		}
		slog.Debug("watermark step completed", "step", s.name, "duration", time.Since(start))
	}
	return "PDF watermarked! Grab it here:\n\n" + j.shareText, nil
}

func (p *Pipeline) fetch(ctx context.Context, j *job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.req.PDFURL, nil)
	if err != nil {
		return &StepError{Step: "fetch", Message: "Error fetching PDF. Invalid URL", Err: err}
	}

	body, status, err := p.do(req)
	if err != nil {
		return &StepError{Step: "fetch", Message: "Error fetching PDF. Request failed", Err: err}
	}
	if !ok(status) {
		return &StepError{Step: "fetch", Message: fmt.Sprintf("Error fetching PDF. Status code = %d", status)}
	}
	j.source = body
	return nil
}

func (p *Pipeline) watermark(ctx context.Context, j *job) error {
	fields := [][2]string{
		{"watermarkType", "text"},
		{"watermarkText", j.req.Text},
		{"fontSize", p.style.FontSize},
		{"rotation", p.style.Rotation},
		{"opacity", p.style.Opacity},
		{"widthSpacer", p.style.WidthSpacer},
		{"heightSpacer", p.style.HeightSpacer},
		{"customColor", p.style.CustomColor},
		{"convertPDFToImage", fmt.Sprint(p.style.ConvertPDFToImage)},
	}
	body, contentType, err := multipartBody("fileInput", "document.pdf", "application/octet-stream", j.source, fields)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.watermarkURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("cf-access-token", j.req.AccessToken)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	out, status, err := p.do(req)
	if err != nil {
		return &StepError{Step: "watermark", Message: "Error from watermark API. Request failed", Err: err}
	}
	if !ok(status) {
		return &StepError{Step: "watermark", Message: fmt.Sprintf("Error from watermark API. Status: %d", status)}
	}
	j.watermarked = out
	return nil
}

func (p *Pipeline) upload(ctx context.Context, j *job) error {
	body, contentType, err := multipartBody("file", "watermarked.pdf", "application/pdf", j.watermarked, nil)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.shareURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", p.shareSecret)

	out, status, err := p.do(req)
	if err != nil {
		return &StepError{Step: "upload", Message: fmt.Sprintf("Error uploading to %s. Request failed", p.shareHost), Err: err}
	}
	if !ok(status) {
		return &StepError{Step: "upload", Message: fmt.Sprintf("Error uploading to %s. Status = %d", p.shareHost, status)}
	}
	j.shareText = string(out)
	return nil
}

func (p *Pipeline) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxDocumentSize {
		return nil, resp.StatusCode, fmt.Errorf("response exceeds %d bytes", MaxDocumentSize)
	}
	return body, resp.StatusCode, nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}

// multipartBody builds a form with one file part followed by fields.
func multipartBody(fileField, fileName, fileType string, data []byte, fields [][2]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, fileName))
	header.Set("Content-Type", fileType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
