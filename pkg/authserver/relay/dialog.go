// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/approval.html
var approvalHTML string

var approvalTemplate = template.Must(template.New("approval").Parse(approvalHTML))

// ServerInfo is the display metadata shown on the approval dialog.
type ServerInfo struct {
	Name        string
	Description string
	LogoURL     string
}

type approvalPage struct {
	ServerName        string
	ServerDescription string
	LogoURL           string
	ClientName        string
	ClientURI         string
	RedirectURIs      []string
	Action            string
	State             string
}

// renderApprovalDialog writes the consent page. state is the signed value
// the form posts back to /authorize.
func renderApprovalDialog(w http.ResponseWriter, server ServerInfo, client *ClientInfo, state string) {
	page := approvalPage{
		ServerName:        server.Name,
		ServerDescription: server.Description,
		LogoURL:           server.LogoURL,
		ClientName:        "Unknown MCP Client",
		Action:            "/authorize",
		State:             state,
	}
	if client != nil {
		if client.ClientName != "" {
			page.ClientName = client.ClientName
		}
		page.ClientURI = client.ClientURI
		page.RedirectURIs = client.RedirectURIs
	}

	var buf bytes.Buffer
	if err := approvalTemplate.Execute(&buf, page); err != nil {
		slog.Error("failed to render approval dialog", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
	_, _ = w.Write(buf.Bytes())
}
