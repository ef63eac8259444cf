// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"log/slog"
	"net/http"

	"github.com/stacklok/mcp-authrelay/pkg/auth"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/session"
)

// TokenHandler handles POST /token for the authorization_code and
// refresh_token grants.
func (s *Server) TokenHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	// Template only: fosite loads the stored session of the code or refresh
	// token into it.
	sess := session.New("", "", auth.Props{})

	accessRequest, err := s.provider.NewAccessRequest(ctx, req, sess)
	if err != nil {
		slog.Debug("rejected token request", "error", err)
		s.provider.WriteAccessError(ctx, w, accessRequest, err)
		return
	}

	// RFC 8707: a single resource parameter binds the token audience. Only
	// the MCP endpoint is a valid resource.
	resources := accessRequest.GetRequestForm()["resource"]
	if len(resources) > 1 {
		s.provider.WriteAccessError(ctx, w, accessRequest,
			ErrInvalidTarget.WithHint("Multiple resource parameters are not supported"))
		return
	}
	if len(resources) == 1 {
		if err := validateResource(resources[0], []string{s.config.ResourceURL()}); err != nil {
			slog.Debug("rejected token resource", "resource", resources[0], "error", err)
			s.provider.WriteAccessError(ctx, w, accessRequest, err)
			return
		}
		accessRequest.GrantAudience(resources[0])
	}

	response, err := s.provider.NewAccessResponse(ctx, accessRequest)
	if err != nil {
		slog.Error("failed to create access response", "error", err)
		s.provider.WriteAccessError(ctx, w, accessRequest, err)
		return
	}

	slog.Debug("issued tokens",
		"client_id", accessRequest.GetClient().GetID(),
		"grant_type", accessRequest.GetGrantTypes(),
	)
	s.provider.WriteAccessResponse(ctx, w, accessRequest, response)
}

// RevokeHandler handles POST /revoke (RFC 7009).
func (s *Server) RevokeHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	err := s.provider.NewRevocationRequest(ctx, req)
	if err != nil {
		slog.Debug("revocation request failed", "error", err)
	}
	s.provider.WriteRevocationResponse(ctx, w, err)
}

// IntrospectHandler handles POST /introspect (RFC 7662). Callers
// authenticate as a confidential client or with a bearer token.
func (s *Server) IntrospectHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	ir, err := s.provider.NewIntrospectionRequest(ctx, req, session.New("", "", auth.Props{}))
	if err != nil {
		slog.Debug("introspection request failed", "error", err)
		s.provider.WriteIntrospectionError(ctx, w, err)
		return
	}
	s.provider.WriteIntrospectionResponse(ctx, w, ir)
}
