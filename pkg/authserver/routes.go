// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes registers the token, registration, revocation, introspection and
// metadata endpoints on r. /authorize belongs to the relay.
func (s *Server) Routes(r chi.Router) {
	r.Post(TokenPath, s.TokenHandler)
	r.Post(RegisterPath, s.RegisterClientHandler)
	r.Post(RevokePath, s.RevokeHandler)
	r.Post(IntrospectPath, s.IntrospectHandler)
	r.Get(AuthorizationServerMetadataPath, s.OAuthDiscoveryHandler)
	r.Get(ProtectedResourceMetadataPath, s.ProtectedResourceHandler)
	r.Get(ProtectedResourceMetadataPath+s.config.ResourcePath, s.ProtectedResourceHandler)
}

// Handler returns the authorization server endpoints as a standalone handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}
