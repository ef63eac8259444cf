// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ory/fosite"

	"github.com/stacklok/mcp-authrelay/pkg/auth"
	"github.com/stacklok/mcp-authrelay/pkg/authserver/session"
)

// RequireBearer validates the access token on every request and places the
// grant's identity properties on the request context. Requests without a
// valid token get a 401 pointing at the protected resource metadata.
func (s *Server) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := fosite.AccessTokenFromRequest(r)
		if token == "" {
			s.writeUnauthorized(w, "", "")
			return
		}

		_, ar, err := s.provider.IntrospectToken(ctx, token, fosite.AccessToken, session.New("", "", auth.Props{}))
		if err != nil {
			rfcErr := fosite.ErrorToRFC6749Error(err)
			slog.Debug("rejected bearer token", "error", rfcErr.ErrorField, "hint", rfcErr.HintField)
			s.writeUnauthorized(w, "invalid_token", "The access token is invalid or has expired")
			return
		}

		if !audienceAllows(ar.GetGrantedAudience(), s.config.ResourceURL()) {
			slog.Debug("rejected bearer token for another resource", "audience", []string(ar.GetGrantedAudience()))
			s.writeUnauthorized(w, "invalid_token", "The access token was not issued for this resource")
			return
		}

		sess, ok := session.FromRequester(ar)
		if !ok {
			slog.Error("token session has unexpected type", "type", fmt.Sprintf("%T", ar.GetSession()))
			s.writeUnauthorized(w, "invalid_token", "The access token is invalid or has expired")
			return
		}

		props := sess.Props
		next.ServeHTTP(w, r.WithContext(auth.WithProps(ctx, &props)))
	})
}

func (s *Server) writeUnauthorized(w http.ResponseWriter, code, description string) {
	challenge := fmt.Sprintf(`Bearer resource_metadata=%q`, s.ResourceMetadataURL())
	if code != "" {
		challenge = fmt.Sprintf(`Bearer error=%q, error_description=%q, resource_metadata=%q`,
			code, description, s.ResourceMetadataURL())
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	body := map[string]string{"error": "unauthorized", "error_description": "Missing bearer token"}
	if code != "" {
		body = map[string]string{"error": code, "error_description": description}
	}
	_ = json.NewEncoder(w).Encode(body)
}
