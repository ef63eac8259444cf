// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/mcp-authrelay/pkg/authserver/registration"
)

// maxDCRBodySize is the maximum allowed size for registration request bodies.
const maxDCRBodySize = 64 * 1024

// RegisterClientHandler handles POST /register (RFC 7591). Public clients
// register with token_endpoint_auth_method "none"; anything else receives a
// generated client secret.
func (s *Server) RegisterClientHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	req.Body = http.MaxBytesReader(w, req.Body, maxDCRBodySize)

	if !strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		writeDCRError(w, http.StatusBadRequest, &registration.Error{
			Code:        registration.ErrorInvalidClientMetadata,
			Description: "Content-Type must be application/json",
		})
		return
	}

	var dcrReq registration.Request
	if err := json.NewDecoder(req.Body).Decode(&dcrReq); err != nil {
		writeDCRError(w, http.StatusBadRequest, &registration.Error{
			Code:        registration.ErrorInvalidClientMetadata,
			Description: "invalid JSON request body",
		})
		return
	}

	validated, dcrErr := registration.Validate(&dcrReq, s.config.ScopesSupported)
	if dcrErr != nil {
		writeDCRError(w, http.StatusBadRequest, dcrErr)
		return
	}

	clientID := uuid.NewString()

	var secret string
	var hashed []byte
	if !validated.IsPublic() {
		secret = rand.Text()
		var err error
		hashed, err = s.fosite.GetSecretsHasher(ctx).Hash(ctx, []byte(secret))
		if err != nil {
			slog.Error("failed to hash client secret", "error", err)
			writeDCRError(w, http.StatusInternalServerError, &registration.Error{
				Code:        "server_error",
				Description: "failed to create client",
			})
			return
		}
	}

	client := registration.NewClient(registration.ClientConfig{
		ID:           clientID,
		HashedSecret: hashed,
		Request:      validated,
		Audience:     []string{s.config.ResourceURL()},
	})
	if err := s.storage.RegisterClient(ctx, client); err != nil {
		slog.Error("failed to register client", "error", err)
		writeDCRError(w, http.StatusInternalServerError, &registration.Error{
			Code:        "server_error",
			Description: "failed to register client",
		})
		return
	}

	slog.Debug("registered client",
		"client_id", clientID,
		"client_name", validated.ClientName,
		"public", validated.IsPublic(),
	)

	response := registration.Response{
		ClientID:                clientID,
		ClientIDIssuedAt:        time.Now().Unix(),
		RedirectURIs:            validated.RedirectURIs,
		ClientName:              validated.ClientName,
		ClientURI:               validated.ClientURI,
		LogoURI:                 validated.LogoURI,
		TokenEndpointAuthMethod: validated.TokenEndpointAuthMethod,
		GrantTypes:              validated.GrantTypes,
		ResponseTypes:           validated.ResponseTypes,
		Scope:                   validated.Scope,
	}
	if secret != "" {
		never := int64(0)
		response.ClientSecret = secret
		response.ClientSecretExpiresAt = &never
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode registration response", "error", err)
	}
}

// writeDCRError writes an RFC 7591 Section 3.2.2 error response.
func writeDCRError(w http.ResponseWriter, statusCode int, dcrErr *registration.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(dcrErr); err != nil {
		slog.Debug("failed to encode registration error", "error", err)
	}
}
