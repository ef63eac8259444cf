// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsFetcher_Fetch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mapping    ClaimMapping
		status     int
		body       string
		want       *Claims
		wantStatus int
		wantErrIs  error
	}{
		{
			name:   "oidc claims",
			status: http.StatusOK,
			body:   `{"sub":"u-1","name":"Ada","email":"ada@example.com"}`,
			want:   &Claims{Subject: "u-1", Name: "Ada", Email: "ada@example.com"},
		},
		{
			name:    "github style mapping",
			mapping: ClaimMapping{Subject: "login"},
			status:  http.StatusOK,
			body:    `{"login":"octocat","id":1,"name":"Mona","email":null}`,
			want:    &Claims{Subject: "octocat", Name: "Mona"},
		},
		{
			name:    "nested claim path",
			mapping: ClaimMapping{Email: "profile.mail"},
			status:  http.StatusOK,
			body:    `{"sub":"u-2","profile":{"mail":"x@example.com"}}`,
			want:    &Claims{Subject: "u-2", Email: "x@example.com"},
		},
		{
			name:       "missing subject",
			status:     http.StatusOK,
			body:       `{"name":"nobody"}`,
			wantStatus: http.StatusBadGateway,
			wantErrIs:  ErrMissingSubject,
		},
		{
			name:       "upstream rejects token",
			status:     http.StatusUnauthorized,
			body:       `{"message":"Bad credentials"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "body is not json",
			status:     http.StatusOK,
			body:       `<html></html>`,
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer upstream-token", r.Header.Get("Authorization"))
				assert.NotEmpty(t, r.Header.Get("User-Agent"))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			t.Cleanup(srv.Close)

			f := NewClaimsFetcher(srv.URL, tt.mapping, srv.Client())
			claims, err := f.Fetch(context.Background(), "upstream-token")

			if tt.want != nil {
				require.NoError(t, err)
				assert.Equal(t, tt.want, claims)
				return
			}

			require.Error(t, err)
			assert.Nil(t, claims)
			var upErr *Error
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, OperationUserInfo, upErr.Op)
			assert.Equal(t, tt.wantStatus, upErr.StatusCode)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
			}
		})
	}
}
