// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProps_RedactsAccessTokenInLogs(t *testing.T) {
	t.Parallel()

	props := Props{Login: "u1", Name: "U", Email: "u@example.com", AccessToken: "secret-token"}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("session", "props", props)

	assert.NotContains(t, buf.String(), "secret-token")
	assert.Contains(t, buf.String(), "REDACTED")
	assert.NotContains(t, props.String(), "secret-token")
}

func TestProps_JSONKeepsAccessToken(t *testing.T) {
	t.Parallel()

	props := Props{Login: "u1", Name: "U", Email: "u@example.com", AccessToken: "secret-token"}

	data, err := json.Marshal(props)
	require.NoError(t, err)
	assert.JSONEq(t, `{"login":"u1","name":"U","email":"u@example.com","accessToken":"secret-token"}`, string(data))

	var decoded Props
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, props, decoded)
}

func TestProps_IsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, Props{}.IsZero())
	assert.False(t, Props{Login: "x"}.IsZero())
}
