// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testConfigYAML = `
base_url: https://mcp.example.com
cookie_encryption_key: 0123456789abcdef0123456789abcdef
allowed_emails:
  - owner@example.com
upstream:
  preset: github
  client_id: gh-client
  client_secret: gh-secret
tools:
  share_upload_secret: share-secret
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(viper.New())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigShow_Redacts(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "authrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o600))

	out, err := execute(t, "config", "show", "--config", path)
	require.NoError(t, err)

	assert.NotContains(t, out, "gh-secret")
	assert.NotContains(t, out, "share-secret")
	assert.NotContains(t, out, "0123456789abcdef")

	var shown map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "https://mcp.example.com", shown["base_url"])
	assert.Equal(t, "REDACTED", shown["cookie_encryption_key"])

	upstream, ok := shown["upstream"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "REDACTED", upstream["client_secret"])
	assert.Equal(t, "https://github.com/login/oauth/access_token", upstream["token_url"])
	assert.Equal(t, "login", upstream["subject_claim"])
}

func TestConfigShow_InvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "authrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: not-a-url\n"), 0o600))

	_, err := execute(t, "config", "show", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestVersion_JSON(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")
}
