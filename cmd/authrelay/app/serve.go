// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mcp-authrelay/pkg/config"
	"github.com/stacklok/mcp-authrelay/pkg/gateway"
	"github.com/stacklok/mcp-authrelay/pkg/logger"
)

// serveFlags maps serve flags to configuration keys. Secrets are only read
// from the environment or the config file.
var serveFlags = []struct {
	name, key, usage string
}{
	{"listen-address", "listen_address", "Address to listen on"},
	{"base-url", "base_url", "Public origin of the relay, e.g. https://mcp.example.com"},
	{"upstream-preset", "upstream.preset", "Upstream identity provider preset (access or github)"},
	{"upstream-issuer", "upstream.issuer", "Upstream OIDC issuer used for endpoint discovery"},
	{"upstream-client-id", "upstream.client_id", "Client ID registered with the upstream provider"},
	{"storage-type", "storage.type", "Token storage backend (memory or redis)"},
	{"redis-address", "storage.redis.address", "Redis address for redis storage"},
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization relay",
		Long: `Start the authorization relay and the MCP tool server.

Configuration is read from flags, AUTHRELAY_* environment variables and the
optional --config file, in that order of precedence. Secrets such as
AUTHRELAY_UPSTREAM_CLIENT_SECRET and AUTHRELAY_COOKIE_ENCRYPTION_KEY must come
from the environment or the config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	for _, f := range serveFlags {
		cmd.Flags().String(f.name, "", f.usage)
		if err := v.BindPFlag(f.key, cmd.Flags().Lookup(f.name)); err != nil {
			logger.Errorf("Error binding %s flag: %v", f.name, err)
		}
	}
	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	ctx := cmd.Context()

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger.Infow("starting authrelay",
		"base_url", cfg.BaseURL,
		"upstream", cfg.Upstream.Preset,
		"storage", cfg.Storage.Type,
	)

	srv, err := gateway.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start authrelay: %w", err)
	}
	return srv.Run(ctx)
}
