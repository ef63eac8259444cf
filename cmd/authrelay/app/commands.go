// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the authrelay command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mcp-authrelay/pkg/config"
	"github.com/stacklok/mcp-authrelay/pkg/logger"
)

// NewRootCmd creates the root command bound to the global viper instance.
func NewRootCmd() *cobra.Command {
	return newRootCmd(viper.GetViper())
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "authrelay",
		DisableAutoGenTag: true,
		Short:             "authrelay puts an OAuth authorization relay in front of an MCP tool server",
		Long: `authrelay is an OAuth 2.1 authorization server for MCP clients that delegates
user authentication to an upstream identity provider. After the user signs in
upstream, the relay issues its own tokens, and those tokens grant access to the
bundled MCP tools at /mcp.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML configuration file")
	if err := v.BindPFlag(config.ConfigFileKey, rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(v))

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}
