// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/queryhub/queryhub/internal/config"
	"github.com/queryhub/queryhub/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the QueryHub CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queryhub",
		Short: "QueryHub - posts, comments and accounts over HTTP",
		Long: `QueryHub serves a JSON API for accounts, sessions, posts and comments
backed by PostgreSQL, with optional Redis sessions and Google sign-in.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/queryhub/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadConfig reads the configuration for cmd, applying its flags. Without
// --config the file in the XDG config directory is used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.ConfigFile()
		if err != nil {
			return nil, err //nolint:wrapcheck // coded by xdg
		}
		path = found
	}
	//nolint:wrapcheck // config errors carry their own codes
	return config.Load(config.LoadOptions{Path: path, Flags: cmd.Flags()})
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("queryhub %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		},
	}
}
