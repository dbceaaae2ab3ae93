// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryHub Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/queryhub/queryhub/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := config.Show(*cfg)
			if err != nil {
				return err //nolint:wrapcheck // coded by config
			}
			cmd.Print(string(out))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := config.GenerateSchema()
			if err != nil {
				return err //nolint:wrapcheck // coded by config
			}
			cmd.Println(string(out))
			return nil
		},
	})
	return cmd
}
