// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/terraatlas/terra/internal/config"
	"github.com/terraatlas/terra/internal/xdg"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a config file against the schema",
		Long: `Check a config file against the schema. With no argument the --config
file is checked, falling back to XDG_CONFIG_HOME/terra/config.yaml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = xdg.ConfigFile()
			}
			data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
			}
			if err := config.ValidateFile(data); err != nil {
				return oops.With("path", path).Wrap(err)
			}
			cmd.Printf("%s is valid\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the config file JSON Schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			cmd.Println(string(schema))
			return nil
		},
	})

	return cmd
}
