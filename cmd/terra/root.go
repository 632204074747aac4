// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/terraatlas/terra/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Terra CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terra",
		Short: "Terra - country favorites API",
		Long: `Terra serves account registration, cookie sessions, and a per-account
list of favorite countries enriched from a public country-data service.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/terra/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewAccountCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("terra %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// loadConfig reads .env, the config file, and flags, in rising precedence.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	return config.Load(configFile, flags)
}
