// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/terraatlas/terra/internal/store"
)

// migratorFactory is swapped in tests.
var migratorFactory = defaultMigrator

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back, or inspect the PostgreSQL schema migrations embedded in the binary.`,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (default: DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all data)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			yes, err := cmd.Flags().GetBool("yes")
			if err != nil {
				return err
			}
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops every account; re-run with --yes")
			}
			return withMigrator(cmd, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().Bool("yes", false, "confirm dropping all data")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error {
				status, err := m.Status()
				if err != nil {
					return err
				}
				printStatus(cmd, status)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if dirty {
					cmd.Printf("%d (dirty)\n", v)
					return nil
				}
				cmd.Printf("%d\n", v)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long:  `Record VERSION as the applied migration. Use this to recover from a dirty schema after fixing it by hand.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", v)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(Migrator) error) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database url is required (set --database-url or DATABASE_URL)")
	}

	m, err := migratorFactory(cfg.DatabaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning: failed to close migrator:", closeErr)
		}
	}()
	return fn(m)
}

func printStatus(cmd *cobra.Command, status store.MigrationStatus) {
	line := "Current version: " + strconv.FormatUint(uint64(status.Version), 10)
	if status.Dirty {
		line += " (dirty)"
	}
	cmd.Println(line)
	for _, v := range status.Applied {
		cmd.Println("  [x] " + migrationLabel(v))
	}
	for _, v := range status.Pending {
		cmd.Println("  [ ] " + migrationLabel(v))
	}
	if len(status.Pending) == 0 {
		cmd.Println("Schema is up to date")
	}
}

func migrationLabel(v uint) string {
	name, err := store.MigrationName(v)
	if err != nil || name == "" {
		return strconv.FormatUint(uint64(v), 10)
	}
	return name
}

// parseForceVersion parses a non-negative schema version.
func parseForceVersion(s string) (int, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative")
	}
	return v, nil
}
