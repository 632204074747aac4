// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/internal/auth/postgres"
)

// poolFactory is swapped in tests.
var poolFactory = defaultPool

// NewAccountCmd creates the account subcommand.
func NewAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Administer accounts",
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (default: DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete USERNAME",
		Short: "Delete an account and every session it holds",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountDelete,
	})
	return cmd
}

func runAccountDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database url is required (set --database-url or DATABASE_URL)")
	}

	ctx := cmd.Context()
	pool, err := poolFactory(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	svc, err := auth.NewService(
		postgres.NewAccountRepository(pool),
		postgres.NewSessionRepository(pool),
		auth.NewArgon2idHasher(),
	)
	if err != nil {
		return err
	}
	if err := svc.DeleteAccount(ctx, args[0]); err != nil {
		return err
	}
	cmd.Printf("Deleted account %q\n", args[0])
	return nil
}
