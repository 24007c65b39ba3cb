package main

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"queryorch/internal/catalog"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending catalog-schema migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if catalogDSN == "" {
		return fmt.Errorf("--catalog-dsn is required")
	}
	db, err := sql.Open("pgx", catalogDSN)
	if err != nil {
		return fmt.Errorf("open catalog database: %w", err)
	}
	defer db.Close()

	if err := catalog.Migrate(db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "catalog schema up to date")
	return nil
}
