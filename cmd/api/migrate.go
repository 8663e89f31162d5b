package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"barangay/api/internal/store"
)

var migrateStatusOnly bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		if !migrateStatusOnly {
			if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
		}
		migrations, err := store.MigrationStatus(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range migrations {
			state := "pending"
			if m.Applied {
				state = "applied"
			}
			fmt.Fprintf(out, "%-40s %s\n", m.Version, state)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateStatusOnly, "status", false, "Only report which migrations are applied")
}
