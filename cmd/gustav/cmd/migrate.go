package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gustavlms/gustav/app"
	"github.com/gustavlms/gustav/database"
	"github.com/gustavlms/gustav/database/migration"
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the session table schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd.Context(), func(db *database.DB) error {
			return migration.Up(db.GormDB, migration.Postgres)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd.Context(), func(db *database.DB) error {
			return migration.Down(db.GormDB, migration.Postgres)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigration(cmd.Context(), func(db *database.DB) error {
			v, dirty, err := migration.Version(db.GormDB, migration.Postgres)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
			return nil
		})
	},
}

func runMigration(ctx context.Context, fn func(db *database.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return app.RunDatabaseTask(ctx, cfg, func(_ context.Context, db *database.DB) error {
		if db.Driver() != database.DriverPostgres {
			return fmt.Errorf("migrations target postgres, got %s", db.Driver())
		}
		return fn(db)
	})
}
