package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gustavlms/gustav/app"
	"github.com/gustavlms/gustav/auth/session"
	"github.com/gustavlms/gustav/database"
)

func init() {
	sessionsCmd.AddCommand(sessionsSweepCmd)
	rootCmd.AddCommand(sessionsCmd)
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Maintain the session table",
}

var sessionsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return app.RunDatabaseTask(cmd.Context(), cfg, func(ctx context.Context, db *database.DB) error {
			opts := []session.DBOption{session.WithTable(cfg.Session.Table)}
			if cfg.Session.AllowServiceRole {
				opts = append(opts, session.WithAllowServiceRole())
			}
			store, err := session.NewDBStore(db.GormDB, opts...)
			if err != nil {
				return err
			}
			if db.Driver() == database.DriverSQLite {
				if err := store.EnsureSchema(ctx); err != nil {
					return err
				}
			}
			n, err := store.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired sessions from %s\n", n, store.Table())
			return nil
		})
	},
}
