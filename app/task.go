package app

import (
	"context"
	"fmt"

	"github.com/gustavlms/gustav/bootstrap"
	"github.com/gustavlms/gustav/database"
)

// databaseTask is the config view of commands that only touch the database.
// The OIDC and web sections are not required there.
type databaseTask struct {
	*Config
}

func (t databaseTask) ApplyDefaults() {
	t.Config.ApplyDefaults()
	t.Database.ApplyDefaults()
}

func (t databaseTask) Validate() error {
	if err := t.ServiceConfig.Validate(); err != nil {
		return err
	}
	return t.validateDatabase()
}

// RunDatabaseTask connects to the configured database, runs fn and closes
// the connection. SIGINT/SIGTERM cancel fn's context.
func RunDatabaseTask(ctx context.Context, cfg *Config, fn func(ctx context.Context, db *database.DB) error, opts ...bootstrap.Option) error {
	a, err := bootstrap.NewApp(databaseTask{cfg}, opts...)
	if err != nil {
		return err
	}
	comp := database.NewComponent(cfg.Database, a.Logger)
	if err := a.RegisterComponent(comp); err != nil {
		return err
	}
	return a.RunTask(ctx, func(ctx context.Context) error {
		if comp.DB() == nil {
			return fmt.Errorf("database not connected")
		}
		return fn(ctx, comp.DB())
	})
}
