// Package migration applies the versioned schema migrations Gustav ships
// embedded in the binary, using golang-migrate.
//
//	if err := migration.Up(db.GormDB, migration.Postgres); err != nil { ... }
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

const migrationsPath = "sql"

// DriverFunc creates a migrate database driver from sql.DB.
type DriverFunc func(*sql.DB) (migratedb.Driver, error)

// Postgres is the driver for the production database.
func Postgres(db *sql.DB) (migratedb.Driver, error) {
	return migratepgx.WithInstance(db, &migratepgx.Config{})
}

// Files lists the embedded migration files.
func Files() ([]string, error) {
	return fs.Glob(migrationsFS, migrationsPath+"/*.sql")
}

// Up runs all pending migrations. No pending migration is not an error.
func Up(gormDB *gorm.DB, driverFunc DriverFunc) error {
	m, err := newMigrator(gormDB, driverFunc)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back all migrations.
func Down(gormDB *gorm.DB, driverFunc DriverFunc) error {
	m, err := newMigrator(gormDB, driverFunc)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Steps runs n migrations (positive = up, negative = down).
func Steps(gormDB *gorm.DB, n int, driverFunc DriverFunc) error {
	m, err := newMigrator(gormDB, driverFunc)
	if err != nil {
		return err
	}
	if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate steps: %w", err)
	}
	return nil
}

// Version returns the current migration version and dirty flag.
func Version(gormDB *gorm.DB, driverFunc DriverFunc) (version uint, dirty bool, err error) {
	m, err := newMigrator(gormDB, driverFunc)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// newMigrator creates a golang-migrate instance backed by the embedded FS.
// Callers must not call m.Close(): it would close the shared sql.DB.
func newMigrator(gormDB *gorm.DB, driverFunc DriverFunc) (*migrate.Migrate, error) {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	driver, err := driverFunc(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("create database driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "gustav", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}
