// Package database provides a GORM-based database component with connection
// pooling, retrying connect and health checks.
//
// Production deployments use Postgres through the pgx-backed GORM driver;
// tests use in-memory SQLite. The component follows the lifecycle contract
// of package component:
//
//	db := database.NewComponent(database.Config{DSN: os.Getenv("DATABASE_URL")}, log)
//	registry.Register(db)
//
// DSNUser and IsPrivilegedRole let callers refuse connection strings that
// would bypass row level security.
package database
