package database

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PrivilegedRoles bypass row level security and must not serve requests.
var PrivilegedRoles = []string{"postgres", "service_role", "supabase_admin"}

// DSNUser returns the role a Postgres DSN connects as. Both URL and
// keyword/value forms are accepted. Parsing does not connect.
func DSNUser(dsn string) (string, error) {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	return cfg.User, nil
}

// IsPrivilegedRole reports whether role is one of PrivilegedRoles.
func IsPrivilegedRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, r := range PrivilegedRoles {
		if role == r {
			return true
		}
	}
	return false
}
