package postgres

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql" // mysql
	_ "github.com/jackc/pgx/v5/stdlib" // pgx via database/sql
	_ "github.com/lib/pq"              // postgres
)

// Supported database/sql driver names.
const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// dialect maps a driver name to its SQL and migration dialect.
func dialect(driver string) (string, error) {
	switch driver {
	case DriverPgx, DriverPostgres:
		return "postgres", nil
	case DriverMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
