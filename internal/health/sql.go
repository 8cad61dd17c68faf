package health

import (
	"context"
	"database/sql"
)

// SQLChecker implements health checking for the SQLite preference store.
type SQLChecker struct {
	db *sql.DB
}

// NewSQLChecker creates a new database health checker.
func NewSQLChecker(db *sql.DB) *SQLChecker {
	return &SQLChecker{db: db}
}

// HealthCheck pings the database.
func (d *SQLChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
