// Package sqlbackend is a concrete, database/sql-based implementation of
// the planner's consumed interfaces (cascade.QueryCompiler,
// cascade.ConnectionRegistry, cascade.TransactionManager), adapted from the
// teacher's postgres.go DBConfig/ConnectPostgres and resolver.go
// DBResolver — here repurposed from primary/replica read routing to named
// `using`-alias routing, since that is exactly what the planner's `using`
// string needs.
//
// This package exists to give the pack's SQL drivers (pgx, go-sql-driver/
// mysql, mattn/go-sqlite3) a real home; the planner itself never imports
// it, consuming only the interfaces in the root package.
package sqlbackend

import (
	"database/sql"
	"fmt"
)

// Dialect names the SQL backends this package knows how to talk to.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectMySQL
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Config describes one named connection, mirroring the teacher's DBConfig
// shape (host/user/password/etc. collapsed into a DSN here since the three
// dialects this package supports don't share a field layout).
type Config struct {
	Using   string
	Dialect Dialect
	DSN     string

	MaxOpenConns int
	MaxIdleConns int
}

// Open connects using Config.Dialect's driver and applies the pool limits,
// mirroring the teacher's ConfigureConnectionPool.
func Open(cfg Config) (*sql.DB, error) {
	driverName, err := driverNameFor(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlbackend: open %s: %w", cfg.Dialect, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return db, nil
}

func driverNameFor(d Dialect) (string, error) {
	switch d {
	case DialectPostgres:
		return "pgx", nil
	case DialectMySQL:
		return "mysql", nil
	case DialectSQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("sqlbackend: unknown dialect %v", d)
	}
}
