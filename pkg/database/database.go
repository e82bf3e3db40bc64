// Package database owns the warehouse connection pool and exposes the
// active SQL dialect so callers can branch on syntax differences.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/jmoiron/sqlx"
)

// Dialect identifies the warehouse SQL dialect.
type Dialect string

const (
	DialectPostgres Dialect = "postgresql"
	DialectMySQL    Dialect = "mysql"
)

// DB wraps the sqlx pool together with its dialect.
type DB struct {
	*sqlx.DB
	Dialect Dialect
}

// Config holds warehouse connection configuration.
type Config struct {
	URL     string
	Dialect Dialect
}

// Connect opens the warehouse pool and verifies connectivity. Pool sizing
// mirrors the deployment defaults: 5 persistent connections plus an
// overflow of 10, recycled hourly.
func Connect(ctx context.Context, cfg *Config) (*DB, error) {
	driver, dsn, err := driverAndDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}

	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(15)
	db.SetConnMaxLifetime(time.Hour)

	// Pre-ping: fail fast on unreachable warehouses.
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	return &DB{DB: db, Dialect: cfg.Dialect}, nil
}

// driverAndDSN maps the configured dialect to a database/sql driver and
// normalizes the DSN for it.
func driverAndDSN(cfg *Config) (string, string, error) {
	switch cfg.Dialect {
	case DialectPostgres:
		return "pgx", cfg.URL, nil
	case DialectMySQL:
		dsn := strings.TrimPrefix(cfg.URL, "mysql://")
		if !strings.Contains(dsn, "parseTime=") {
			if strings.Contains(dsn, "?") {
				dsn += "&parseTime=true"
			} else {
				dsn += "?parseTime=true"
			}
		}
		return "mysql", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported dialect %q", cfg.Dialect)
	}
}

// Rebind rewrites ? placeholders for the active dialect. Queries are
// written with ? throughout; Postgres needs $N.
func (db *DB) Rebind(query string) string {
	if db.Dialect == DialectPostgres {
		return sqlx.Rebind(sqlx.DOLLAR, query)
	}
	return query
}

// QuoteIdentifier quotes a table or column name for the active dialect.
func (db *DB) QuoteIdentifier(name string) string {
	if db.Dialect == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, "") + `"`
}

// SchemaFilter returns the information_schema predicate for the current
// database. Postgres warehouses live in the public schema; MySQL scopes by
// the connected database.
func (db *DB) SchemaFilter() string {
	if db.Dialect == DialectMySQL {
		return "table_schema = DATABASE()"
	}
	return "table_schema = 'public'"
}
