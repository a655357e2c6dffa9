// Package database defines the abstractions the repositories depend on for
// talking to a relational store, decoupled from the concrete GORM adapter.
package database

import (
	"context"
	"database/sql"

	"github.com/insdata/temposync/internal/tx"
)

// DBExecutor defines common read and write operations for a database. It is
// embedded in both DBConnection and the transaction adapter.
type DBExecutor interface {
	tx.TxExecutor

	// ExecuteQuery executes a SELECT into target; query is an AND-combined
	// column/value map.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// ExecuteQueryAdvanced executes a SELECT with optional ordering, limit and
	// offset.
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit, offset int) error

	// Count counts the records matching the query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)

	// CountTable counts records in an explicitly named table.
	CountTable(ctx context.Context, tableName string, query map[string]interface{}) (int64, error)

	// ExecuteRaw runs a raw SQL statement, used for partition DDL.
	ExecuteRaw(ctx context.Context, sql string, values ...interface{}) (rowsAffected int64, err error)
}

// DBConnection is an abstraction of one named database connection.
type DBConnection interface {
	DBExecutor

	// Name returns the configured connection name.
	Name() string
	// Type returns the database type ("postgres", "mysql", "sqlite").
	Type() string
	// Close releases the underlying connection pool.
	Close() error
	// RefreshConnection re-validates the connection.
	RefreshConnection(ctx context.Context) error
	// Config returns the configuration the connection was opened with.
	Config() DatabaseConfig
	// GetSQLDB exposes the underlying *sql.DB, needed by the migration runner.
	GetSQLDB() (*sql.DB, error)
}

// DBProvider supplies database connections of one database type based on the
// named entries in the configuration.
type DBProvider interface {
	// GetConnection retrieves (or lazily opens) the named connection.
	GetConnection(name string) (DBConnection, error)
	// ForceReconnect closes and re-establishes the named connection.
	ForceReconnect(name string) (DBConnection, error)
	// CloseAll closes every connection managed by this provider.
	CloseAll() error
	// Type returns the database type this provider handles.
	Type() string
}

// DBConnectionResolver resolves a named connection across all registered
// providers.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProviderGroup is the fx group collecting all DBProvider implementations.
const DBProviderGroup = "db_providers"
