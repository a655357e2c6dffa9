// Package migration applies the embedded schema migrations against the
// configured store.
package migration

import (
	"context"
	"database/sql"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	adapter "github.com/insdata/temposync/internal/adapter/database"
	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/support/logger"
)

// migrationsTable keeps the migrate bookkeeping out of the application tables.
const migrationsTable = "temposync_schema_migrations"

// Migrator applies versioned SQL migrations over a resolved store connection.
type Migrator struct {
	conn   adapter.DBConnection
	dbType string
}

// NewMigrator builds a Migrator for the given connection.
func NewMigrator(conn adapter.DBConnection) *Migrator {
	return &Migrator{conn: conn, dbType: conn.Type()}
}

// Up applies every pending migration from the given filesystem path.
func (m *Migrator) Up(ctx context.Context, migrationFS fs.FS, path string) error {
	logger.Infof("applying migrations from %s (driver %s)", path, m.dbType)

	instance, err := m.instance(migrationFS, path)
	if err != nil {
		return err
	}
	defer instance.Close()

	if err := instance.Up(); err != nil && err != migrate.ErrNoChange {
		return exception.New("migration", "migration up failed", err, false)
	}
	version, dirty, err := instance.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return exception.New("migration", "failed to read schema version", err, false)
	}
	logger.Infof("schema at version %d (dirty=%v)", version, dirty)
	return nil
}

func (m *Migrator) instance(migrationFS fs.FS, path string) (*migrate.Migrate, error) {
	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return nil, exception.New("migration", "failed to get underlying sql.DB", err, false)
	}

	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return nil, exception.New("migration", "failed to open migration source", err, false)
	}

	dbDriver, err := m.databaseDriver(sqlDB)
	if err != nil {
		return nil, err
	}

	instance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return nil, exception.New("migration", "failed to create migrate instance", err, false)
	}
	return instance, nil
}

func (m *Migrator) databaseDriver(sqlDB *sql.DB) (database.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: migrationsTable})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: migrationsTable})
	default:
		return nil, exception.Newf("migration", "unsupported database type %q", m.dbType)
	}
}
