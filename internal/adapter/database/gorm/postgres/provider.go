// Package postgres provides a GORM DBProvider implementation for PostgreSQL.
package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/insdata/temposync/internal/adapter/database"
	gormadapter "github.com/insdata/temposync/internal/adapter/database/gorm"
	"github.com/insdata/temposync/internal/config"
)

// init registers the PostgreSQL dialector factory so importing this package
// makes the "postgres" database type available.
func init() {
	gormadapter.RegisterDialector("postgres", func(cfg database.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(connectionString(cfg)), nil
	})
}

func connectionString(c database.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.Sslmode)
}

// PostgresDBProvider implements database.DBProvider for PostgreSQL.
type PostgresDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates a database.DBProvider for PostgreSQL, intended for use
// with fx.Provide.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &PostgresDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "postgres")}
}
