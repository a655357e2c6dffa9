// Package sqlite provides a GORM DBProvider implementation for SQLite.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/insdata/temposync/internal/adapter/database"
	gormadapter "github.com/insdata/temposync/internal/adapter/database/gorm"
	"github.com/insdata/temposync/internal/config"
)

// init registers the SQLite dialector factory so importing this package makes
// the "sqlite" database type available.
func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg database.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		// The GORM SQLite dialector expects the file path directly.
		return sqlite.Open(cfg.Database), nil
	})
}

// SQLiteDBProvider implements database.DBProvider for SQLite.
type SQLiteDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates a database.DBProvider for SQLite, intended for use with
// fx.Provide.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &SQLiteDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "sqlite")}
}
