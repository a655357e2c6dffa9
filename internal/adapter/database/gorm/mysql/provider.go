// Package mysql provides a GORM DBProvider implementation for MySQL.
package mysql

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/insdata/temposync/internal/adapter/database"
	gormadapter "github.com/insdata/temposync/internal/adapter/database/gorm"
	"github.com/insdata/temposync/internal/config"
)

// init registers the MySQL dialector factory so importing this package makes
// the "mysql" database type available.
func init() {
	gormadapter.RegisterDialector("mysql", func(cfg database.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(connectionString(cfg)), nil
	})
}

func connectionString(c database.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// MySQLDBProvider implements database.DBProvider for MySQL.
type MySQLDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates a database.DBProvider for MySQL, intended for use with
// fx.Provide.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &MySQLDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "mysql")}
}
