// Package sql_test provides unit tests for the SQL repository
// implementations over a mocked database connection.
package sql_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	testify_mock "github.com/stretchr/testify/mock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbadapter "github.com/insdata/temposync/internal/adapter/database"
	gormadapter "github.com/insdata/temposync/internal/adapter/database/gorm"
)

// singleConnResolver hands out one fixed connection regardless of name so
// repositories under test always hit the mocked database.
type singleConnResolver struct {
	conn dbadapter.DBConnection
}

func (r *singleConnResolver) ResolveDBConnection(_ context.Context, _ string) (dbadapter.DBConnection, error) {
	return r.conn, nil
}

// mockTx is a testify mock standing in for an ambient transaction carried by
// the context. Only the executor methods are exercised by the repositories.
type mockTx struct {
	testify_mock.Mock
}

func (m *mockTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	args := m.Called(ctx, model, operation, tableName, query)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	args := m.Called(ctx, model, tableName, conflictColumns, updateColumns)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTx) ExecuteQueryTable(ctx context.Context, tableName string, target interface{}, query map[string]interface{}, orderBy string, limit, offset int) error {
	args := m.Called(ctx, tableName, target, query, orderBy, limit, offset)
	return args.Error(0)
}

func (m *mockTx) Savepoint(name string) error {
	return m.Called(name).Error(0)
}

func (m *mockTx) RollbackToSavepoint(name string) error {
	return m.Called(name).Error(0)
}

// setupGormMock wires a sqlmock-backed GORM handle into a DBConnection and a
// single-connection resolver for repository tests.
func setupGormMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *singleConnResolver) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	assert.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	assert.NoError(t, err)

	cfg := dbadapter.DatabaseConfig{Type: "mysql"}
	conn := gormadapter.NewGormDBAdapter(gormDB, cfg, "mock_db")

	t.Cleanup(func() {
		mock.ExpectClose()
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})

	return gormDB, mock, &singleConnResolver{conn: conn}
}
