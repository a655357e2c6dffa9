// Package sql implements the persistence ports (task queue, checkpoint store,
// fact store, dataset catalog) on top of the database adapter.
package sql

import (
	"context"
	"fmt"

	"github.com/insdata/temposync/internal/adapter/database"
	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/tx"
)

// baseRepository resolves the owned-store connection lazily and joins an
// ambient transaction for write operations when one is carried by the
// context.
type baseRepository struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

// getDBConnection resolves the store connection for reads and for writes
// outside a managed transaction.
func (r *baseRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.New("repository", fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err, true)
	}
	return conn, nil
}

// getTxExecutor returns the ambient transaction when the context carries one,
// the direct connection otherwise.
func (r *baseRepository) getTxExecutor(ctx context.Context) (tx.TxExecutor, error) {
	if t, ok := tx.FromContext(ctx); ok {
		return t, nil
	}
	return r.getDBConnection(ctx)
}
