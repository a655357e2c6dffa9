// Package tx provides an abstraction for transaction management so that the
// engine can keep chunk persistence atomic across different database
// backends.
package tx

import (
	"context"
	"database/sql"
)

// TxExecutor defines the write operations executable both inside and outside
// a transaction. It is embedded in both DBConnection and Tx, allowing the
// repositories to persist data the same way regardless of an ambient
// transaction.
type TxExecutor interface {
	// ExecuteUpdate performs a write operation (CREATE, UPDATE, DELETE) on the
	// given model. query narrows UPDATE and DELETE, combined with AND.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert performs an INSERT ... ON CONFLICT operation. When
	// updateColumns is empty the conflict resolves to DO NOTHING.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// ExecuteQueryTable executes a SELECT against an explicitly named table,
	// used for partition-routed reads. Inside a transaction the read locks
	// the matched rows where the backend supports it, so read-then-write
	// sequences (version reads before an upsert) are race-free.
	ExecuteQueryTable(ctx context.Context, tableName string, target interface{}, query map[string]interface{}, orderBy string, limit, offset int) error
}

// Tx represents an ongoing database transaction.
type Tx interface {
	TxExecutor

	// Savepoint creates a named savepoint within the transaction.
	Savepoint(name string) error
	// RollbackToSavepoint rolls back to a previously created savepoint.
	RollbackToSavepoint(name string) error
}

// TransactionManager manages the transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}

// txContextKey carries the ambient transaction through a context.
type txContextKey struct{}

// WithTx returns a context carrying the transaction. Repository write
// operations executed under this context join the transaction.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, t)
}

// FromContext extracts the ambient transaction, when present.
func FromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txContextKey{}).(Tx)
	return t, ok
}
