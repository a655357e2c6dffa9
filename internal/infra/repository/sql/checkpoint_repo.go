package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/insdata/temposync/internal/adapter/database"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/support/exception"
)

// checkpointUpdateColumns are the mutable columns replaced on re-save.
var checkpointUpdateColumns = []string{
	"status", "label", "county_code", "cell_count", "row_count",
	"retry_count", "last_error", "updated_at",
}

// SQLCheckpointRepository implements repository.CheckpointRepository.
type SQLCheckpointRepository struct {
	baseRepository
}

// NewSQLCheckpointRepository builds the checkpoint store over the named
// connection.
func NewSQLCheckpointRepository(dbResolver database.DBConnectionResolver, dbName string) repository.CheckpointRepository {
	return &SQLCheckpointRepository{baseRepository{dbResolver: dbResolver, dbName: dbName}}
}

func (r *SQLCheckpointRepository) Find(ctx context.Context, datasetCode, chunkHash string) (*model.Checkpoint, error) {
	const op = "SQLCheckpointRepository.Find"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []CheckpointEntity
	err = conn.ExecuteQuery(ctx, &entities, map[string]interface{}{
		"dataset_code": datasetCode,
		"chunk_hash":   chunkHash,
	})
	if err != nil {
		return nil, exception.New(op, fmt.Sprintf("failed to load checkpoint %s/%.12s", datasetCode, chunkHash), err, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrCheckpointNotFound
	}
	return toDomainCheckpoint(&entities[0]), nil
}

// Save upserts the checkpoint keyed by (dataset, chunk hash). Runs inside the
// chunk transaction when the context carries one, so a rolled-back chunk never
// advances its checkpoint.
func (r *SQLCheckpointRepository) Save(ctx context.Context, cp *model.Checkpoint) error {
	const op = "SQLCheckpointRepository.Save"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return err
	}

	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	entity := fromDomainCheckpoint(cp)
	_, err = executor.ExecuteUpsert(ctx, entity, entity.TableName(),
		[]string{"dataset_code", "chunk_hash"}, checkpointUpdateColumns)
	if err != nil {
		return exception.New(op, fmt.Sprintf("failed to save checkpoint %s/%.12s", cp.DatasetCode, cp.ChunkHash), err, true)
	}
	return nil
}

func (r *SQLCheckpointRepository) ListByDataset(ctx context.Context, datasetCode string, status model.CheckpointStatus) ([]*model.Checkpoint, error) {
	const op = "SQLCheckpointRepository.ListByDataset"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	query := map[string]interface{}{"dataset_code": datasetCode}
	if status != "" {
		query["status"] = string(status)
	}
	var entities []CheckpointEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, query, "updated_at DESC", 0, 0); err != nil {
		return nil, exception.New(op, fmt.Sprintf("failed to list checkpoints for %s", datasetCode), err, true)
	}

	checkpoints := make([]*model.Checkpoint, len(entities))
	for i := range entities {
		checkpoints[i] = toDomainCheckpoint(&entities[i])
	}
	return checkpoints, nil
}

// DeleteByDataset clears checkpoint history, forcing the next run to re-fetch
// every chunk. A county filter narrows the clear to chunks planned under that
// county.
func (r *SQLCheckpointRepository) DeleteByDataset(ctx context.Context, datasetCode, county string) (int64, error) {
	const op = "SQLCheckpointRepository.DeleteByDataset"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return 0, err
	}

	query := map[string]interface{}{"dataset_code": datasetCode}
	if county != "" {
		query["county_code"] = county
	}
	deleted, err := executor.ExecuteUpdate(ctx, &CheckpointEntity{}, "DELETE", CheckpointEntity{}.TableName(), query)
	if err != nil {
		return 0, exception.New(op, fmt.Sprintf("failed to clear checkpoints for %s", datasetCode), err, true)
	}
	return deleted, nil
}
