package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/insdata/temposync/internal/adapter/database"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/support/logger"
)

// claimAttempts bounds the claim retry loop; losing a version race means
// another worker took the row, so the next oldest task is tried instead.
const claimAttempts = 3

// SQLTaskQueue implements repository.TaskQueue. Claiming relies on the
// optimistic version column: the conditional single-statement update flips
// exactly one PENDING row per winner.
type SQLTaskQueue struct {
	baseRepository
}

// NewSQLTaskQueue builds the task queue over the named store connection.
func NewSQLTaskQueue(dbResolver database.DBConnectionResolver, dbName string) repository.TaskQueue {
	return &SQLTaskQueue{baseRepository{dbResolver: dbResolver, dbName: dbName}}
}

func (q *SQLTaskQueue) Enqueue(ctx context.Context, task *model.SyncTask) error {
	const op = "SQLTaskQueue.Enqueue"
	executor, err := q.getTxExecutor(ctx)
	if err != nil {
		return err
	}

	entity := fromDomainTask(task)
	if _, err := executor.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
		return exception.New(op, fmt.Sprintf("failed to enqueue task for dataset %s", task.DatasetCode), err, true)
	}
	logger.Infof("Enqueued sync task %s (dataset=%s years=%d-%d mode=%s)",
		task.ID, task.DatasetCode, task.YearFrom, task.YearTo, task.Mode)
	return nil
}

// ClaimNext atomically claims the oldest highest-priority PENDING task. Two
// concurrent claimers can read the same candidate row, but the version-guarded
// update lets exactly one of them win; the loser retries with the next
// candidate.
func (q *SQLTaskQueue) ClaimNext(ctx context.Context) (*model.SyncTask, error) {
	const op = "SQLTaskQueue.ClaimNext"
	conn, err := q.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < claimAttempts; attempt++ {
		var candidates []SyncTaskEntity
		err := conn.ExecuteQueryAdvanced(ctx, &candidates,
			map[string]interface{}{"status": string(model.TaskPending)},
			"priority DESC, created_at ASC", 1, 0)
		if err != nil {
			return nil, exception.New(op, "failed to query pending tasks", err, true)
		}
		if len(candidates) == 0 {
			return nil, repository.ErrNoPendingTask
		}

		task := toDomainTask(&candidates[0])
		originalVersion := task.Version
		if err := task.TransitionTo(model.TaskPlanning); err != nil {
			return nil, exception.New(op, "claim transition rejected", err, false)
		}
		task.Version++

		entity := fromDomainTask(task)
		rowsAffected, err := conn.ExecuteUpdate(ctx, taskUpdateValues(entity), "UPDATE", entity.TableName(), map[string]interface{}{
			"id":      task.ID,
			"version": originalVersion,
			"status":  string(model.TaskPending),
		})
		if err != nil {
			return nil, exception.New(op, fmt.Sprintf("failed to claim task %s", task.ID), err, true)
		}
		if rowsAffected == 0 {
			// Another claimer won this row; try the next candidate.
			logger.Debugf("Lost claim race for task %s (attempt %d)", task.ID, attempt+1)
			continue
		}
		logger.Infof("Claimed sync task %s (dataset=%s)", task.ID, task.DatasetCode)
		return task, nil
	}
	return nil, repository.ErrNoPendingTask
}

// Update persists task state under optimistic locking.
func (q *SQLTaskQueue) Update(ctx context.Context, task *model.SyncTask) error {
	const op = "SQLTaskQueue.Update"
	executor, err := q.getTxExecutor(ctx)
	if err != nil {
		return err
	}

	originalVersion := task.Version
	task.Version++
	entity := fromDomainTask(task)

	rowsAffected, err := executor.ExecuteUpdate(ctx, taskUpdateValues(entity), "UPDATE", entity.TableName(), map[string]interface{}{
		"id":      task.ID,
		"version": originalVersion,
	})
	if err != nil {
		task.Version = originalVersion
		return exception.New(op, fmt.Sprintf("failed to update task %s", task.ID), err, true)
	}
	if rowsAffected == 0 {
		task.Version = originalVersion
		return exception.NewOptimisticLock(op,
			fmt.Sprintf("task %s with version %d not found for update", task.ID, originalVersion), nil)
	}
	return nil
}

// UpdateProgress persists the running totals; it is the same optimistic
// update as any other state change.
func (q *SQLTaskQueue) UpdateProgress(ctx context.Context, task *model.SyncTask) error {
	task.UpdatedAt = time.Now()
	return q.Update(ctx, task)
}

func (q *SQLTaskQueue) Complete(ctx context.Context, task *model.SyncTask) error {
	if err := task.TransitionTo(model.TaskCompleted); err != nil {
		return err
	}
	logger.Infof("Task %s completed: chunks completed=%d skipped=%d failed=%d rows inserted=%d updated=%d",
		task.ID, task.ChunksCompleted, task.ChunksSkipped, task.ChunksFailed, task.RowsInserted, task.RowsUpdated)
	return q.Update(ctx, task)
}

func (q *SQLTaskQueue) Fail(ctx context.Context, task *model.SyncTask, message string) error {
	if err := task.TransitionTo(model.TaskFailed); err != nil {
		return err
	}
	if message != "" {
		task.AddFailure("", message, 0)
	}
	logger.Errorf("Task %s failed: %s", task.ID, message)
	return q.Update(ctx, task)
}

// Retry re-queues a FAILED task. Checkpoints are untouched, so chunks that
// already succeeded are skipped on the next run.
func (q *SQLTaskQueue) Retry(ctx context.Context, id string) (*model.SyncTask, error) {
	task, err := q.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := task.TransitionTo(model.TaskPending); err != nil {
		return nil, err
	}
	if err := q.Update(ctx, task); err != nil {
		return nil, err
	}
	logger.Infof("Re-queued task %s (dataset=%s)", task.ID, task.DatasetCode)
	return task, nil
}

func (q *SQLTaskQueue) Cancel(ctx context.Context, id string) (*model.SyncTask, error) {
	task, err := q.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := task.TransitionTo(model.TaskCancelled); err != nil {
		return nil, err
	}
	if err := q.Update(ctx, task); err != nil {
		return nil, err
	}
	logger.Infof("Cancelled task %s (dataset=%s)", task.ID, task.DatasetCode)
	return task, nil
}

func (q *SQLTaskQueue) FindByID(ctx context.Context, id string) (*model.SyncTask, error) {
	const op = "SQLTaskQueue.FindByID"
	conn, err := q.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []SyncTaskEntity
	if err := conn.ExecuteQuery(ctx, &entities, map[string]interface{}{"id": id}); err != nil {
		return nil, exception.New(op, fmt.Sprintf("failed to load task %s", id), err, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrTaskNotFound
	}
	return toDomainTask(&entities[0]), nil
}

func (q *SQLTaskQueue) List(ctx context.Context, status model.TaskStatus, limit int) ([]*model.SyncTask, error) {
	const op = "SQLTaskQueue.List"
	conn, err := q.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var query map[string]interface{}
	if status != "" {
		query = map[string]interface{}{"status": string(status)}
	}
	var entities []SyncTaskEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, query, "created_at DESC", limit, 0); err != nil {
		return nil, exception.New(op, "failed to list tasks", err, true)
	}

	tasks := make([]*model.SyncTask, len(entities))
	for i := range entities {
		tasks[i] = toDomainTask(&entities[i])
	}
	return tasks, nil
}
