package repository

import (
	"context"
	"errors"

	"github.com/insdata/temposync/internal/domain/model"
)

var (
	// ErrTaskNotFound is returned when a task id does not exist.
	ErrTaskNotFound = errors.New("sync task not found")
	// ErrNoPendingTask is returned by ClaimNext when the queue is empty.
	ErrNoPendingTask = errors.New("no pending sync task")
	// ErrCheckpointNotFound is returned when no checkpoint exists for a chunk.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// TaskQueue persists sync tasks and arbitrates claiming between workers.
type TaskQueue interface {
	// Enqueue stores a new PENDING task.
	Enqueue(ctx context.Context, task *model.SyncTask) error
	// ClaimNext atomically claims the oldest highest-priority PENDING task,
	// moving it to PLANNING. Exactly one concurrent caller wins a given task;
	// losers either claim a different task or get ErrNoPendingTask.
	ClaimNext(ctx context.Context) (*model.SyncTask, error)
	// Update persists task state under optimistic locking; a stale version
	// yields exception.ErrOptimisticLock.
	Update(ctx context.Context, task *model.SyncTask) error
	// UpdateProgress persists the task's running totals.
	UpdateProgress(ctx context.Context, task *model.SyncTask) error
	// Complete transitions the task to COMPLETED and persists the summary.
	Complete(ctx context.Context, task *model.SyncTask) error
	// Fail transitions the task to FAILED, recording the error summary.
	Fail(ctx context.Context, task *model.SyncTask, message string) error
	// Retry re-queues a FAILED task as PENDING, clearing its error state but
	// preserving checkpoint history so finished chunks stay skipped.
	Retry(ctx context.Context, id string) (*model.SyncTask, error)
	// Cancel moves a non-terminal task to CANCELLED.
	Cancel(ctx context.Context, id string) (*model.SyncTask, error)
	// FindByID loads one task.
	FindByID(ctx context.Context, id string) (*model.SyncTask, error)
	// List returns tasks filtered by status (all statuses when empty), newest
	// first, bounded by limit.
	List(ctx context.Context, status model.TaskStatus, limit int) ([]*model.SyncTask, error)
}

// CheckpointRepository persists per-chunk outcomes keyed by identity hash.
type CheckpointRepository interface {
	// Find loads the checkpoint for a chunk, ErrCheckpointNotFound when none.
	Find(ctx context.Context, datasetCode, chunkHash string) (*model.Checkpoint, error)
	// Save inserts or replaces a checkpoint. Honors an ambient transaction.
	Save(ctx context.Context, cp *model.Checkpoint) error
	// ListByDataset returns all checkpoints of a dataset, optionally filtered
	// by status.
	ListByDataset(ctx context.Context, datasetCode string, status model.CheckpointStatus) ([]*model.Checkpoint, error)
	// DeleteByDataset clears checkpoints for a dataset; when county is
	// non-empty only checkpoints planned under that county are cleared.
	DeleteByDataset(ctx context.Context, datasetCode, county string) (int64, error)
}

// StatisticRepository persists resolved fact rows into the partitioned fact
// store.
type StatisticRepository interface {
	// UpsertBatch writes a batch by natural key, routing to the dataset's
	// partition. It reports how many rows were newly inserted vs updated.
	// Honors an ambient transaction.
	UpsertBatch(ctx context.Context, datasetCode string, rows []*model.Statistic) (inserted, updated int64, err error)
	// CountByDataset returns the number of fact rows in a dataset partition.
	CountByDataset(ctx context.Context, datasetCode string) (int64, error)
	// FindByDataset pages fact rows for export, ordered by natural key.
	FindByDataset(ctx context.Context, datasetCode string, offset, limit int) ([]*model.Statistic, error)
	// EnsurePartition creates the dataset partition when missing.
	EnsurePartition(ctx context.Context, datasetCode string) error
}

// DatasetCatalog provides dataset descriptors from the normalized metadata
// store. Descriptors are loaded fresh per planning call so item lists never
// go stale across task executions.
type DatasetCatalog interface {
	// GetDescriptor loads the full dataset descriptor with all dimensions and
	// items.
	GetDescriptor(ctx context.Context, datasetCode string) (*model.Dataset, error)
	// ListActiveCodes returns the codes of datasets enrolled in scheduled
	// refreshes.
	ListActiveCodes(ctx context.Context) ([]string, error)
}
