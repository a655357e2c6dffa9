// Package operator implements the administrative operations exposed by the
// CLI: queueing, inspecting and retrying sync work.
package operator

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/engine"
	"github.com/insdata/temposync/internal/planner"
	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/support/logger"
)

// EnqueueRequest carries the parameters of an operator-initiated task.
type EnqueueRequest struct {
	DatasetCode string
	YearFrom    int
	YearTo      int
	Mode        model.ClassificationMode
	CountyCode  string
	Level       model.TerritoryLevel
	Force       bool
	Priority    int
}

// PlanPreview is the dry-run output of the planner for a request.
type PlanPreview struct {
	DatasetCode string
	Chunks      []*model.SyncChunk
	TotalCells  int64
}

// Service exposes the operator-facing operations.
type Service struct {
	queue       repository.TaskQueue
	checkpoints repository.CheckpointRepository
	catalog     repository.DatasetCatalog
	planner     engine.ChunkPlanner
}

// NewService wires the operator service.
func NewService(
	queue repository.TaskQueue,
	checkpoints repository.CheckpointRepository,
	catalog repository.DatasetCatalog,
	chunkPlanner engine.ChunkPlanner,
) *Service {
	return &Service{
		queue:       queue,
		checkpoints: checkpoints,
		catalog:     catalog,
		planner:     chunkPlanner,
	}
}

// Enqueue validates the request against the catalog and queues a new task.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*model.SyncTask, error) {
	code := strings.TrimSpace(strings.ToUpper(req.DatasetCode))
	if code == "" {
		return nil, exception.Newf("operator", "dataset code is required")
	}
	if req.YearFrom > req.YearTo {
		return nil, exception.Newf("operator", "invalid year range %d-%d", req.YearFrom, req.YearTo)
	}
	if _, err := s.catalog.GetDescriptor(ctx, code); err != nil {
		return nil, err
	}

	task := model.NewSyncTask(code, req.YearFrom, req.YearTo, req.Mode)
	task.CountyCode = strings.ToUpper(strings.TrimSpace(req.CountyCode))
	task.Level = req.Level
	task.Force = req.Force
	task.Priority = req.Priority

	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, err
	}
	logger.Infof("enqueued task %s dataset=%s years=%d-%d", task.ID, code, req.YearFrom, req.YearTo)
	return task, nil
}

// Tasks lists tasks, optionally filtered by status.
func (s *Service) Tasks(ctx context.Context, status model.TaskStatus, limit int) ([]*model.SyncTask, error) {
	return s.queue.List(ctx, status, limit)
}

// Task loads a single task.
func (s *Service) Task(ctx context.Context, id string) (*model.SyncTask, error) {
	return s.queue.FindByID(ctx, id)
}

// Retry re-queues one FAILED task.
func (s *Service) Retry(ctx context.Context, id string) (*model.SyncTask, error) {
	return s.queue.Retry(ctx, id)
}

// RetryAllFailed re-queues every FAILED task, reporting how many were
// re-queued; individual failures are aggregated, not fatal.
func (s *Service) RetryAllFailed(ctx context.Context) (int, error) {
	failed, err := s.queue.List(ctx, model.TaskFailed, 0)
	if err != nil {
		return 0, err
	}

	var errs *multierror.Error
	retried := 0
	for _, t := range failed {
		if _, err := s.queue.Retry(ctx, t.ID); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("task %s: %w", t.ID, err))
			continue
		}
		retried++
	}
	return retried, errs.ErrorOrNil()
}

// Cancel moves a non-terminal task to CANCELLED. A running task stops at the
// next chunk boundary.
func (s *Service) Cancel(ctx context.Context, id string) (*model.SyncTask, error) {
	return s.queue.Cancel(ctx, id)
}

// Checkpoints lists a dataset's checkpoints, optionally filtered by status.
func (s *Service) Checkpoints(ctx context.Context, datasetCode string, status model.CheckpointStatus) ([]*model.Checkpoint, error) {
	return s.checkpoints.ListByDataset(ctx, strings.ToUpper(strings.TrimSpace(datasetCode)), status)
}

// ClearCheckpoints deletes a dataset's checkpoints so the next run refetches
// everything; a non-empty county clears only that county's chunks.
func (s *Service) ClearCheckpoints(ctx context.Context, datasetCode, county string) (int64, error) {
	return s.checkpoints.DeleteByDataset(ctx,
		strings.ToUpper(strings.TrimSpace(datasetCode)),
		strings.ToUpper(strings.TrimSpace(county)))
}

// Plan runs the planner without enqueuing anything, for inspection of how a
// request would be decomposed.
func (s *Service) Plan(ctx context.Context, req EnqueueRequest) (*PlanPreview, error) {
	code := strings.TrimSpace(strings.ToUpper(req.DatasetCode))
	ds, err := s.catalog.GetDescriptor(ctx, code)
	if err != nil {
		return nil, err
	}

	chunks, err := s.planner.Plan(ds, planner.Options{
		YearFrom:   req.YearFrom,
		YearTo:     req.YearTo,
		Mode:       req.Mode,
		CountyCode: strings.ToUpper(strings.TrimSpace(req.CountyCode)),
		Level:      req.Level,
	})
	if err != nil {
		return nil, err
	}

	preview := &PlanPreview{DatasetCode: code, Chunks: chunks}
	for _, c := range chunks {
		preview.TotalCells += c.CellCount
	}
	return preview, nil
}
