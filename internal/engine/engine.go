// Package engine drives the execution of one sync task end to end: planning,
// checkpoint-aware chunk fetching, transactional persistence and task
// lifecycle bookkeeping.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/planner"
	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/support/logger"
	"github.com/insdata/temposync/internal/tx"
)

// checkpointErrorLimit bounds the error message persisted on a checkpoint.
const checkpointErrorLimit = 500

// Engine executes sync tasks. It is stateless between tasks and safe for
// concurrent use by multiple workers, each on its own claimed task.
type Engine struct {
	cfg         config.SyncConfig
	queue       repository.TaskQueue
	checkpoints repository.CheckpointRepository
	statistics  repository.StatisticRepository
	catalog     repository.DatasetCatalog
	planner     ChunkPlanner
	client      TempoClient
	resolver    RowResolver
	txManager   tx.TransactionManager
	metrics     Metrics
}

// NewEngine wires an Engine. A nil metrics falls back to NopMetrics.
func NewEngine(
	cfg config.SyncConfig,
	queue repository.TaskQueue,
	checkpoints repository.CheckpointRepository,
	statistics repository.StatisticRepository,
	catalog repository.DatasetCatalog,
	chunkPlanner ChunkPlanner,
	client TempoClient,
	resolver RowResolver,
	txManager tx.TransactionManager,
	metrics Metrics,
) *Engine {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Engine{
		cfg:         cfg,
		queue:       queue,
		checkpoints: checkpoints,
		statistics:  statistics,
		catalog:     catalog,
		planner:     chunkPlanner,
		client:      client,
		resolver:    resolver,
		txManager:   txManager,
		metrics:     metrics,
	}
}

// Execute runs one claimed task to a terminal state. The returned error
// reports infrastructure failures of the execution itself; per-chunk failures
// are folded into the task summary and the Result instead. A task finishing
// with some failed and some completed chunks still terminates COMPLETED, so a
// later run only has the failed remainder to do.
func (e *Engine) Execute(ctx context.Context, task *model.SyncTask, onProgress ProgressFunc) (*Result, error) {
	started := time.Now()
	e.metrics.TaskStarted(task.DatasetCode)
	logger.Infof("starting sync task %s dataset=%s years=%d-%d mode=%s force=%v",
		task.ID, task.DatasetCode, task.YearFrom, task.YearTo, task.Mode, task.Force)

	// Status writes must survive worker shutdown: the claim context is
	// cancelled by Stop(), and a terminal-status UPDATE aborted by it would
	// strand the task in RUNNING with no legal transition out.
	writeCtx := context.WithoutCancel(ctx)

	if task.Status == model.TaskPending {
		if err := task.TransitionTo(model.TaskPlanning); err != nil {
			return nil, err
		}
		if err := e.queue.Update(writeCtx, task); err != nil {
			return nil, err
		}
	}

	chunks, ds, err := e.plan(ctx, task, onProgress)
	if err != nil {
		return e.abort(writeCtx, task, started, err)
	}

	task.ChunksTotal = len(chunks)
	if err := task.TransitionTo(model.TaskRunning); err != nil {
		return e.abort(writeCtx, task, started, err)
	}
	if err := e.queue.Update(writeCtx, task); err != nil {
		return nil, err
	}

	if err := e.statistics.EnsurePartition(ctx, task.DatasetCode); err != nil {
		return e.abort(writeCtx, task, started, err)
	}

	var runErrors *multierror.Error
	interrupted := false

	for _, chunk := range chunks {
		if stop, stopErr := e.shouldStop(ctx, task); stopErr != nil {
			return nil, stopErr
		} else if stop {
			interrupted = true
			break
		}

		outcome, chunkErr := e.processChunk(ctx, ds, task, chunk)
		switch outcome {
		case chunkCompleted:
			task.ChunksCompleted++
		case chunkSkipped:
			task.ChunksSkipped++
		case chunkFailed:
			task.ChunksFailed++
			msg := exception.Truncate(exception.ExtractErrorMessage(chunkErr), checkpointErrorLimit)
			task.AddFailure(chunk.Hash, msg, e.cfg.ErrorSummaryLimit)
			runErrors = multierror.Append(runErrors,
				fmt.Errorf("chunk %s: %w", chunk.Hash[:12], chunkErr))
		}

		if err := e.queue.UpdateProgress(writeCtx, task); err != nil {
			return nil, err
		}
		e.emit(task, PhaseSyncing, chunk.Label, onProgress)

		if outcome == chunkFailed && e.cfg.FailFast {
			logger.Warnf("task %s aborting after first failed chunk (fail-fast)", task.ID)
			break
		}
	}

	return e.finalize(writeCtx, task, started, interrupted, runErrors, onProgress)
}

// plan loads the descriptor and produces the chunk list, clearing checkpoints
// first on forced tasks.
func (e *Engine) plan(ctx context.Context, task *model.SyncTask, onProgress ProgressFunc) ([]*model.SyncChunk, *model.Dataset, error) {
	e.emit(task, PhasePlanning, "", onProgress)

	ds, err := e.catalog.GetDescriptor(ctx, task.DatasetCode)
	if err != nil {
		return nil, nil, err
	}

	if task.Force {
		cleared, err := e.checkpoints.DeleteByDataset(ctx, task.DatasetCode, task.CountyCode)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("task %s forced resync, cleared %d checkpoints (county=%q)",
			task.ID, cleared, task.CountyCode)
	}

	chunks, err := e.planner.Plan(ds, planner.Options{
		YearFrom:   task.YearFrom,
		YearTo:     task.YearTo,
		Mode:       task.Mode,
		CountyCode: task.CountyCode,
		Level:      task.Level,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("task %s planned %d chunks for dataset %s", task.ID, len(chunks), ds.Code)
	return chunks, ds, nil
}

type chunkOutcome int

const (
	chunkCompleted chunkOutcome = iota
	chunkSkipped
	chunkFailed
)

// processChunk runs one chunk through its checkpoint gate, the upstream
// fetch, row resolution and a single transaction covering the fact upsert and
// the checkpoint write.
func (e *Engine) processChunk(ctx context.Context, ds *model.Dataset, task *model.SyncTask, chunk *model.SyncChunk) (chunkOutcome, error) {
	chunkStart := time.Now()

	cp, err := e.checkpoints.Find(ctx, task.DatasetCode, chunk.Hash)
	switch {
	case err == nil:
		if cp.Status == model.CheckpointSuccess {
			logger.Debugf("chunk %s already synced, skipping", chunk.Label)
			e.metrics.ChunkObserved(task.DatasetCode, "skipped", time.Since(chunkStart))
			return chunkSkipped, nil
		}
		if cp.Status == model.CheckpointExhausted {
			// retry ceiling reached on an earlier run; never hits the API again
			// until the operator clears the checkpoint
			logger.Warnf("chunk %s exhausted after %d attempts, not retrying", chunk.Label, cp.RetryCount)
			e.metrics.ChunkObserved(task.DatasetCode, "exhausted", time.Since(chunkStart))
			return chunkFailed, exception.Newf("engine",
				"chunk retry limit reached (%d attempts): %s", cp.RetryCount, cp.LastError)
		}
	case err == repository.ErrCheckpointNotFound:
		cp = &model.Checkpoint{
			DatasetCode: task.DatasetCode,
			ChunkHash:   chunk.Hash,
			Label:       chunk.Label,
			CountyCode:  chunk.Tags.CountyCode,
			CellCount:   chunk.CellCount,
		}
	default:
		return chunkFailed, err
	}
	cp.Label = chunk.Label
	cp.CellCount = chunk.CellCount

	rowCount, err := e.syncChunk(ctx, ds, task, chunk, cp)
	if err != nil {
		cp.Fail(exception.Truncate(exception.ExtractErrorMessage(err), checkpointErrorLimit),
			e.cfg.CheckpointRetryLimit)
		// detached so a shutdown-cancelled context cannot lose the attempt
		if saveErr := e.checkpoints.Save(context.WithoutCancel(ctx), cp); saveErr != nil {
			logger.Errorf("failed to persist failure checkpoint for chunk %s: %v", chunk.Label, saveErr)
		}
		logger.Errorf("chunk %s failed (attempt %d): %v", chunk.Label, cp.RetryCount, err)
		e.metrics.ChunkObserved(task.DatasetCode, "failed", time.Since(chunkStart))
		return chunkFailed, err
	}

	logger.Infof("chunk %s synced, %d rows", chunk.Label, rowCount)
	e.metrics.ChunkObserved(task.DatasetCode, "completed", time.Since(chunkStart))
	return chunkCompleted, nil
}

// syncChunk fetches, resolves and persists one chunk. The fact upsert and the
// success checkpoint commit or roll back together, so a crash mid-chunk never
// leaves a checkpoint without its rows.
func (e *Engine) syncChunk(ctx context.Context, ds *model.Dataset, task *model.SyncTask, chunk *model.SyncChunk, cp *model.Checkpoint) (int64, error) {
	table, err := e.client.FetchTable(ctx, ds, chunk)
	if err != nil {
		return 0, err
	}

	rows := make([]*model.Statistic, 0, len(table.Rows))
	for _, raw := range table.Rows {
		stat, err := e.resolver.Resolve(ds, raw)
		if err != nil {
			return 0, err
		}
		rows = append(rows, stat)
	}

	t, err := e.txManager.Begin(ctx)
	if err != nil {
		return 0, err
	}
	txCtx := tx.WithTx(ctx, t)

	inserted, updated, err := e.statistics.UpsertBatch(txCtx, task.DatasetCode, rows)
	if err != nil {
		if rbErr := e.txManager.Rollback(t); rbErr != nil {
			logger.Errorf("rollback failed for chunk %s: %v", chunk.Label, rbErr)
		}
		return 0, err
	}

	cp.Succeed(int64(len(rows)))
	if err := e.checkpoints.Save(txCtx, cp); err != nil {
		if rbErr := e.txManager.Rollback(t); rbErr != nil {
			logger.Errorf("rollback failed for chunk %s: %v", chunk.Label, rbErr)
		}
		return 0, err
	}

	if err := e.txManager.Commit(t); err != nil {
		return 0, err
	}

	task.RowsInserted += inserted
	task.RowsUpdated += updated
	e.metrics.RowsWritten(task.DatasetCode, inserted, updated)
	return int64(len(rows)), nil
}

// shouldStop checks for context cancellation and external task cancellation
// between chunks.
func (e *Engine) shouldStop(ctx context.Context, task *model.SyncTask) (bool, error) {
	select {
	case <-ctx.Done():
		logger.Warnf("task %s interrupted: %v", task.ID, ctx.Err())
		return true, nil
	default:
	}

	current, err := e.queue.FindByID(ctx, task.ID)
	if err != nil {
		return false, err
	}
	if current.Status == model.TaskCancelled {
		logger.Infof("task %s cancelled externally, stopping", task.ID)
		task.Status = model.TaskCancelled
		task.Version = current.Version
		return true, nil
	}
	// pick up any external version bump so the next progress write succeeds
	task.Version = current.Version
	return false, nil
}

// finalize settles the terminal status. Partial success is COMPLETED; only
// fail-fast aborts and zero-progress full failures become FAILED.
func (e *Engine) finalize(ctx context.Context, task *model.SyncTask, started time.Time, interrupted bool, runErrors *multierror.Error, onProgress ProgressFunc) (*Result, error) {
	e.emit(task, PhaseFinalizing, "", onProgress)

	result := &Result{
		TaskID:          task.ID,
		DatasetCode:     task.DatasetCode,
		ChunksTotal:     task.ChunksTotal,
		ChunksCompleted: task.ChunksCompleted,
		ChunksSkipped:   task.ChunksSkipped,
		ChunksFailed:    task.ChunksFailed,
		RowsInserted:    task.RowsInserted,
		RowsUpdated:     task.RowsUpdated,
		Errors:          runErrors.ErrorOrNil(),
	}

	switch {
	case interrupted && task.Status == model.TaskCancelled:
		// cancellation already persisted by the operator; nothing to write
	case interrupted:
		// shutdown mid-task: mark FAILED so the operator can re-queue it;
		// checkpoints make the rerun cheap
		if err := e.queue.Fail(ctx, task, "interrupted by shutdown"); err != nil {
			return result, err
		}
	case e.cfg.FailFast && task.ChunksFailed > 0:
		summary := fmt.Sprintf("aborted after %d failed chunks (fail-fast)", task.ChunksFailed)
		if err := e.queue.Fail(ctx, task, summary); err != nil {
			return result, err
		}
	case task.ChunksFailed > 0 && task.ChunksCompleted == 0 && task.ChunksSkipped == 0:
		summary := fmt.Sprintf("all %d chunks failed", task.ChunksFailed)
		if err := e.queue.Fail(ctx, task, summary); err != nil {
			return result, err
		}
	default:
		if err := e.queue.Complete(ctx, task); err != nil {
			return result, err
		}
	}

	result.Status = task.Status
	e.metrics.TaskFinished(task.DatasetCode, task.Status, time.Since(started))
	logger.Infof("task %s finished status=%s chunks=%d/%d skipped=%d failed=%d rows=+%d/~%d in %s",
		task.ID, task.Status, task.ChunksCompleted, task.ChunksTotal, task.ChunksSkipped,
		task.ChunksFailed, task.RowsInserted, task.RowsUpdated, time.Since(started).Round(time.Millisecond))
	return result, nil
}

// abort fails a task that never reached the running phase.
func (e *Engine) abort(ctx context.Context, task *model.SyncTask, started time.Time, cause error) (*Result, error) {
	msg := exception.Truncate(exception.ExtractErrorMessage(cause), checkpointErrorLimit)
	logger.Errorf("task %s aborted before running: %v", task.ID, cause)
	if err := e.queue.Fail(ctx, task, msg); err != nil {
		logger.Errorf("failed to persist aborted task %s: %v", task.ID, err)
	}
	e.metrics.TaskFinished(task.DatasetCode, model.TaskFailed, time.Since(started))
	return &Result{
		TaskID:      task.ID,
		DatasetCode: task.DatasetCode,
		Status:      model.TaskFailed,
		Errors:      cause,
	}, cause
}

func (e *Engine) emit(task *model.SyncTask, phase Phase, chunkLabel string, onProgress ProgressFunc) {
	if onProgress == nil {
		return
	}
	onProgress(Progress{
		TaskID:          task.ID,
		DatasetCode:     task.DatasetCode,
		Phase:           phase,
		ChunksTotal:     task.ChunksTotal,
		ChunksCompleted: task.ChunksCompleted,
		ChunksSkipped:   task.ChunksSkipped,
		ChunksFailed:    task.ChunksFailed,
		RowsInserted:    task.RowsInserted,
		RowsUpdated:     task.RowsUpdated,
		CurrentChunk:    chunkLabel,
	})
}
