// Package worker runs the polling loop that claims queued sync tasks and
// hands them to the execution engine.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/engine"
	"github.com/insdata/temposync/internal/support/logger"
)

// taskExecutor is the engine surface the pool needs.
type taskExecutor interface {
	Execute(ctx context.Context, task *model.SyncTask, onProgress engine.ProgressFunc) (*engine.Result, error)
}

// Pool owns a set of polling workers sharing one task queue. Shutdown is
// cooperative: workers finish the task in flight and stop claiming.
type Pool struct {
	cfg    config.WorkerConfig
	queue  repository.TaskQueue
	engine taskExecutor

	wg        sync.WaitGroup
	cancel    context.CancelFunc
	processed atomic.Int64
}

// NewPool builds a worker pool over the queue and engine.
func NewPool(cfg config.WorkerConfig, queue repository.TaskQueue, eng taskExecutor) *Pool {
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = 5
	}
	return &Pool{cfg: cfg, queue: queue, engine: eng}
}

// Start launches the workers. They poll until the context is cancelled, Stop
// is called, or the configured task budget is spent.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Count; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	logger.Infof("started %d workers (poll interval %ds)", p.cfg.Count, p.cfg.PollIntervalSeconds)
}

// Stop requests shutdown and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	logger.Infof("workers stopped after %d tasks", p.processed.Load())
}

// Wait blocks until every worker has exited on its own, which only happens
// under run-once or a max-tasks budget.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Processed returns the number of tasks executed so far.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	interval := time.Duration(p.cfg.PollIntervalSeconds) * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		if p.budgetSpent() {
			logger.Infof("worker %d reached the task budget, exiting", id)
			return
		}

		task, err := p.queue.ClaimNext(ctx)
		switch {
		case errors.Is(err, repository.ErrNoPendingTask):
			if p.cfg.RunOnce {
				logger.Infof("worker %d found an empty queue in run-once mode, exiting", id)
				return
			}
			if !sleepCtx(ctx, interval) {
				return
			}
			continue
		case err != nil:
			logger.Errorf("worker %d failed to claim a task: %v", id, err)
			if !sleepCtx(ctx, interval) {
				return
			}
			continue
		}

		logger.Infof("worker %d claimed task %s (dataset %s)", id, task.ID, task.DatasetCode)
		if _, err := p.engine.Execute(ctx, task, nil); err != nil {
			logger.Errorf("worker %d: task %s execution error: %v", id, task.ID, err)
		}
		p.processed.Add(1)

		if p.cfg.RunOnce {
			return
		}
	}
}

// budgetSpent reports whether MaxTasks has been reached across all workers.
func (p *Pool) budgetSpent() bool {
	return p.cfg.MaxTasks > 0 && p.processed.Load() >= int64(p.cfg.MaxTasks)
}

// sleepCtx sleeps for d, returning false when the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
