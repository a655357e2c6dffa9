// Package scheduler enqueues periodic refresh tasks for every active dataset.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/support/logger"
)

// Scheduler runs the cron-driven bulk refresh. Each tick enqueues one task
// per active dataset covering the configured trailing year window; existing
// checkpoints keep the repeated runs cheap.
type Scheduler struct {
	cfg     config.SchedulerConfig
	queue   repository.TaskQueue
	catalog repository.DatasetCatalog
	cron    *cron.Cron
	now     func() time.Time
}

// New builds a Scheduler. It does nothing until Start is called.
func New(cfg config.SchedulerConfig, queue repository.TaskQueue, catalog repository.DatasetCatalog) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		queue:   queue,
		catalog: catalog,
		cron:    cron.New(),
		now:     time.Now,
	}
}

// Start registers the refresh job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		logger.Infof("scheduler disabled")
		return nil
	}
	_, err := s.cron.AddFunc(s.cfg.RefreshSpec, func() {
		if err := s.EnqueueRefresh(ctx); err != nil {
			logger.Errorf("scheduled refresh failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	logger.Infof("scheduler started, refresh spec %q", s.cfg.RefreshSpec)
	return nil
}

// Stop halts the cron loop, waiting for a running tick to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	logger.Infof("scheduler stopped")
}

// EnqueueRefresh queues one totals-mode task per active dataset over the
// trailing YearsBack window. Datasets that already have a queued or running
// task are skipped so ticks never pile up duplicates.
func (s *Scheduler) EnqueueRefresh(ctx context.Context) error {
	codes, err := s.catalog.ListActiveCodes(ctx)
	if err != nil {
		return err
	}

	inFlight, err := s.inFlightDatasets(ctx)
	if err != nil {
		return err
	}

	yearTo := s.now().Year()
	yearFrom := yearTo - s.cfg.YearsBack
	if s.cfg.YearsBack <= 0 {
		yearFrom = yearTo
	}

	enqueued := 0
	for _, code := range codes {
		if inFlight[code] {
			logger.Debugf("dataset %s already has an active task, skipping", code)
			continue
		}
		task := model.NewSyncTask(code, yearFrom, yearTo, model.ClassificationTotals)
		if err := s.queue.Enqueue(ctx, task); err != nil {
			logger.Errorf("failed to enqueue refresh for dataset %s: %v", code, err)
			continue
		}
		enqueued++
	}
	logger.Infof("refresh tick enqueued %d/%d datasets (years %d-%d)",
		enqueued, len(codes), yearFrom, yearTo)
	return nil
}

// inFlightDatasets collects dataset codes with a task still in a non-terminal
// state.
func (s *Scheduler) inFlightDatasets(ctx context.Context) (map[string]bool, error) {
	inFlight := make(map[string]bool)
	for _, status := range []model.TaskStatus{model.TaskPending, model.TaskPlanning, model.TaskRunning} {
		tasks, err := s.queue.List(ctx, status, 0)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			inFlight[t.DatasetCode] = true
		}
	}
	return inFlight, nil
}
