package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
)

type memQueue struct {
	mu    sync.Mutex
	tasks []*model.SyncTask
}

func (q *memQueue) Enqueue(_ context.Context, t *model.SyncTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *memQueue) ClaimNext(context.Context) (*model.SyncTask, error) {
	return nil, repository.ErrNoPendingTask
}
func (q *memQueue) Update(context.Context, *model.SyncTask) error         { return nil }
func (q *memQueue) UpdateProgress(context.Context, *model.SyncTask) error { return nil }
func (q *memQueue) Complete(context.Context, *model.SyncTask) error       { return nil }
func (q *memQueue) Fail(context.Context, *model.SyncTask, string) error   { return nil }
func (q *memQueue) Retry(context.Context, string) (*model.SyncTask, error) {
	return nil, repository.ErrTaskNotFound
}
func (q *memQueue) Cancel(context.Context, string) (*model.SyncTask, error) {
	return nil, repository.ErrTaskNotFound
}
func (q *memQueue) FindByID(context.Context, string) (*model.SyncTask, error) {
	return nil, repository.ErrTaskNotFound
}

func (q *memQueue) List(_ context.Context, status model.TaskStatus, _ int) ([]*model.SyncTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*model.SyncTask
	for _, t := range q.tasks {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

type catalogStub struct{ codes []string }

func (c *catalogStub) GetDescriptor(context.Context, string) (*model.Dataset, error) {
	return nil, repository.ErrTaskNotFound
}

func (c *catalogStub) ListActiveCodes(context.Context) ([]string, error) {
	return c.codes, nil
}

func fixedScheduler(q *memQueue, codes []string, yearsBack int) *Scheduler {
	s := New(config.SchedulerConfig{Enabled: true, RefreshSpec: "@daily", YearsBack: yearsBack},
		q, &catalogStub{codes: codes})
	s.now = func() time.Time { return time.Date(2026, 8, 27, 3, 0, 0, 0, time.UTC) }
	return s
}

func TestEnqueueRefresh_QueuesActiveDatasets(t *testing.T) {
	q := &memQueue{}
	s := fixedScheduler(q, []string{"POP107A", "AGR101B"}, 3)

	require.NoError(t, s.EnqueueRefresh(context.Background()))

	require.Len(t, q.tasks, 2)
	for _, task := range q.tasks {
		assert.Equal(t, 2023, task.YearFrom)
		assert.Equal(t, 2026, task.YearTo)
		assert.Equal(t, model.ClassificationTotals, task.Mode)
		assert.Equal(t, model.TaskPending, task.Status)
	}
}

func TestEnqueueRefresh_SkipsDatasetsWithActiveTasks(t *testing.T) {
	q := &memQueue{}
	running := model.NewSyncTask("POP107A", 2023, 2026, model.ClassificationTotals)
	require.NoError(t, running.TransitionTo(model.TaskRunning))
	require.NoError(t, q.Enqueue(context.Background(), running))

	s := fixedScheduler(q, []string{"POP107A", "AGR101B"}, 3)
	require.NoError(t, s.EnqueueRefresh(context.Background()))

	assert.Len(t, q.tasks, 2, "only the idle dataset gets a new task")
	assert.Equal(t, "AGR101B", q.tasks[1].DatasetCode)
}

func TestEnqueueRefresh_ZeroYearsBackCoversCurrentYear(t *testing.T) {
	q := &memQueue{}
	s := fixedScheduler(q, []string{"POP107A"}, 0)

	require.NoError(t, s.EnqueueRefresh(context.Background()))

	require.Len(t, q.tasks, 1)
	assert.Equal(t, 2026, q.tasks[0].YearFrom)
	assert.Equal(t, 2026, q.tasks[0].YearTo)
}

func TestStart_DisabledSchedulerIsNoop(t *testing.T) {
	q := &memQueue{}
	s := New(config.SchedulerConfig{Enabled: false}, q, &catalogStub{codes: []string{"POP107A"}})

	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, q.tasks)
}

func TestStart_RejectsInvalidSpec(t *testing.T) {
	q := &memQueue{}
	s := New(config.SchedulerConfig{Enabled: true, RefreshSpec: "not a cron spec"},
		q, &catalogStub{})

	assert.Error(t, s.Start(context.Background()))
}
