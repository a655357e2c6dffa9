package worker

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
	"github.com/insdata/temposync/internal/engine"
)

// queueStub hands out preloaded tasks exactly once each.
type queueStub struct {
	mu      sync.Mutex
	pending []*model.SyncTask
}

func (q *queueStub) Enqueue(_ context.Context, t *model.SyncTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, t)
	return nil
}

func (q *queueStub) ClaimNext(context.Context) (*model.SyncTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, repository.ErrNoPendingTask
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t, nil
}

func (q *queueStub) Update(context.Context, *model.SyncTask) error         { return nil }
func (q *queueStub) UpdateProgress(context.Context, *model.SyncTask) error { return nil }
func (q *queueStub) Complete(context.Context, *model.SyncTask) error       { return nil }
func (q *queueStub) Fail(context.Context, *model.SyncTask, string) error   { return nil }
func (q *queueStub) Retry(context.Context, string) (*model.SyncTask, error) {
	return nil, repository.ErrTaskNotFound
}
func (q *queueStub) Cancel(context.Context, string) (*model.SyncTask, error) {
	return nil, repository.ErrTaskNotFound
}
func (q *queueStub) FindByID(context.Context, string) (*model.SyncTask, error) {
	return nil, repository.ErrTaskNotFound
}
func (q *queueStub) List(context.Context, model.TaskStatus, int) ([]*model.SyncTask, error) {
	return nil, nil
}

type engineStub struct {
	mu       sync.Mutex
	executed []string
	block    chan struct{}
}

func (e *engineStub) Execute(_ context.Context, task *model.SyncTask, _ engine.ProgressFunc) (*engine.Result, error) {
	if e.block != nil {
		<-e.block
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, task.ID)
	return &engine.Result{TaskID: task.ID, Status: model.TaskCompleted}, nil
}

func (e *engineStub) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.executed)
}

func queueWith(n int) *queueStub {
	q := &queueStub{}
	for i := 0; i < n; i++ {
		_ = q.Enqueue(context.Background(), model.NewSyncTask("POP107A", 2023, 2023, model.ClassificationTotals))
	}
	return q
}

func TestPool_RunOnceProcessesSingleTask(t *testing.T) {
	q := queueWith(3)
	e := &engineStub{}
	p := NewPool(config.WorkerConfig{Count: 1, PollIntervalSeconds: 1, RunOnce: true}, q, e)

	p.Start(context.Background())
	p.Wait()

	assert.Equal(t, 1, e.count())
	assert.Equal(t, int64(1), p.Processed())
}

func TestPool_RunOnceExitsOnEmptyQueue(t *testing.T) {
	q := queueWith(0)
	e := &engineStub{}
	p := NewPool(config.WorkerConfig{Count: 1, PollIntervalSeconds: 1, RunOnce: true}, q, e)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run-once worker did not exit on an empty queue")
	}
	assert.Zero(t, e.count())
}

func TestPool_MaxTasksStopsWorkers(t *testing.T) {
	q := queueWith(5)
	e := &engineStub{}
	p := NewPool(config.WorkerConfig{Count: 2, PollIntervalSeconds: 1, MaxTasks: 3}, q, e)

	p.Start(context.Background())

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop at the task budget")
	}

	// a worker may already hold a claim when the budget trips, so at most one
	// extra task can slip through per worker
	assert.GreaterOrEqual(t, e.count(), 3)
	assert.LessOrEqual(t, e.count(), 4)
}

func TestPool_StopWaitsForInflightTask(t *testing.T) {
	q := queueWith(1)
	e := &engineStub{block: make(chan struct{})}
	p := NewPool(config.WorkerConfig{Count: 1, PollIntervalSeconds: 1}, q, e)

	p.Start(context.Background())

	// let the worker claim and enter Execute
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.pending) == 0
	}, 2*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a task was still executing")
	case <-time.After(100 * time.Millisecond):
	}

	close(e.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the in-flight task finished")
	}
	assert.Equal(t, 1, e.count())
}

func TestPool_MultipleWorkersDrainQueue(t *testing.T) {
	q := queueWith(6)
	e := &engineStub{}
	p := NewPool(config.WorkerConfig{Count: 3, PollIntervalSeconds: 1, MaxTasks: 6}, q, e)

	p.Start(context.Background())

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not drain the queue")
	}
	assert.Equal(t, 6, e.count())
}
