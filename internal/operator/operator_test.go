package operator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/planner"
)

type fakeQueue struct {
	mu    sync.Mutex
	tasks map[string]*model.SyncTask
}

func newFakeQueue() *fakeQueue { return &fakeQueue{tasks: map[string]*model.SyncTask{}} }

func (q *fakeQueue) Enqueue(_ context.Context, t *model.SyncTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[t.ID] = t
	return nil
}

func (q *fakeQueue) ClaimNext(context.Context) (*model.SyncTask, error) {
	return nil, repository.ErrNoPendingTask
}
func (q *fakeQueue) Update(context.Context, *model.SyncTask) error         { return nil }
func (q *fakeQueue) UpdateProgress(context.Context, *model.SyncTask) error { return nil }
func (q *fakeQueue) Complete(context.Context, *model.SyncTask) error       { return nil }
func (q *fakeQueue) Fail(context.Context, *model.SyncTask, string) error   { return nil }

func (q *fakeQueue) Retry(_ context.Context, id string) (*model.SyncTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	if err := t.TransitionTo(model.TaskPending); err != nil {
		return nil, err
	}
	return t, nil
}

func (q *fakeQueue) Cancel(_ context.Context, id string) (*model.SyncTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	if err := t.TransitionTo(model.TaskCancelled); err != nil {
		return nil, err
	}
	return t, nil
}

func (q *fakeQueue) FindByID(_ context.Context, id string) (*model.SyncTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	return t, nil
}

func (q *fakeQueue) List(_ context.Context, status model.TaskStatus, _ int) ([]*model.SyncTask, error) {
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

type fakeCheckpoints struct {
	cleared map[string]string
	listed  []*model.Checkpoint
}

func (r *fakeCheckpoints) Find(context.Context, string, string) (*model.Checkpoint, error) {
	return nil, repository.ErrCheckpointNotFound
}
func (r *fakeCheckpoints) Save(context.Context, *model.Checkpoint) error { return nil }

func (r *fakeCheckpoints) ListByDataset(context.Context, string, model.CheckpointStatus) ([]*model.Checkpoint, error) {
	return r.listed, nil
}

func (r *fakeCheckpoints) DeleteByDataset(_ context.Context, code, county string) (int64, error) {
	if r.cleared == nil {
		r.cleared = map[string]string{}
	}
	r.cleared[code] = county
	return 7, nil
}

type fakeCatalog struct{ known map[string]*model.Dataset }

func (c *fakeCatalog) GetDescriptor(_ context.Context, code string) (*model.Dataset, error) {
	ds, ok := c.known[code]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	return ds, nil
}

func (c *fakeCatalog) ListActiveCodes(context.Context) ([]string, error) { return nil, nil }

type fakePlanner struct{ chunks []*model.SyncChunk }

func (p *fakePlanner) Plan(*model.Dataset, planner.Options) ([]*model.SyncChunk, error) {
	return p.chunks, nil
}

func newService(codes ...string) (*Service, *fakeQueue, *fakeCheckpoints) {
	known := map[string]*model.Dataset{}
	for _, c := range codes {
		known[c] = &model.Dataset{Code: c, Dimensions: []model.Dimension{{Index: 0}}}
	}
	q := newFakeQueue()
	cps := &fakeCheckpoints{}
	chunk := &model.SyncChunk{DatasetCode: "POP107A", CellCount: 42}
	return NewService(q, cps, &fakeCatalog{known: known}, &fakePlanner{chunks: []*model.SyncChunk{chunk}}), q, cps
}

func TestEnqueue_NormalizesAndValidates(t *testing.T) {
	s, q, _ := newService("POP107A")

	task, err := s.Enqueue(context.Background(), EnqueueRequest{
		DatasetCode: " pop107a ",
		YearFrom:    2020,
		YearTo:      2023,
		CountyCode:  "ab",
	})
	require.NoError(t, err)

	assert.Equal(t, "POP107A", task.DatasetCode)
	assert.Equal(t, "AB", task.CountyCode)
	assert.Equal(t, model.ClassificationTotals, task.Mode, "mode defaults to totals")
	assert.Len(t, q.tasks, 1)
}

func TestEnqueue_RejectsUnknownDataset(t *testing.T) {
	s, _, _ := newService("POP107A")

	_, err := s.Enqueue(context.Background(), EnqueueRequest{DatasetCode: "NOPE", YearFrom: 2020, YearTo: 2023})
	assert.Error(t, err)
}

func TestEnqueue_RejectsInvalidYearRange(t *testing.T) {
	s, _, _ := newService("POP107A")

	_, err := s.Enqueue(context.Background(), EnqueueRequest{DatasetCode: "POP107A", YearFrom: 2024, YearTo: 2020})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid year range")
}

func TestRetryAllFailed(t *testing.T) {
	s, q, _ := newService("POP107A")

	for i := 0; i < 3; i++ {
		task := model.NewSyncTask("POP107A", 2020, 2023, model.ClassificationTotals)
		require.NoError(t, task.TransitionTo(model.TaskPlanning))
		require.NoError(t, task.TransitionTo(model.TaskFailed))
		require.NoError(t, q.Enqueue(context.Background(), task))
	}
	completed := model.NewSyncTask("POP107A", 2020, 2023, model.ClassificationTotals)
	require.NoError(t, completed.TransitionTo(model.TaskRunning))
	require.NoError(t, completed.TransitionTo(model.TaskCompleted))
	require.NoError(t, q.Enqueue(context.Background(), completed))

	retried, err := s.RetryAllFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, retried)

	pending, err := q.List(context.Background(), model.TaskPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestClearCheckpoints(t *testing.T) {
	s, _, cps := newService("POP107A")

	n, err := s.ClearCheckpoints(context.Background(), " pop107a ", "ab")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "AB", cps.cleared["POP107A"])
}

func TestPlan_PreviewDoesNotEnqueue(t *testing.T) {
	s, q, _ := newService("POP107A")

	preview, err := s.Plan(context.Background(), EnqueueRequest{DatasetCode: "POP107A", YearFrom: 2020, YearTo: 2023})
	require.NoError(t, err)

	assert.Equal(t, int64(42), preview.TotalCells)
	assert.Len(t, preview.Chunks, 1)
	assert.Empty(t, q.tasks)
}
