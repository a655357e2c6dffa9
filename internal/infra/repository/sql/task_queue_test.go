package sql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	testify_mock "github.com/stretchr/testify/mock"

	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
	sqlrepo "github.com/insdata/temposync/internal/infra/repository/sql"
	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/tx"
)

const claimSelectPattern = "SELECT .* FROM `sync_task` WHERE `status` = .* ORDER BY priority DESC, created_at ASC"

var taskColumns = []string{
	"id", "dataset_code", "year_from", "year_to", "mode",
	"status", "priority", "version", "created_at",
}

func pendingTaskRow(rows *sqlmock.Rows, id string, priority, version int) *sqlmock.Rows {
	return rows.AddRow(id, "POP107A", 2020, 2023, string(model.ClassificationTotals),
		string(model.TaskPending), priority, version, time.Now())
}

func TestSQLTaskQueue_Enqueue_JoinsAmbientTransaction(t *testing.T) {
	_, _, resolver := setupGormMock(t)
	queue := sqlrepo.NewSQLTaskQueue(resolver, "mock_db")

	task := model.NewSyncTask("POP107A", 2020, 2023, model.ClassificationTotals)

	mtx := new(mockTx)
	mtx.On("ExecuteUpdate", testify_mock.Anything, testify_mock.Anything,
		"CREATE", "sync_task", testify_mock.Anything).Return(int64(1), nil)

	err := queue.Enqueue(tx.WithTx(context.Background(), mtx), task)
	assert.NoError(t, err)
	mtx.AssertExpectations(t)
}

func TestSQLTaskQueue_ClaimNext_ClaimsOldestPending(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	queue := sqlrepo.NewSQLTaskQueue(resolver, "mock_db")

	mock.ExpectQuery(claimSelectPattern).
		WillReturnRows(pendingTaskRow(sqlmock.NewRows(taskColumns), "task-1", 5, 1))
	mock.ExpectExec("UPDATE `sync_task` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	task, err := queue.ClaimNext(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, model.TaskPlanning, task.Status)
	assert.Equal(t, 2, task.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTaskQueue_ClaimNext_EmptyQueue(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	queue := sqlrepo.NewSQLTaskQueue(resolver, "mock_db")

	mock.ExpectQuery(claimSelectPattern).WillReturnRows(sqlmock.NewRows(taskColumns))

	task, err := queue.ClaimNext(context.Background())
	assert.Nil(t, task)
	assert.True(t, errors.Is(err, repository.ErrNoPendingTask))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTaskQueue_ClaimNext_RetriesAfterLostRace(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	queue := sqlrepo.NewSQLTaskQueue(resolver, "mock_db")

	// First candidate is claimed by a concurrent worker, so its guarded
	// update touches zero rows and the next candidate is tried.
	mock.ExpectQuery(claimSelectPattern).
		WillReturnRows(pendingTaskRow(sqlmock.NewRows(taskColumns), "task-1", 5, 1))
	mock.ExpectExec("UPDATE `sync_task` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(claimSelectPattern).
		WillReturnRows(pendingTaskRow(sqlmock.NewRows(taskColumns), "task-2", 3, 1))
	mock.ExpectExec("UPDATE `sync_task` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	task, err := queue.ClaimNext(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "task-2", task.ID)
	assert.Equal(t, model.TaskPlanning, task.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTaskQueue_ClaimNext_GivesUpAfterRepeatedRaces(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	queue := sqlrepo.NewSQLTaskQueue(resolver, "mock_db")

	for i := 0; i < 3; i++ {
		mock.ExpectQuery(claimSelectPattern).
			WillReturnRows(pendingTaskRow(sqlmock.NewRows(taskColumns), "task-1", 5, 1))
		mock.ExpectExec("UPDATE `sync_task` SET").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	task, err := queue.ClaimNext(context.Background())
	assert.Nil(t, task)
	assert.True(t, errors.Is(err, repository.ErrNoPendingTask))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLTaskQueue_Update_IncrementsVersion(t *testing.T) {
	_, _, resolver := setupGormMock(t)
	queue := sqlrepo.NewSQLTaskQueue(resolver, "mock_db")

	task := model.NewSyncTask("POP107A", 2020, 2023, model.ClassificationTotals)
	task.Version = 3

	mtx := new(mockTx)
	mtx.On("ExecuteUpdate", testify_mock.Anything, testify_mock.Anything,
		"UPDATE", "sync_task", map[string]interface{}{"id": task.ID, "version": 3}).
		Return(int64(1), nil)

	err := queue.Update(tx.WithTx(context.Background(), mtx), task)
	assert.NoError(t, err)
	assert.Equal(t, 4, task.Version)
	mtx.AssertExpectations(t)
}

func TestSQLTaskQueue_Update_OptimisticLockConflict(t *testing.T) {
	_, _, resolver := setupGormMock(t)
	queue := sqlrepo.NewSQLTaskQueue(resolver, "mock_db")

	task := model.NewSyncTask("POP107A", 2020, 2023, model.ClassificationTotals)
	task.Version = 3

	mtx := new(mockTx)
	mtx.On("ExecuteUpdate", testify_mock.Anything, testify_mock.Anything,
		"UPDATE", "sync_task", map[string]interface{}{"id": task.ID, "version": 3}).
		Return(int64(0), nil)

	err := queue.Update(tx.WithTx(context.Background(), mtx), task)
	assert.Error(t, err)
	assert.True(t, exception.IsOptimisticLock(err))
	// A rejected write must not leave the in-memory version advanced.
	assert.Equal(t, 3, task.Version)
	mtx.AssertExpectations(t)
}

func TestSQLTaskQueue_Retry_PersistsCounterResets(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	queue := sqlrepo.NewSQLTaskQueue(resolver, "mock_db")

	started := time.Now().Add(-time.Hour)
	finished := time.Now().Add(-30 * time.Minute)
	columns := append(append([]string{}, taskColumns...),
		"chunks_total", "chunks_completed", "chunks_failed", "rows_inserted",
		"started_at", "finished_at")
	mock.ExpectQuery("SELECT .* FROM `sync_task` WHERE `id` =").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("task-1", "POP107A", 2020, 2023, string(model.ClassificationTotals),
				string(model.TaskFailed), 0, 4, time.Now(),
				10, 6, 4, 1234, started, finished))

	// The re-queue write must carry the cleared counters and timestamps;
	// zero values are resets here, not absent fields.
	var written map[string]interface{}
	mtx := new(mockTx)
	mtx.On("ExecuteUpdate", testify_mock.Anything, testify_mock.Anything,
		"UPDATE", "sync_task", map[string]interface{}{"id": "task-1", "version": 4}).
		Run(func(args testify_mock.Arguments) {
			written = args.Get(1).(map[string]interface{})
		}).
		Return(int64(1), nil)

	task, err := queue.Retry(tx.WithTx(context.Background(), mtx), "task-1")
	assert.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Equal(t, string(model.TaskPending), written["status"])
	assert.Equal(t, 0, written["chunks_total"])
	assert.Equal(t, 0, written["chunks_completed"])
	assert.Equal(t, 0, written["chunks_failed"])
	assert.Equal(t, int64(0), written["rows_inserted"])
	assert.Nil(t, written["started_at"])
	assert.Nil(t, written["finished_at"])
	assert.NoError(t, mock.ExpectationsWereMet())
	mtx.AssertExpectations(t)
}

func TestSQLTaskQueue_FindByID_NotFound(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	queue := sqlrepo.NewSQLTaskQueue(resolver, "mock_db")

	mock.ExpectQuery("SELECT .* FROM `sync_task` WHERE `id` =").
		WillReturnRows(sqlmock.NewRows(taskColumns))

	task, err := queue.FindByID(context.Background(), "missing")
	assert.Nil(t, task)
	assert.True(t, errors.Is(err, repository.ErrTaskNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
