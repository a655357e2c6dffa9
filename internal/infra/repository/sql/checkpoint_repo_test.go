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
	"github.com/insdata/temposync/internal/tx"
)

var checkpointColumns = []string{
	"dataset_code", "chunk_hash", "status", "label", "county_code",
	"cell_count", "row_count", "retry_count", "last_error", "created_at", "updated_at",
}

func TestSQLCheckpointRepository_Find(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLCheckpointRepository(resolver, "mock_db")

	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM `sync_checkpoint` WHERE").
		WillReturnRows(sqlmock.NewRows(checkpointColumns).
			AddRow("POP107A", "abc123", string(model.CheckpointFailed), "AB 2020-2021", "AB",
				int64(12000), int64(0), 2, "connect timeout", now, now))

	cp, err := repo.Find(context.Background(), "POP107A", "abc123")
	assert.NoError(t, err)
	assert.Equal(t, model.CheckpointFailed, cp.Status)
	assert.Equal(t, 2, cp.RetryCount)
	assert.Equal(t, "connect timeout", cp.LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCheckpointRepository_Find_NotFound(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLCheckpointRepository(resolver, "mock_db")

	mock.ExpectQuery("SELECT .* FROM `sync_checkpoint` WHERE").
		WillReturnRows(sqlmock.NewRows(checkpointColumns))

	cp, err := repo.Find(context.Background(), "POP107A", "missing")
	assert.Nil(t, cp)
	assert.True(t, errors.Is(err, repository.ErrCheckpointNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCheckpointRepository_Save_UpsertsByIdentity(t *testing.T) {
	_, _, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLCheckpointRepository(resolver, "mock_db")

	cp := &model.Checkpoint{
		DatasetCode: "POP107A",
		ChunkHash:   "abc123",
		Label:       "AB 2020-2021",
		CountyCode:  "AB",
		CellCount:   12000,
	}
	cp.Succeed(450)

	mtx := new(mockTx)
	mtx.On("ExecuteUpsert", testify_mock.Anything, testify_mock.Anything,
		"sync_checkpoint", []string{"dataset_code", "chunk_hash"}, testify_mock.Anything).
		Return(int64(1), nil)

	err := repo.Save(tx.WithTx(context.Background(), mtx), cp)
	assert.NoError(t, err)
	assert.False(t, cp.CreatedAt.IsZero())
	mtx.AssertExpectations(t)
}

func TestSQLCheckpointRepository_ListByDataset_FiltersStatus(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLCheckpointRepository(resolver, "mock_db")

	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM `sync_checkpoint` WHERE .* ORDER BY updated_at DESC").
		WillReturnRows(sqlmock.NewRows(checkpointColumns).
			AddRow("POP107A", "h1", string(model.CheckpointExhausted), "AB 2020", "AB",
				int64(9000), int64(0), 5, "HTTP 500", now, now).
			AddRow("POP107A", "h2", string(model.CheckpointExhausted), "AG 2020", "AG",
				int64(9000), int64(0), 5, "HTTP 500", now, now))

	checkpoints, err := repo.ListByDataset(context.Background(), "POP107A", model.CheckpointExhausted)
	assert.NoError(t, err)
	assert.Len(t, checkpoints, 2)
	assert.Equal(t, "h1", checkpoints[0].ChunkHash)
	assert.Equal(t, model.CheckpointExhausted, checkpoints[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCheckpointRepository_DeleteByDataset(t *testing.T) {
	_, _, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLCheckpointRepository(resolver, "mock_db")

	mtx := new(mockTx)
	mtx.On("ExecuteUpdate", testify_mock.Anything, testify_mock.Anything,
		"DELETE", "sync_checkpoint", map[string]interface{}{"dataset_code": "POP107A"}).
		Return(int64(7), nil)

	deleted, err := repo.DeleteByDataset(tx.WithTx(context.Background(), mtx), "POP107A", "")
	assert.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	mtx.AssertExpectations(t)
}

func TestSQLCheckpointRepository_DeleteByDataset_CountyScope(t *testing.T) {
	_, _, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLCheckpointRepository(resolver, "mock_db")

	mtx := new(mockTx)
	mtx.On("ExecuteUpdate", testify_mock.Anything, testify_mock.Anything,
		"DELETE", "sync_checkpoint",
		map[string]interface{}{"dataset_code": "POP107A", "county_code": "CJ"}).
		Return(int64(2), nil)

	deleted, err := repo.DeleteByDataset(tx.WithTx(context.Background(), mtx), "POP107A", "CJ")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	mtx.AssertExpectations(t)
}
