package sql_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	testify_mock "github.com/stretchr/testify/mock"

	"github.com/insdata/temposync/internal/domain/model"
	sqlrepo "github.com/insdata/temposync/internal/infra/repository/sql"
	"github.com/insdata/temposync/internal/tx"
)

func factRow(datasetCode string, territoryID, timePeriodID int64, value float64) *model.Statistic {
	v := value
	row := &model.Statistic{
		DatasetCode:  datasetCode,
		TerritoryID:  &territoryID,
		TimePeriodID: timePeriodID,
		Value:        &v,
		Status:       model.ValuePresent,
	}
	row.Seal()
	return row
}

// expectVersionRead wires the transactional version read on the mocked
// transaction, returning the given existing rows through the target slice.
func expectVersionRead(mtx *mockTx, partition string, existing []sqlrepo.StatisticEntity) *testify_mock.Call {
	return mtx.On("ExecuteQueryTable", testify_mock.Anything, partition,
		testify_mock.Anything, testify_mock.Anything, "", 0, 0).
		Run(func(args testify_mock.Arguments) {
			target := args.Get(2).(*[]sqlrepo.StatisticEntity)
			*target = existing
		}).
		Return(nil)
}

func TestSQLStatisticRepository_UpsertBatch_SplitsInsertsAndUpdates(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLStatisticRepository(resolver, "mock_db", 100)

	rows := []*model.Statistic{
		factRow("POP107A", 1, 2020, 10),
		factRow("POP107A", 2, 2020, 20),
		factRow("POP107A", 3, 2020, 30),
	}

	// The second coordinate was written before at version 2; the other two
	// are new. The version read joins the same transaction as the upsert.
	mtx := new(mockTx)
	expectVersionRead(mtx, "statistic_pop107a", []sqlrepo.StatisticEntity{
		{NaturalKey: rows[1].NaturalKey, Version: 2},
	})
	mtx.On("ExecuteUpsert", testify_mock.Anything, testify_mock.Anything,
		"statistic_pop107a", []string{"natural_key"},
		[]string{"value", "status", "version", "updated_at"}).
		Return(int64(3), nil)

	inserted, updated, err := repo.UpsertBatch(tx.WithTx(context.Background(), mtx), "POP107A", rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), inserted)
	assert.Equal(t, int64(1), updated)
	assert.Equal(t, 1, rows[0].Version)
	assert.Equal(t, 3, rows[1].Version)
	assert.Equal(t, 1, rows[2].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
	mtx.AssertExpectations(t)
}

func TestSQLStatisticRepository_UpsertBatch_CollapsesDuplicateCoordinates(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLStatisticRepository(resolver, "mock_db", 100)

	// The same coordinate observed twice in one response: a single upsert
	// statement must carry the conflict key only once, keeping the last
	// observation.
	first := factRow("POP107A", 1, 2020, 10)
	second := factRow("POP107A", 1, 2020, 99)

	mtx := new(mockTx)
	expectVersionRead(mtx, "statistic_pop107a", nil)
	var written []sqlrepo.StatisticEntity
	mtx.On("ExecuteUpsert", testify_mock.Anything, testify_mock.Anything,
		"statistic_pop107a", []string{"natural_key"}, testify_mock.Anything).
		Run(func(args testify_mock.Arguments) {
			written = *args.Get(1).(*[]sqlrepo.StatisticEntity)
		}).
		Return(int64(1), nil)

	inserted, updated, err := repo.UpsertBatch(tx.WithTx(context.Background(), mtx), "POP107A",
		[]*model.Statistic{first, second})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), inserted)
	assert.Equal(t, int64(0), updated)
	if assert.Len(t, written, 1) {
		assert.Equal(t, second.NaturalKey, written[0].NaturalKey)
		assert.Equal(t, float64(99), *written[0].Value)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
	mtx.AssertExpectations(t)
}

func TestSQLStatisticRepository_UpsertBatch_RespectsBatchSize(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLStatisticRepository(resolver, "mock_db", 2)

	rows := []*model.Statistic{
		factRow("POP107A", 1, 2020, 10),
		factRow("POP107A", 2, 2020, 20),
		factRow("POP107A", 3, 2020, 30),
	}

	// Three rows at batch size two means two version reads and two upserts.
	mtx := new(mockTx)
	expectVersionRead(mtx, "statistic_pop107a", nil).Twice()
	mtx.On("ExecuteUpsert", testify_mock.Anything, testify_mock.Anything,
		"statistic_pop107a", []string{"natural_key"},
		[]string{"value", "status", "version", "updated_at"}).
		Return(int64(0), nil).Twice()

	inserted, updated, err := repo.UpsertBatch(tx.WithTx(context.Background(), mtx), "POP107A", rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), inserted)
	assert.Equal(t, int64(0), updated)
	assert.NoError(t, mock.ExpectationsWereMet())
	mtx.AssertExpectations(t)
}

func TestSQLStatisticRepository_UpsertBatch_WritesClassificationLinks(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLStatisticRepository(resolver, "mock_db", 100)

	row := factRow("POP107A", 1, 2020, 10)
	row.ClassificationValueIDs = []int64{7, 9}
	row.Seal()

	mtx := new(mockTx)
	expectVersionRead(mtx, "statistic_pop107a", nil)
	mtx.On("ExecuteUpsert", testify_mock.Anything, testify_mock.Anything,
		"statistic_pop107a", []string{"natural_key"}, testify_mock.Anything).
		Return(int64(1), nil)
	mtx.On("ExecuteUpsert", testify_mock.Anything, testify_mock.Anything,
		"statistic_class_value", []string{"natural_key", "class_value_id"}, testify_mock.Anything).
		Return(int64(2), nil)

	inserted, updated, err := repo.UpsertBatch(tx.WithTx(context.Background(), mtx), "POP107A", []*model.Statistic{row})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), inserted)
	assert.Equal(t, int64(0), updated)
	assert.NoError(t, mock.ExpectationsWereMet())
	mtx.AssertExpectations(t)
}

func TestSQLStatisticRepository_UpsertBatch_EmptyInputIsNoop(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLStatisticRepository(resolver, "mock_db", 100)

	inserted, updated, err := repo.UpsertBatch(context.Background(), "POP107A", nil)
	assert.NoError(t, err)
	assert.Zero(t, inserted)
	assert.Zero(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStatisticRepository_CountByDataset(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLStatisticRepository(resolver, "mock_db", 100)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `statistic_pop107a`").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(42))

	count, err := repo.CountByDataset(context.Background(), "POP107A")
	assert.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStatisticRepository_EnsurePartition(t *testing.T) {
	_, mock, resolver := setupGormMock(t)
	repo := sqlrepo.NewSQLStatisticRepository(resolver, "mock_db", 100)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS statistic_pop107a").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.EnsurePartition(context.Background(), "POP107A")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPartitionTableName_StripsNonIdentifierCharacters(t *testing.T) {
	assert.Equal(t, "statistic_pop107a", sqlrepo.PartitionTableName("POP107A"))
	assert.Equal(t, "statistic_gos104b", sqlrepo.PartitionTableName("GOS-104_B"))
	assert.Equal(t, "statistic_", sqlrepo.PartitionTableName(""))
}
