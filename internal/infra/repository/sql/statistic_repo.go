package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/insdata/temposync/internal/adapter/database"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/support/logger"
)

// statisticUpdateColumns are replaced when a natural key already exists; the
// version carries the client-computed increment.
var statisticUpdateColumns = []string{"value", "status", "version", "updated_at"}

// SQLStatisticRepository implements repository.StatisticRepository over the
// per-dataset fact partitions.
type SQLStatisticRepository struct {
	baseRepository
	batchSize int
}

// NewSQLStatisticRepository builds the fact store. batchSize bounds the rows
// per upsert statement.
func NewSQLStatisticRepository(dbResolver database.DBConnectionResolver, dbName string, batchSize int) repository.StatisticRepository {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SQLStatisticRepository{
		baseRepository: baseRepository{dbResolver: dbResolver, dbName: dbName},
		batchSize:      batchSize,
	}
}

// UpsertBatch writes rows into the dataset partition in bounded batches.
// Existing versions are read within the same (ambient) transaction as the
// upsert, with the rows locked where the backend supports it, so re-observed
// coordinates get their version incremented while new coordinates start at
// 1; the insert/update split is derived from that same read.
func (r *SQLStatisticRepository) UpsertBatch(ctx context.Context, datasetCode string, rows []*model.Statistic) (int64, int64, error) {
	const op = "SQLStatisticRepository.UpsertBatch"
	if len(rows) == 0 {
		return 0, 0, nil
	}

	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return 0, 0, err
	}

	rows = dedupeByNaturalKey(rows)
	partition := PartitionTableName(datasetCode)
	now := time.Now()
	var inserted, updated int64

	for start := 0; start < len(rows); start += r.batchSize {
		end := start + r.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		keys := make([]string, 0, len(batch))
		for _, row := range batch {
			keys = append(keys, row.NaturalKey)
		}

		var existing []StatisticEntity
		err := executor.ExecuteQueryTable(ctx, partition, &existing,
			map[string]interface{}{"natural_key": keys}, "", 0, 0)
		if err != nil {
			return inserted, updated, exception.New(op,
				fmt.Sprintf("failed to read existing versions from %s", partition), err, true)
		}
		versions := make(map[string]int, len(existing))
		for _, e := range existing {
			versions[e.NaturalKey] = e.Version
		}

		entities := make([]StatisticEntity, 0, len(batch))
		var classRows []StatisticClassEntity
		for _, row := range batch {
			if prev, ok := versions[row.NaturalKey]; ok {
				row.Version = prev + 1
				updated++
			} else {
				row.Version = 1
				inserted++
			}
			row.UpdatedAt = now
			entities = append(entities, *fromDomainStatistic(row))

			for _, classValueID := range row.ClassificationValueIDs {
				classRows = append(classRows, StatisticClassEntity{
					NaturalKey:   row.NaturalKey,
					ClassValueID: classValueID,
					DatasetCode:  datasetCode,
				})
			}
		}

		_, err = executor.ExecuteUpsert(ctx, &entities, partition, []string{"natural_key"}, statisticUpdateColumns)
		if err != nil {
			return inserted, updated, exception.New(op,
				fmt.Sprintf("failed to upsert %d rows into %s", len(entities), partition), err, true)
		}

		if len(classRows) > 0 {
			// The classification coordinates of a natural key never change,
			// so conflicts resolve to DO NOTHING.
			_, err = executor.ExecuteUpsert(ctx, &classRows, StatisticClassEntity{}.TableName(),
				[]string{"natural_key", "class_value_id"}, nil)
			if err != nil {
				return inserted, updated, exception.New(op, "failed to upsert classification links", err, true)
			}
		}
	}

	logger.Debugf("Upserted %d rows into %s (inserted=%d updated=%d)", len(rows), partition, inserted, updated)
	return inserted, updated, nil
}

// dedupeByNaturalKey collapses rows sharing the same coordinates to the last
// observation. A multi-row upsert must not carry the same conflict key twice;
// the upstream table occasionally repeats a coordinate within one response.
func dedupeByNaturalKey(rows []*model.Statistic) []*model.Statistic {
	deduped := make([]*model.Statistic, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		if row.NaturalKey == "" {
			row.Seal()
		}
		if at, ok := index[row.NaturalKey]; ok {
			deduped[at] = row
			continue
		}
		index[row.NaturalKey] = len(deduped)
		deduped = append(deduped, row)
	}
	return deduped
}

func (r *SQLStatisticRepository) CountByDataset(ctx context.Context, datasetCode string) (int64, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return 0, err
	}
	return conn.CountTable(ctx, PartitionTableName(datasetCode), nil)
}

func (r *SQLStatisticRepository) FindByDataset(ctx context.Context, datasetCode string, offset, limit int) ([]*model.Statistic, error) {
	const op = "SQLStatisticRepository.FindByDataset"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []StatisticEntity
	err = conn.ExecuteQueryTable(ctx, PartitionTableName(datasetCode), &entities, nil, "natural_key ASC", limit, offset)
	if err != nil {
		return nil, exception.New(op, fmt.Sprintf("failed to page facts for %s", datasetCode), err, true)
	}
	if len(entities) == 0 {
		return nil, nil
	}

	keys := make([]string, len(entities))
	rows := make([]*model.Statistic, len(entities))
	byKey := make(map[string]*model.Statistic, len(entities))
	for i := range entities {
		rows[i] = toDomainStatistic(&entities[i])
		keys[i] = entities[i].NaturalKey
		byKey[keys[i]] = rows[i]
	}

	var classRows []StatisticClassEntity
	if err := conn.ExecuteQuery(ctx, &classRows, map[string]interface{}{"natural_key": keys}); err != nil {
		return nil, exception.New(op, "failed to load classification links", err, true)
	}
	for _, cr := range classRows {
		if row, ok := byKey[cr.NaturalKey]; ok {
			row.ClassificationValueIDs = append(row.ClassificationValueIDs, cr.ClassValueID)
		}
	}
	return rows, nil
}

// EnsurePartition creates the dataset's fact partition when missing. The DDL
// sticks to types every supported backend accepts.
func (r *SQLStatisticRepository) EnsurePartition(ctx context.Context, datasetCode string) error {
	const op = "SQLStatisticRepository.EnsurePartition"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}

	partition := PartitionTableName(datasetCode)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	natural_key    VARCHAR(64) PRIMARY KEY,
	dataset_code   VARCHAR(64) NOT NULL,
	territory_id   BIGINT,
	time_period_id BIGINT NOT NULL,
	unit_id        BIGINT,
	value          DOUBLE PRECISION,
	status         VARCHAR(16) NOT NULL,
	version        INTEGER NOT NULL,
	updated_at     TIMESTAMP NOT NULL
)`, partition)

	if _, err := conn.ExecuteRaw(ctx, ddl); err != nil {
		return exception.New(op, fmt.Sprintf("failed to ensure partition %s", partition), err, true)
	}
	return nil
}
