package export

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/domain/model"
)

type statsStub struct {
	rows []*model.Statistic
}

func (s *statsStub) UpsertBatch(context.Context, string, []*model.Statistic) (int64, int64, error) {
	return 0, 0, nil
}

func (s *statsStub) CountByDataset(context.Context, string) (int64, error) {
	return int64(len(s.rows)), nil
}

func (s *statsStub) FindByDataset(_ context.Context, _ string, offset, limit int) ([]*model.Statistic, error) {
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func (s *statsStub) EnsurePartition(context.Context, string) error { return nil }

func sampleRows(n int) []*model.Statistic {
	rows := make([]*model.Statistic, n)
	for i := 0; i < n; i++ {
		v := float64(i)
		terr := int64(i % 5)
		stat := &model.Statistic{
			DatasetCode:            "POP107A",
			TerritoryID:            &terr,
			TimePeriodID:           int64(2020 + i%4),
			ClassificationValueIDs: []int64{int64(i % 3)},
			Value:                  &v,
			Status:                 model.ValuePresent,
			Version:                1,
			UpdatedAt:              time.Now(),
		}
		stat.NaturalKey = fmt.Sprintf("key-%04d", i)
		rows[i] = stat
	}
	return rows
}

func TestExport_WritesSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(config.ExportConfig{OutputDir: dir, RowGroupSize: 1024}, &statsStub{rows: sampleRows(25)})

	snap, err := e.Export(context.Background(), " pop107a ")
	require.NoError(t, err)

	assert.Equal(t, "POP107A", snap.DatasetCode)
	assert.Equal(t, int64(25), snap.Rows)

	info, err := os.Stat(snap.Path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.Contains(t, snap.Path, "pop107a_")
}

func TestExport_EmptyDatasetFails(t *testing.T) {
	e := NewExporter(config.ExportConfig{OutputDir: t.TempDir()}, &statsStub{})

	_, err := e.Export(context.Background(), "POP107A")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fact rows")
}

func TestExport_RequiresDatasetCode(t *testing.T) {
	e := NewExporter(config.ExportConfig{OutputDir: t.TempDir()}, &statsStub{})

	_, err := e.Export(context.Background(), "  ")
	assert.Error(t, err)
}
