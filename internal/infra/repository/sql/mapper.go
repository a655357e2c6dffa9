package sql

import (
	"encoding/json"

	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/support/logger"
)

func fromDomainTask(t *model.SyncTask) *SyncTaskEntity {
	e := &SyncTaskEntity{
		ID:              t.ID,
		DatasetCode:     t.DatasetCode,
		YearFrom:        t.YearFrom,
		YearTo:          t.YearTo,
		Mode:            string(t.Mode),
		CountyCode:      t.CountyCode,
		Level:           string(t.Level),
		Force:           t.Force,
		Priority:        t.Priority,
		Status:          string(t.Status),
		ChunksTotal:     t.ChunksTotal,
		ChunksCompleted: t.ChunksCompleted,
		ChunksSkipped:   t.ChunksSkipped,
		ChunksFailed:    t.ChunksFailed,
		RowsInserted:    t.RowsInserted,
		RowsUpdated:     t.RowsUpdated,
		CreatedAt:       t.CreatedAt,
		StartedAt:       t.StartedAt,
		FinishedAt:      t.FinishedAt,
		UpdatedAt:       t.UpdatedAt,
		Version:         t.Version,
	}
	if len(t.Failures) > 0 {
		if b, err := json.Marshal(t.Failures); err == nil {
			s := string(b)
			e.Failures = &s
		} else {
			logger.Warnf("Failed to serialize failure list for task %s: %v", t.ID, err)
		}
	}
	return e
}

// taskUpdateValues lists every mutable task column explicitly. Updates must
// go through this map, not the entity struct: fields legitimately reset to
// their zero value (counters, failures, timestamps on retry) have to reach
// the statement too.
func taskUpdateValues(e *SyncTaskEntity) map[string]interface{} {
	return map[string]interface{}{
		"dataset_code":     e.DatasetCode,
		"year_from":        e.YearFrom,
		"year_to":          e.YearTo,
		"mode":             e.Mode,
		"county_code":      e.CountyCode,
		"level":            e.Level,
		"force_resync":     e.Force,
		"priority":         e.Priority,
		"status":           e.Status,
		"chunks_total":     e.ChunksTotal,
		"chunks_completed": e.ChunksCompleted,
		"chunks_skipped":   e.ChunksSkipped,
		"chunks_failed":    e.ChunksFailed,
		"rows_inserted":    e.RowsInserted,
		"rows_updated":     e.RowsUpdated,
		"failures":         e.Failures,
		"started_at":       e.StartedAt,
		"finished_at":      e.FinishedAt,
		"updated_at":       e.UpdatedAt,
		"version":          e.Version,
	}
}

func toDomainTask(e *SyncTaskEntity) *model.SyncTask {
	t := &model.SyncTask{
		ID:              e.ID,
		DatasetCode:     e.DatasetCode,
		YearFrom:        e.YearFrom,
		YearTo:          e.YearTo,
		Mode:            model.ClassificationMode(e.Mode),
		CountyCode:      e.CountyCode,
		Level:           model.TerritoryLevel(e.Level),
		Force:           e.Force,
		Priority:        e.Priority,
		Status:          model.TaskStatus(e.Status),
		ChunksTotal:     e.ChunksTotal,
		ChunksCompleted: e.ChunksCompleted,
		ChunksSkipped:   e.ChunksSkipped,
		ChunksFailed:    e.ChunksFailed,
		RowsInserted:    e.RowsInserted,
		RowsUpdated:     e.RowsUpdated,
		CreatedAt:       e.CreatedAt,
		StartedAt:       e.StartedAt,
		FinishedAt:      e.FinishedAt,
		UpdatedAt:       e.UpdatedAt,
		Version:         e.Version,
	}
	if e.Failures != nil && *e.Failures != "" {
		if err := json.Unmarshal([]byte(*e.Failures), &t.Failures); err != nil {
			logger.Warnf("Failed to deserialize failure list for task %s: %v", e.ID, err)
		}
	}
	return t
}

func fromDomainCheckpoint(c *model.Checkpoint) *CheckpointEntity {
	return &CheckpointEntity{
		DatasetCode: c.DatasetCode,
		ChunkHash:   c.ChunkHash,
		Status:      string(c.Status),
		Label:       c.Label,
		CountyCode:  c.CountyCode,
		CellCount:   c.CellCount,
		RowCount:    c.RowCount,
		RetryCount:  c.RetryCount,
		LastError:   c.LastError,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toDomainCheckpoint(e *CheckpointEntity) *model.Checkpoint {
	return &model.Checkpoint{
		DatasetCode: e.DatasetCode,
		ChunkHash:   e.ChunkHash,
		Status:      model.CheckpointStatus(e.Status),
		Label:       e.Label,
		CountyCode:  e.CountyCode,
		CellCount:   e.CellCount,
		RowCount:    e.RowCount,
		RetryCount:  e.RetryCount,
		LastError:   e.LastError,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func fromDomainStatistic(s *model.Statistic) *StatisticEntity {
	return &StatisticEntity{
		NaturalKey:   s.NaturalKey,
		DatasetCode:  s.DatasetCode,
		TerritoryID:  s.TerritoryID,
		TimePeriodID: s.TimePeriodID,
		UnitID:       s.UnitID,
		Value:        s.Value,
		Status:       string(s.Status),
		Version:      s.Version,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toDomainStatistic(e *StatisticEntity) *model.Statistic {
	return &model.Statistic{
		NaturalKey:   e.NaturalKey,
		DatasetCode:  e.DatasetCode,
		TerritoryID:  e.TerritoryID,
		TimePeriodID: e.TimePeriodID,
		UnitID:       e.UnitID,
		Value:        e.Value,
		Status:       model.ValueStatus(e.Status),
		Version:      e.Version,
		UpdatedAt:    e.UpdatedAt,
	}
}
