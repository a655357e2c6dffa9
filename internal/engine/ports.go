package engine

import (
	"context"
	"time"

	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/planner"
	"github.com/insdata/temposync/internal/tempo"
)

// TempoClient fetches one chunk's table from the upstream API.
type TempoClient interface {
	FetchTable(ctx context.Context, ds *model.Dataset, chunk *model.SyncChunk) (*tempo.Table, error)
}

// RowResolver maps a parsed response row onto canonical fact coordinates.
type RowResolver interface {
	Resolve(ds *model.Dataset, row tempo.Row) (*model.Statistic, error)
}

// ChunkPlanner decomposes a dataset request into capacity-bounded chunks.
type ChunkPlanner interface {
	Plan(ds *model.Dataset, opts planner.Options) ([]*model.SyncChunk, error)
}

// Metrics receives execution events. Implementations must be safe for
// concurrent use across workers.
type Metrics interface {
	TaskStarted(datasetCode string)
	TaskFinished(datasetCode string, status model.TaskStatus, elapsed time.Duration)
	ChunkObserved(datasetCode, outcome string, elapsed time.Duration)
	RowsWritten(datasetCode string, inserted, updated int64)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) TaskStarted(string)                                   {}
func (NopMetrics) TaskFinished(string, model.TaskStatus, time.Duration) {}
func (NopMetrics) ChunkObserved(string, string, time.Duration)          {}
func (NopMetrics) RowsWritten(string, int64, int64)                     {}
