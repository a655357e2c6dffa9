package engine

import "github.com/insdata/temposync/internal/domain/model"

// Phase labels the stage a task execution is in.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhaseSyncing    Phase = "syncing"
	PhaseFinalizing Phase = "finalizing"
)

// Progress is a point-in-time snapshot of a running task, emitted after every
// chunk outcome.
type Progress struct {
	TaskID      string
	DatasetCode string
	Phase       Phase

	ChunksTotal     int
	ChunksCompleted int
	ChunksSkipped   int
	ChunksFailed    int
	RowsInserted    int64
	RowsUpdated     int64

	// CurrentChunk is the label of the chunk just processed, empty during
	// planning and finalizing.
	CurrentChunk string
}

// Done reports how many chunks have reached an outcome.
func (p Progress) Done() int {
	return p.ChunksCompleted + p.ChunksSkipped + p.ChunksFailed
}

// ProgressFunc receives progress snapshots. It is called synchronously from
// the execution loop and must return quickly.
type ProgressFunc func(Progress)

// Result summarizes one task execution.
type Result struct {
	TaskID      string
	DatasetCode string
	Status      model.TaskStatus

	ChunksTotal     int
	ChunksCompleted int
	ChunksSkipped   int
	ChunksFailed    int
	RowsInserted    int64
	RowsUpdated     int64

	// Errors aggregates the per-chunk failures of this run.
	Errors error
}
