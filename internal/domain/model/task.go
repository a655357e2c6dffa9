package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a sync task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskPlanning  TaskStatus = "PLANNING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskCancelled TaskStatus = "CANCELLED"
)

// validTaskTransitions enumerates the permitted status edges. FAILED tasks may
// be re-queued, CANCELLED is reachable from any non-terminal state.
var validTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:   {TaskPlanning, TaskRunning, TaskCancelled},
	TaskPlanning:  {TaskRunning, TaskFailed, TaskCancelled},
	TaskRunning:   {TaskCompleted, TaskFailed, TaskCancelled},
	TaskFailed:    {TaskPending},
	TaskCompleted: {},
	TaskCancelled: {},
}

// CanTransitionTo reports whether the edge from s to next is legal.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range validTaskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions other
// than an explicit operator re-queue.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ClassificationMode selects how classification dimensions are planned.
type ClassificationMode string

const (
	// ClassificationTotals keeps only pre-aggregated total items.
	ClassificationTotals ClassificationMode = "totals"
	// ClassificationAll selects every classification item.
	ClassificationAll ClassificationMode = "all"
)

// TerritoryLevel optionally pins the territorial granularity of a task,
// overriding the granularity derived from the dataset descriptor.
type TerritoryLevel string

const (
	TerritoryDefault         TerritoryLevel = ""
	TerritoryNational        TerritoryLevel = "national"
	TerritoryCountyAggregate TerritoryLevel = "county_aggregate"
	TerritoryLocalityDetail  TerritoryLevel = "locality_detail"
)

// TaskFailure is one bounded entry of a task's error summary.
type TaskFailure struct {
	ChunkHash string    `json:"chunkHash,omitempty"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// FailureList is the JSON-persisted, bounded error summary of a task.
type FailureList []TaskFailure

// Value implements driver.Valuer so the list round-trips through a text
// column.
func (l FailureList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize failure list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *FailureList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for FailureList: %T", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}

// SyncTask is one queued unit of synchronization work for a single dataset.
type SyncTask struct {
	ID          string
	DatasetCode string
	YearFrom    int
	YearTo      int
	Mode        ClassificationMode
	// CountyCode restricts the task to a single county when non-empty.
	CountyCode string
	// Level optionally pins the territorial granularity.
	Level TerritoryLevel
	// Force clears prior checkpoints so every chunk is re-fetched.
	Force bool
	// Priority orders claiming; higher values are claimed first.
	Priority int
	Status   TaskStatus

	ChunksTotal     int
	ChunksCompleted int
	ChunksSkipped   int
	ChunksFailed    int
	RowsInserted    int64
	RowsUpdated     int64
	Failures        FailureList

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	UpdatedAt  time.Time
	// Version is the optimistic-lock counter; every state update increments it.
	Version int
}

// NewSyncTask builds a PENDING task with a fresh id.
func NewSyncTask(datasetCode string, yearFrom, yearTo int, mode ClassificationMode) *SyncTask {
	now := time.Now()
	if mode == "" {
		mode = ClassificationTotals
	}
	return &SyncTask{
		ID:          uuid.New().String(),
		DatasetCode: datasetCode,
		YearFrom:    yearFrom,
		YearTo:      yearTo,
		Mode:        mode,
		Status:      TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
}

// TransitionTo moves the task to the next status, rejecting illegal edges.
func (t *SyncTask) TransitionTo(next TaskStatus) error {
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal task transition %s -> %s (task %s)", t.Status, next, t.ID)
	}
	now := time.Now()
	switch next {
	case TaskRunning:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case TaskCompleted, TaskFailed, TaskCancelled:
		t.FinishedAt = &now
	case TaskPending:
		// operator re-queue resets the execution timestamps and counters
		t.StartedAt = nil
		t.FinishedAt = nil
		t.ChunksTotal = 0
		t.ChunksCompleted = 0
		t.ChunksSkipped = 0
		t.ChunksFailed = 0
		t.RowsInserted = 0
		t.RowsUpdated = 0
		t.Failures = nil
	}
	t.Status = next
	t.UpdatedAt = now
	return nil
}

// AddFailure appends to the bounded error summary; entries past limit are
// dropped and only the count keeps growing on the chunk counters.
func (t *SyncTask) AddFailure(chunkHash, message string, limit int) {
	if limit > 0 && len(t.Failures) >= limit {
		return
	}
	t.Failures = append(t.Failures, TaskFailure{
		ChunkHash: chunkHash,
		Message:   message,
		At:        time.Now(),
	})
}
