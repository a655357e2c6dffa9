package model

import "time"

// CheckpointStatus is the persisted outcome of the last attempt on a chunk.
type CheckpointStatus string

const (
	CheckpointSuccess CheckpointStatus = "SUCCESS"
	CheckpointFailed  CheckpointStatus = "FAILED"
	// CheckpointExhausted marks a chunk whose failure count reached the retry
	// ceiling; the engine stops attempting it until the operator clears it.
	CheckpointExhausted CheckpointStatus = "EXHAUSTED"
)

// Checkpoint records the durable outcome of one chunk attempt, keyed by the
// chunk's identity hash within its dataset.
type Checkpoint struct {
	DatasetCode string
	ChunkHash   string
	Status      CheckpointStatus
	// Label mirrors the chunk's human-readable description for operator
	// inspection.
	Label string
	// CountyCode carries the county restriction the chunk was planned under,
	// empty for unrestricted plans. Lets force-resync clear a single county.
	CountyCode string
	// CellCount is the planned cell count of the chunk.
	CellCount int64
	// RowCount is the number of fact rows produced by the last successful run.
	RowCount int64
	// RetryCount is the number of consecutive failed attempts. A success
	// resets it to zero.
	RetryCount int
	// LastError holds the truncated message of the last failure.
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Succeed records a successful attempt, clearing the failure trail.
func (c *Checkpoint) Succeed(rowCount int64) {
	c.Status = CheckpointSuccess
	c.RowCount = rowCount
	c.RetryCount = 0
	c.LastError = ""
	c.UpdatedAt = time.Now()
}

// Fail records one more failed attempt; once retryLimit is reached the
// checkpoint flips to EXHAUSTED.
func (c *Checkpoint) Fail(message string, retryLimit int) {
	c.RetryCount++
	c.LastError = message
	if retryLimit > 0 && c.RetryCount >= retryLimit {
		c.Status = CheckpointExhausted
	} else {
		c.Status = CheckpointFailed
	}
	c.UpdatedAt = time.Now()
}
