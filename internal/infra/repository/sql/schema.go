package sql

import (
	"fmt"
	"strings"
	"time"
)

// SyncTaskEntity is the persistence shape of a sync task.
type SyncTaskEntity struct {
	ID              string     `gorm:"column:id;primaryKey"`
	DatasetCode     string     `gorm:"column:dataset_code"`
	YearFrom        int        `gorm:"column:year_from"`
	YearTo          int        `gorm:"column:year_to"`
	Mode            string     `gorm:"column:mode"`
	CountyCode      string     `gorm:"column:county_code"`
	Level           string     `gorm:"column:level"`
	Force           bool       `gorm:"column:force_resync"`
	Priority        int        `gorm:"column:priority"`
	Status          string     `gorm:"column:status"`
	ChunksTotal     int        `gorm:"column:chunks_total"`
	ChunksCompleted int        `gorm:"column:chunks_completed"`
	ChunksSkipped   int        `gorm:"column:chunks_skipped"`
	ChunksFailed    int        `gorm:"column:chunks_failed"`
	RowsInserted    int64      `gorm:"column:rows_inserted"`
	RowsUpdated     int64      `gorm:"column:rows_updated"`
	Failures        *string    `gorm:"column:failures"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	StartedAt       *time.Time `gorm:"column:started_at"`
	FinishedAt      *time.Time `gorm:"column:finished_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
	Version         int        `gorm:"column:version"`
}

func (SyncTaskEntity) TableName() string { return "sync_task" }

// CheckpointEntity is the persistence shape of a chunk checkpoint.
type CheckpointEntity struct {
	DatasetCode string    `gorm:"column:dataset_code;primaryKey"`
	ChunkHash   string    `gorm:"column:chunk_hash;primaryKey"`
	Status      string    `gorm:"column:status"`
	Label       string    `gorm:"column:label"`
	CountyCode  string    `gorm:"column:county_code"`
	CellCount   int64     `gorm:"column:cell_count"`
	RowCount    int64     `gorm:"column:row_count"`
	RetryCount  int       `gorm:"column:retry_count"`
	LastError   string    `gorm:"column:last_error"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (CheckpointEntity) TableName() string { return "sync_checkpoint" }

// StatisticEntity is the persistence shape of one fact row. It carries no
// TableName: rows are routed to the dataset partition explicitly.
type StatisticEntity struct {
	NaturalKey   string    `gorm:"column:natural_key;primaryKey"`
	DatasetCode  string    `gorm:"column:dataset_code"`
	TerritoryID  *int64    `gorm:"column:territory_id"`
	TimePeriodID int64     `gorm:"column:time_period_id"`
	UnitID       *int64    `gorm:"column:unit_id"`
	Value        *float64  `gorm:"column:value"`
	Status       string    `gorm:"column:status"`
	Version      int       `gorm:"column:version"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

// StatisticClassEntity links a fact row to one classification value.
type StatisticClassEntity struct {
	NaturalKey   string `gorm:"column:natural_key;primaryKey"`
	ClassValueID int64  `gorm:"column:class_value_id;primaryKey"`
	DatasetCode  string `gorm:"column:dataset_code"`
}

func (StatisticClassEntity) TableName() string { return "statistic_class_value" }

// DatasetEntity is one row of the dataset catalog.
type DatasetEntity struct {
	Code              string `gorm:"column:code;primaryKey"`
	Name              string `gorm:"column:name"`
	HasCountyDetail   bool   `gorm:"column:has_county_detail"`
	HasLocalityDetail bool   `gorm:"column:has_locality_detail"`
	Active            bool   `gorm:"column:active"`
}

func (DatasetEntity) TableName() string { return "dataset" }

// DimensionEntity is one dimension of a cataloged dataset.
type DimensionEntity struct {
	DatasetCode string `gorm:"column:dataset_code;primaryKey"`
	DimIndex    int    `gorm:"column:dim_index;primaryKey"`
	Label       string `gorm:"column:label"`
	Kind        string `gorm:"column:kind"`
}

func (DimensionEntity) TableName() string { return "dataset_dimension" }

// DimensionItemEntity is one selectable item of a cataloged dimension.
type DimensionItemEntity struct {
	DatasetCode   string `gorm:"column:dataset_code;primaryKey"`
	DimIndex      int    `gorm:"column:dim_index;primaryKey"`
	ItemID        string `gorm:"column:item_id;primaryKey"`
	Label         string `gorm:"column:label"`
	ParentID      string `gorm:"column:parent_item_id"`
	CanonicalID   int64  `gorm:"column:canonical_id"`
	TerritoryID   *int64 `gorm:"column:territory_id"`
	TerritoryCode string `gorm:"column:territory_code"`
	TerritoryPath string `gorm:"column:territory_path"`
}

func (DimensionItemEntity) TableName() string { return "dimension_item" }

// PartitionTableName derives the physical fact table of a dataset. Dataset
// codes are alphanumeric upstream; any other character is stripped so the
// name is always a plain SQL identifier.
func PartitionTableName(datasetCode string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(datasetCode) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return fmt.Sprintf("statistic_%s", b.String())
}
