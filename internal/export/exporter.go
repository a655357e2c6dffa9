// Package export writes parquet snapshots of a dataset's fact partition for
// downstream analytical consumers.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/support/logger"
)

// exportPageSize is how many fact rows are loaded per repository page.
const exportPageSize = 5000

// statisticRecord is the parquet projection of one fact row.
type statisticRecord struct {
	NaturalKey       string   `parquet:"name=natural_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	DatasetCode      string   `parquet:"name=dataset_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	TerritoryID      *int64   `parquet:"name=territory_id, type=INT64, repetitiontype=OPTIONAL"`
	TimePeriodID     int64    `parquet:"name=time_period_id, type=INT64"`
	UnitID           *int64   `parquet:"name=unit_id, type=INT64, repetitiontype=OPTIONAL"`
	ClassificationID string   `parquet:"name=classification_ids, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value            *float64 `parquet:"name=value, type=DOUBLE, repetitiontype=OPTIONAL"`
	Status           string   `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Version          int32    `parquet:"name=version, type=INT32"`
	UpdatedAt        int64    `parquet:"name=updated_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// Snapshot describes one completed export.
type Snapshot struct {
	DatasetCode string
	Path        string
	Rows        int64
}

// Exporter pages a dataset partition into a snappy-compressed parquet file.
type Exporter struct {
	cfg        config.ExportConfig
	statistics repository.StatisticRepository
}

// NewExporter wires the exporter.
func NewExporter(cfg config.ExportConfig, statistics repository.StatisticRepository) *Exporter {
	return &Exporter{cfg: cfg, statistics: statistics}
}

// Export writes a snapshot of the dataset partition to the output directory.
// The file name carries the dataset code and a UTC timestamp.
func (e *Exporter) Export(ctx context.Context, datasetCode string) (*Snapshot, error) {
	datasetCode = strings.ToUpper(strings.TrimSpace(datasetCode))
	if datasetCode == "" {
		return nil, exception.Newf("export", "dataset code is required")
	}

	total, err := e.statistics.CountByDataset(ctx, datasetCode)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, exception.Newf("export", "dataset %s has no fact rows to export", datasetCode)
	}

	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return nil, exception.New("export", "failed to create output directory", err, false)
	}
	path := filepath.Join(e.cfg.OutputDir,
		fmt.Sprintf("%s_%s.parquet", strings.ToLower(datasetCode), time.Now().UTC().Format("20060102T150405Z")))

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, exception.New("export", "failed to open snapshot file", err, false)
	}

	pw, err := writer.NewParquetWriter(fw, new(statisticRecord), 2)
	if err != nil {
		_ = fw.Close()
		return nil, exception.New("export", "failed to create parquet writer", err, false)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	if e.cfg.RowGroupSize > 0 {
		pw.RowGroupSize = e.cfg.RowGroupSize
	}

	written, err := e.writeAll(ctx, pw, datasetCode)
	if err != nil {
		_ = fw.Close()
		_ = os.Remove(path)
		return nil, err
	}

	if err := stopWriter(pw); err != nil {
		_ = fw.Close()
		_ = os.Remove(path)
		return nil, exception.New("export", "failed to finalize parquet file", err, false)
	}
	if err := fw.Close(); err != nil {
		return nil, exception.New("export", "failed to close snapshot file", err, false)
	}

	logger.Infof("exported %d rows of dataset %s to %s", written, datasetCode, path)
	return &Snapshot{DatasetCode: datasetCode, Path: path, Rows: written}, nil
}

func (e *Exporter) writeAll(ctx context.Context, pw *writer.ParquetWriter, datasetCode string) (int64, error) {
	var written int64
	for offset := 0; ; offset += exportPageSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		page, err := e.statistics.FindByDataset(ctx, datasetCode, offset, exportPageSize)
		if err != nil {
			return written, err
		}
		if len(page) == 0 {
			return written, nil
		}
		for _, stat := range page {
			if err := pw.Write(toRecord(stat)); err != nil {
				return written, exception.New("export", "failed to write parquet record", err, false)
			}
			written++
		}
		if len(page) < exportPageSize {
			return written, nil
		}
	}
}

func toRecord(s *model.Statistic) statisticRecord {
	ids := make([]string, len(s.ClassificationValueIDs))
	for i, id := range s.ClassificationValueIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return statisticRecord{
		NaturalKey:       s.NaturalKey,
		DatasetCode:      s.DatasetCode,
		TerritoryID:      s.TerritoryID,
		TimePeriodID:     s.TimePeriodID,
		UnitID:           s.UnitID,
		ClassificationID: strings.Join(ids, ","),
		Value:            s.Value,
		Status:           string(s.Status),
		Version:          int32(s.Version),
		UpdatedAt:        s.UpdatedAt.UnixMilli(),
	}
}

// stopWriter finalizes the writer, converting its panics into errors.
func stopWriter(pw *writer.ParquetWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("parquet finalization panicked: %v", r)
		}
	}()
	return pw.WriteStop()
}
