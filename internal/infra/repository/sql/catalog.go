package sql

import (
	"context"
	"fmt"

	"github.com/insdata/temposync/internal/adapter/database"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/domain/repository"
	"github.com/insdata/temposync/internal/support/exception"
)

// SQLDatasetCatalog implements repository.DatasetCatalog over the normalized
// metadata tables. Descriptors are assembled fresh on every call.
type SQLDatasetCatalog struct {
	baseRepository
}

// NewSQLDatasetCatalog builds the catalog over the named store connection.
func NewSQLDatasetCatalog(dbResolver database.DBConnectionResolver, dbName string) repository.DatasetCatalog {
	return &SQLDatasetCatalog{baseRepository{dbResolver: dbResolver, dbName: dbName}}
}

func (c *SQLDatasetCatalog) GetDescriptor(ctx context.Context, datasetCode string) (*model.Dataset, error) {
	const op = "SQLDatasetCatalog.GetDescriptor"
	conn, err := c.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var datasets []DatasetEntity
	if err := conn.ExecuteQuery(ctx, &datasets, map[string]interface{}{"code": datasetCode}); err != nil {
		return nil, exception.New(op, fmt.Sprintf("failed to load dataset %s", datasetCode), err, true)
	}
	if len(datasets) == 0 {
		return nil, exception.Newf(op, "dataset %s is not cataloged", datasetCode)
	}
	entity := datasets[0]

	var dimensions []DimensionEntity
	err = conn.ExecuteQueryAdvanced(ctx, &dimensions,
		map[string]interface{}{"dataset_code": datasetCode}, "dim_index ASC", 0, 0)
	if err != nil {
		return nil, exception.New(op, fmt.Sprintf("failed to load dimensions of %s", datasetCode), err, true)
	}
	if len(dimensions) == 0 {
		return nil, exception.Newf(op, "dataset %s has no cataloged dimensions", datasetCode)
	}

	var items []DimensionItemEntity
	err = conn.ExecuteQueryAdvanced(ctx, &items,
		map[string]interface{}{"dataset_code": datasetCode}, "dim_index ASC, item_id ASC", 0, 0)
	if err != nil {
		return nil, exception.New(op, fmt.Sprintf("failed to load dimension items of %s", datasetCode), err, true)
	}

	itemsByDim := make(map[int][]model.DimensionItem)
	for _, it := range items {
		item := model.DimensionItem{
			ItemID:      it.ItemID,
			Label:       it.Label,
			ParentID:    it.ParentID,
			CanonicalID: it.CanonicalID,
		}
		if it.TerritoryID != nil {
			item.Territory = &model.TerritoryRef{
				ID:   *it.TerritoryID,
				Code: it.TerritoryCode,
				Path: it.TerritoryPath,
			}
		}
		itemsByDim[it.DimIndex] = append(itemsByDim[it.DimIndex], item)
	}

	ds := &model.Dataset{
		Code:              entity.Code,
		Name:              entity.Name,
		HasCountyDetail:   entity.HasCountyDetail,
		HasLocalityDetail: entity.HasLocalityDetail,
		Active:            entity.Active,
	}
	for _, dim := range dimensions {
		ds.Dimensions = append(ds.Dimensions, model.Dimension{
			Index: dim.DimIndex,
			Label: dim.Label,
			Kind:  dimensionKind(dim.Kind),
			Items: itemsByDim[dim.DimIndex],
		})
	}
	return ds, nil
}

func (c *SQLDatasetCatalog) ListActiveCodes(ctx context.Context) ([]string, error) {
	const op = "SQLDatasetCatalog.ListActiveCodes"
	conn, err := c.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var datasets []DatasetEntity
	err = conn.ExecuteQueryAdvanced(ctx, &datasets, map[string]interface{}{"active": true}, "code ASC", 0, 0)
	if err != nil {
		return nil, exception.New(op, "failed to list active datasets", err, true)
	}

	codes := make([]string, len(datasets))
	for i, ds := range datasets {
		codes[i] = ds.Code
	}
	return codes, nil
}

func dimensionKind(kind string) model.DimensionKind {
	switch model.DimensionKind(kind) {
	case model.DimensionTemporal, model.DimensionTerritorial,
		model.DimensionClassification, model.DimensionUnitOfMeasure:
		return model.DimensionKind(kind)
	default:
		return model.DimensionUnknown
	}
}
