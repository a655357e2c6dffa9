// Package resolve maps parsed response rows onto canonical fact coordinates
// using the dimension items of the dataset descriptor.
package resolve

import (
	"strings"
	"sync"

	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/tempo"
)

// maxCachedDescriptors bounds the label index cache. Descriptors are loaded
// fresh per planning call, so without a bound the map would grow by one entry
// per task over a worker's lifetime.
const maxCachedDescriptors = 8

// Resolver turns response rows into Statistic coordinates. Lookup tables are
// built once per descriptor instance and evicted wholesale once the bound is
// hit; rebuilding them is cheap relative to a chunk fetch.
type Resolver struct {
	mu     sync.Mutex
	tables map[*model.Dataset][]map[string]model.DimensionItem
}

// NewResolver builds an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{tables: make(map[*model.Dataset][]map[string]model.DimensionItem)}
}

// Resolve maps one row's dimension labels to canonical ids and derives the
// natural key. An unknown label is a schema mismatch and fails the row.
func (r *Resolver) Resolve(ds *model.Dataset, row tempo.Row) (*model.Statistic, error) {
	if len(row.DimLabels) != len(ds.Dimensions) {
		return nil, exception.Newf("resolve", "row has %d dimension labels, dataset %s has %d dimensions",
			len(row.DimLabels), ds.Code, len(ds.Dimensions))
	}
	tables := r.lookupTables(ds)

	stat := &model.Statistic{
		DatasetCode: ds.Code,
		Value:       row.Value,
		Status:      row.Status,
	}

	var territory *model.DimensionItem
	for i, dim := range ds.Dimensions {
		label := normalizeLabel(row.DimLabels[i])
		item, ok := tables[i][label]
		if !ok {
			return nil, exception.Newf("resolve", "unknown item label %q in dimension %d of dataset %s",
				row.DimLabels[i], dim.Index, ds.Code)
		}

		switch dim.Kind {
		case model.DimensionTemporal:
			stat.TimePeriodID = item.CanonicalID
		case model.DimensionTerritorial:
			territory = pickTerritory(territory, item)
		case model.DimensionUnitOfMeasure:
			id := item.CanonicalID
			stat.UnitID = &id
		default:
			// classification and unknown kinds both contribute to the
			// classification coordinates
			stat.ClassificationValueIDs = append(stat.ClassificationValueIDs, item.CanonicalID)
		}
	}

	if territory != nil && territory.Territory != nil {
		id := territory.Territory.ID
		stat.TerritoryID = &id
	}
	stat.Seal()
	return stat, nil
}

// pickTerritory keeps the most specific territorial item of a row: the
// deepest non-aggregate path wins, so a county row with the "total" locality
// item resolves to the county.
func pickTerritory(current *model.DimensionItem, candidate model.DimensionItem) *model.DimensionItem {
	c := candidate
	if current == nil {
		return &c
	}
	if current.IsAggregate() && !c.IsAggregate() {
		return &c
	}
	if !current.IsAggregate() && c.IsAggregate() {
		return current
	}
	if pathDepth(c) > pathDepth(*current) {
		return &c
	}
	return current
}

func pathDepth(item model.DimensionItem) int {
	if item.Territory == nil {
		return -1
	}
	return strings.Count(item.Territory.Path, ".")
}

func (r *Resolver) lookupTables(ds *model.Dataset) []map[string]model.DimensionItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tables, ok := r.tables[ds]; ok {
		return tables
	}

	tables := make([]map[string]model.DimensionItem, len(ds.Dimensions))
	for i, dim := range ds.Dimensions {
		table := make(map[string]model.DimensionItem, len(dim.Items))
		for _, item := range dim.Items {
			table[normalizeLabel(item.Label)] = item
		}
		tables[i] = table
	}
	if len(r.tables) >= maxCachedDescriptors {
		r.tables = make(map[*model.Dataset][]map[string]model.DimensionItem)
	}
	r.tables[ds] = tables
	return tables
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}
