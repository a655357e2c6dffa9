package model

import (
	"strings"
)

// DimensionKind classifies a dataset dimension for planning purposes.
type DimensionKind string

const (
	DimensionTemporal       DimensionKind = "TEMPORAL"
	DimensionTerritorial    DimensionKind = "TERRITORIAL"
	DimensionClassification DimensionKind = "CLASSIFICATION"
	DimensionUnitOfMeasure  DimensionKind = "UNIT_OF_MEASURE"
	DimensionUnknown        DimensionKind = "UNKNOWN"
)

// TerritoryRef links a territorial dimension item to a canonical territory.
type TerritoryRef struct {
	// ID is the canonical territory id in the normalized store.
	ID int64
	// Code is the short territory code (county code such as "AB", or a SIRUTA
	// code for localities).
	Code string
	// Path is the dot-separated hierarchy path ("RO", "RO.AB", "RO.AB.1017").
	Path string
}

// IsDescendantOf reports whether the territory lies strictly under other in
// the hierarchy.
func (t TerritoryRef) IsDescendantOf(other TerritoryRef) bool {
	if other.Path == "" || t.Path == "" {
		return false
	}
	return strings.HasPrefix(t.Path, other.Path+".")
}

// DimensionItem is one selectable option of a dataset dimension. ItemID is the
// opaque external identifier submitted back to the tabular API.
type DimensionItem struct {
	ItemID string
	Label  string
	// ParentID references the parent item for hierarchical dimensions; empty
	// for top-level items.
	ParentID string
	// CanonicalID is the normalized-store id this item resolves to. Its meaning
	// depends on the dimension kind: time period id, unit id or classification
	// value id. Zero when unresolved.
	CanonicalID int64
	// Territory is set for territorial items only.
	Territory *TerritoryRef
}

// IsAggregate reports whether the item represents a pre-aggregated total. The
// upstream convention is a parentless item labeled "Total" (sometimes
// prefixed, e.g. "TOTAL" or "Total judet").
func (it DimensionItem) IsAggregate() bool {
	if it.ParentID != "" {
		return false
	}
	label := strings.ToLower(strings.TrimSpace(it.Label))
	return label == "total" || strings.HasPrefix(label, "total ")
}

// Dimension is one axis of the dataset's dimensional structure, with its
// ordered item list. Index is the position in the external request encoding.
type Dimension struct {
	Index int
	Label string
	Kind  DimensionKind
	Items []DimensionItem
}

// AggregateItem returns the dimension's total item, or the first item when no
// aggregate is declared (an empty selection is never legal).
func (d Dimension) AggregateItem() (DimensionItem, bool) {
	for _, it := range d.Items {
		if it.IsAggregate() {
			return it, true
		}
	}
	if len(d.Items) > 0 {
		return d.Items[0], false
	}
	return DimensionItem{}, false
}

// ItemByID returns the item with the given external id.
func (d Dimension) ItemByID(itemID string) (DimensionItem, bool) {
	for _, it := range d.Items {
		if it.ItemID == itemID {
			return it, true
		}
	}
	return DimensionItem{}, false
}

// Dataset is the immutable descriptor of an upstream dataset, loaded fresh for
// every planning call.
type Dataset struct {
	Code string
	Name string
	// Dimensions are ordered as the external API expects them encoded.
	Dimensions []Dimension
	// HasLocalityDetail marks datasets carrying locality (UAT) level data.
	HasLocalityDetail bool
	// HasCountyDetail marks datasets carrying county level data.
	HasCountyDetail bool
	// Active datasets are picked up by the scheduled bulk refresh.
	Active bool
}

// DimensionOfKind returns the first dimension of the given kind.
func (ds *Dataset) DimensionOfKind(kind DimensionKind) (Dimension, bool) {
	for _, d := range ds.Dimensions {
		if d.Kind == kind {
			return d, true
		}
	}
	return Dimension{}, false
}

// TerritorialDimensions returns all territorial dimensions in index order.
// Locality datasets carry two (county and locality); county datasets one.
func (ds *Dataset) TerritorialDimensions() []Dimension {
	var dims []Dimension
	for _, d := range ds.Dimensions {
		if d.Kind == DimensionTerritorial {
			dims = append(dims, d)
		}
	}
	return dims
}
