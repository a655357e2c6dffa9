// Package planner decomposes a dataset sync request into bounded chunks whose
// estimated cell counts stay within the external API's per-request capacity.
package planner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/support/exception"
	"github.com/insdata/temposync/internal/support/logger"
)

// Options carry the per-task planning inputs.
type Options struct {
	YearFrom   int
	YearTo     int
	Mode       model.ClassificationMode
	CountyCode string
	// Level pins the territorial granularity; empty derives it from the
	// dataset descriptor.
	Level model.TerritoryLevel
}

// Planner builds sync chunks from a dataset descriptor. It is stateless and
// safe for concurrent use.
type Planner struct {
	cellLimit   int64
	strictYears bool
}

// New builds a Planner from the sync configuration.
func New(cfg config.SyncConfig) *Planner {
	return &Planner{
		cellLimit:   int64(cfg.CellLimit),
		strictYears: cfg.StrictYears,
	}
}

// Plan produces the deterministic, capacity-bounded chunk list for a dataset.
// The same descriptor and options always yield the same chunks in the same
// order: largest cell count first, identity hash as the tiebreak.
func (p *Planner) Plan(ds *model.Dataset, opts Options) ([]*model.SyncChunk, error) {
	if len(ds.Dimensions) == 0 {
		return nil, exception.Newf("planner", "dataset %s has no dimensions", ds.Code)
	}
	if opts.Mode == "" {
		opts.Mode = model.ClassificationTotals
	}

	shared, err := p.buildSharedAxes(ds, opts)
	if err != nil {
		return nil, err
	}
	passes, err := p.buildTerritorialPasses(ds, opts)
	if err != nil {
		return nil, err
	}

	avgCellBytes := sampleCellBytes(ds)

	var chunks []*model.SyncChunk
	for _, pass := range passes {
		axes := append(append([]axis{}, shared...), pass.axes...)

		candidates, err := splitCandidates(axes, expandCandidates(axes), p.cellLimit)
		if err != nil {
			return nil, err
		}

		tags := model.ChunkTags{
			Mode:       opts.Mode,
			Level:      pass.level,
			CountyCode: opts.CountyCode,
			YearFrom:   opts.YearFrom,
			YearTo:     opts.YearTo,
		}
		for _, cand := range candidates {
			chunks = append(chunks, materialize(ds, axes, cand, tags, avgCellBytes))
		}
	}

	model.SortChunks(chunks)
	logger.Debugf("Planned %d chunk(s) for dataset %s (limit %d)", len(chunks), ds.Code, p.cellLimit)
	return chunks, nil
}

// territorialPass is one territorial rendering of the plan: the aggregate pass
// and the per-locality detail pass of a locality dataset, or the single pass
// of simpler datasets.
type territorialPass struct {
	axes  []axis
	level model.TerritoryLevel
}

// buildSharedAxes constructs the axes common to every territorial pass:
// temporal, classification, unit and unknown-kind dimensions.
func (p *Planner) buildSharedAxes(ds *model.Dataset, opts Options) ([]axis, error) {
	var axes []axis
	for _, dim := range ds.Dimensions {
		switch dim.Kind {
		case model.DimensionTerritorial:
			continue
		case model.DimensionTemporal:
			ids, err := p.temporalSelection(ds, dim, opts)
			if err != nil {
				return nil, err
			}
			axes = append(axes, singleAxis(axisTemporal, dim.Index, ids))
		case model.DimensionClassification:
			axes = append(axes, singleAxis(axisClassification, dim.Index, classificationSelection(dim, opts.Mode)))
		case model.DimensionUnitOfMeasure:
			axes = append(axes, singleAxis(axisUnit, dim.Index, allItemIDs(dim)))
		default:
			axes = append(axes, singleAxis(axisOther, dim.Index, allItemIDs(dim)))
		}
	}
	return axes, nil
}

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// ParseYear extracts the first plausible four-digit year from an item label
// ("Anul 2020" -> 2020). Returns false when no year is present.
func ParseYear(label string) (int, bool) {
	match := yearPattern.FindString(label)
	if match == "" {
		return 0, false
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return year, true
}

func (p *Planner) temporalSelection(ds *model.Dataset, dim model.Dimension, opts Options) ([]string, error) {
	if opts.YearFrom == 0 && opts.YearTo == 0 {
		return allItemIDs(dim), nil
	}

	var ids []string
	for _, it := range dim.Items {
		year, ok := ParseYear(it.Label)
		if !ok {
			continue
		}
		if year >= opts.YearFrom && year <= opts.YearTo {
			ids = append(ids, it.ItemID)
		}
	}
	if len(ids) > 0 {
		return ids, nil
	}

	if p.strictYears {
		return nil, exception.Newf("planner", "dataset %s has no temporal items in range %d-%d", ds.Code, opts.YearFrom, opts.YearTo)
	}
	if len(dim.Items) == 0 {
		return nil, exception.Newf("planner", "dataset %s temporal dimension %d has no items", ds.Code, dim.Index)
	}
	logger.Warnf("Dataset %s has no temporal items in range %d-%d; falling back to first item %q",
		ds.Code, opts.YearFrom, opts.YearTo, dim.Items[0].Label)
	return []string{dim.Items[0].ItemID}, nil
}

// classificationSelection keeps only pre-aggregated totals in totals mode,
// falling back to top-level items when the dimension declares no aggregate.
func classificationSelection(dim model.Dimension, mode model.ClassificationMode) []string {
	if mode == model.ClassificationAll {
		return allItemIDs(dim)
	}

	var ids []string
	for _, it := range dim.Items {
		if it.IsAggregate() {
			ids = append(ids, it.ItemID)
		}
	}
	if len(ids) == 0 {
		for _, it := range dim.Items {
			if it.ParentID == "" {
				ids = append(ids, it.ItemID)
			}
		}
	}
	if len(ids) == 0 {
		return allItemIDs(dim)
	}
	return ids
}

func (p *Planner) buildTerritorialPasses(ds *model.Dataset, opts Options) ([]territorialPass, error) {
	tdims := ds.TerritorialDimensions()
	if len(tdims) == 0 {
		return []territorialPass{{level: model.TerritoryNational}}, nil
	}

	if opts.Level == model.TerritoryNational {
		return []territorialPass{aggregateOnlyPass(tdims)}, nil
	}

	if ds.HasLocalityDetail && len(tdims) >= 2 {
		return p.localityPasses(ds, tdims, opts)
	}
	if ds.HasCountyDetail {
		pass, err := p.countyPass(ds, tdims, opts)
		if err != nil {
			return nil, err
		}
		return []territorialPass{pass}, nil
	}
	return []territorialPass{aggregateOnlyPass(tdims)}, nil
}

// aggregateOnlyPass selects the total item of every territorial dimension.
func aggregateOnlyPass(tdims []model.Dimension) territorialPass {
	pass := territorialPass{level: model.TerritoryNational}
	for _, dim := range tdims {
		total, _ := dim.AggregateItem()
		pass.axes = append(pass.axes, singleAxis(axisTerritorial, dim.Index, []string{total.ItemID}))
	}
	return pass
}

// countyPass plans the single territorial axis of a county-level dataset.
func (p *Planner) countyPass(ds *model.Dataset, tdims []model.Dimension, opts Options) (territorialPass, error) {
	dim := tdims[0]
	pass := territorialPass{level: model.TerritoryCountyAggregate}

	var ids []string
	switch {
	case opts.CountyCode != "":
		county, ok := findCounty(dim, opts.CountyCode)
		if !ok {
			return pass, exception.Newf("planner", "unknown county %q for dataset %s", opts.CountyCode, ds.Code)
		}
		ids = []string{county.ItemID}
	case opts.Level == model.TerritoryCountyAggregate:
		ids = allItemIDs(dim)
	default:
		for _, it := range dim.Items {
			if !it.IsAggregate() {
				ids = append(ids, it.ItemID)
			}
		}
		if len(ids) == 0 {
			ids = allItemIDs(dim)
		}
	}
	pass.axes = append(pass.axes, singleAxis(axisTerritorial, dim.Index, ids))

	for _, dim := range tdims[1:] {
		total, _ := dim.AggregateItem()
		pass.axes = append(pass.axes, singleAxis(axisTerritorial, dim.Index, []string{total.ItemID}))
	}
	return pass, nil
}

// localityPasses plans a locality-level dataset: a county-aggregate pass (the
// total locality item crossed with the counties) followed by the per-locality
// detail pass using the paired axis. Crossing arbitrary counties with
// arbitrary localities is incorrect, most combinations are not valid upstream
// data points.
func (p *Planner) localityPasses(ds *model.Dataset, tdims []model.Dimension, opts Options) ([]territorialPass, error) {
	countyDim, localityDim := splitTerritorialDims(tdims)

	var counties []model.DimensionItem
	if opts.CountyCode != "" {
		county, ok := findCounty(countyDim, opts.CountyCode)
		if !ok {
			return nil, exception.Newf("planner", "unknown county %q for dataset %s", opts.CountyCode, ds.Code)
		}
		counties = []model.DimensionItem{county}
	} else {
		for _, it := range countyDim.Items {
			if !it.IsAggregate() {
				counties = append(counties, it)
			}
		}
	}

	var passes []territorialPass

	if opts.Level == model.TerritoryDefault || opts.Level == model.TerritoryCountyAggregate {
		pass := territorialPass{level: model.TerritoryCountyAggregate}
		localityTotal, _ := localityDim.AggregateItem()
		pass.axes = append(pass.axes, singleAxis(axisTerritorial, localityDim.Index, []string{localityTotal.ItemID}))

		countyIDs := allItemIDs(countyDim)
		if opts.CountyCode != "" {
			countyIDs = []string{counties[0].ItemID}
		}
		pass.axes = append(pass.axes, singleAxis(axisTerritorial, countyDim.Index, countyIDs))
		passes = append(passes, pass)
	}

	if opts.Level == model.TerritoryDefault || opts.Level == model.TerritoryLocalityDetail {
		paired := axis{
			kind: axisPairedTerritorial,
			dims: []int{countyDim.Index, localityDim.Index},
		}
		for _, county := range counties {
			if county.Territory == nil {
				continue
			}
			var localityIDs []string
			for _, loc := range localityDim.Items {
				if loc.Territory != nil && loc.Territory.IsDescendantOf(*county.Territory) {
					localityIDs = append(localityIDs, loc.ItemID)
				}
			}
			if len(localityIDs) == 0 {
				continue
			}
			paired.groups = append(paired.groups, axisGroup{items: map[int][]string{
				countyDim.Index:   {county.ItemID},
				localityDim.Index: localityIDs,
			}})
		}
		if len(paired.groups) > 0 {
			passes = append(passes, territorialPass{
				axes:  []axis{paired},
				level: model.TerritoryLocalityDetail,
			})
		}
	}

	if len(passes) == 0 {
		return nil, exception.Newf("planner", "dataset %s yields no territorial selection for level %q", ds.Code, opts.Level)
	}
	return passes, nil
}

// splitTerritorialDims tells the county dimension from the locality dimension
// by hierarchy path depth: county paths sit directly under the root.
func splitTerritorialDims(tdims []model.Dimension) (county, locality model.Dimension) {
	county, locality = tdims[0], tdims[1]
	if territoryDepth(county) > territoryDepth(locality) {
		county, locality = locality, county
	}
	return county, locality
}

func territoryDepth(dim model.Dimension) int {
	max := 0
	for _, it := range dim.Items {
		if it.IsAggregate() || it.Territory == nil {
			continue
		}
		if d := strings.Count(it.Territory.Path, "."); d > max {
			max = d
		}
	}
	return max
}

func findCounty(dim model.Dimension, countyCode string) (model.DimensionItem, bool) {
	for _, it := range dim.Items {
		if it.Territory != nil && strings.EqualFold(it.Territory.Code, countyCode) {
			return it, true
		}
	}
	return model.DimensionItem{}, false
}

func singleAxis(kind axisKind, dimIndex int, ids []string) axis {
	return axis{
		kind:   kind,
		dims:   []int{dimIndex},
		groups: []axisGroup{{items: map[int][]string{dimIndex: ids}}},
	}
}

func allItemIDs(dim model.Dimension) []string {
	ids := make([]string, len(dim.Items))
	for i, it := range dim.Items {
		ids[i] = it.ItemID
	}
	return ids
}

// materialize turns one bounded candidate into a chunk with the selection
// ordered by dimension index.
func materialize(ds *model.Dataset, axes []axis, cand candidate, tags model.ChunkTags, avgCellBytes int64) *model.SyncChunk {
	byDim := make(map[int][]string)
	for i, ax := range axes {
		for _, dim := range ax.dims {
			byDim[dim] = cand[i].items[dim]
		}
	}

	selection := make([]model.DimensionSelection, 0, len(ds.Dimensions))
	for _, dim := range ds.Dimensions {
		ids, ok := byDim[dim.Index]
		if !ok || len(ids) == 0 {
			// Dimensions the passes left unbound fall back to the total item
			// so every dimension is always present in the request.
			total, _ := dim.AggregateItem()
			ids = []string{total.ItemID}
		}
		selection = append(selection, model.DimensionSelection{DimIndex: dim.Index, ItemIDs: ids})
	}

	chunk := &model.SyncChunk{
		DatasetCode: ds.Code,
		Selection:   selection,
		Tags:        tags,
	}
	chunk.Seal(avgCellBytes)
	return chunk
}

// sampleCellBytes estimates the per-cell payload from the average item label
// length, used only for progress reporting.
func sampleCellBytes(ds *model.Dataset) int64 {
	var total, count int64
	for _, dim := range ds.Dimensions {
		for _, it := range dim.Items {
			total += int64(len(it.Label))
			count++
			if count >= 256 {
				break
			}
		}
	}
	if count == 0 {
		return 32
	}
	// label bytes per dimension column plus the value column
	return total/count*int64(len(ds.Dimensions)) + 16
}
