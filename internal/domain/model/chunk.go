package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// DimensionSelection is the set of item ids a chunk requests for one
// dimension, kept in the dimension's request order.
type DimensionSelection struct {
	DimIndex int
	ItemIDs  []string
}

// ChunkTags carry the contextual attributes a chunk was planned under. They
// participate in the identity hash so the same selection planned under a
// different context yields a distinct checkpoint.
type ChunkTags struct {
	Mode       ClassificationMode
	Level      TerritoryLevel
	CountyCode string
	YearFrom   int
	YearTo     int
}

// SyncChunk is one bounded request unit produced by the planner. Chunks are
// ephemeral; only their identity hash is persisted, as checkpoints.
type SyncChunk struct {
	DatasetCode string
	// Selection covers every dataset dimension, ordered by dimension index.
	Selection []DimensionSelection
	Tags      ChunkTags
	// CellCount is the exact cartesian product of the per-dimension item
	// counts.
	CellCount int64
	// PayloadEstimate is a rough response size in bytes, for progress
	// reporting only.
	PayloadEstimate int64
	// Hash is the deterministic identity of the chunk, see ComputeChunkHash.
	Hash string
	// Label is a short human-readable description for logs and checkpoints.
	Label string
}

// ComputeChunkHash derives the chunk's stable identity. Item ids are sorted
// within each dimension so selection order never changes the hash, and the
// contextual tags are folded in so the same selection under a different mode
// or territory level stays distinct.
func ComputeChunkHash(datasetCode string, tags ChunkTags, selection []DimensionSelection) string {
	h := sha256.New()
	fmt.Fprintf(h, "ds=%s;mode=%s;level=%s;county=%s;years=%d-%d",
		datasetCode, tags.Mode, tags.Level, tags.CountyCode, tags.YearFrom, tags.YearTo)
	dims := make([]DimensionSelection, len(selection))
	copy(dims, selection)
	sort.Slice(dims, func(i, j int) bool { return dims[i].DimIndex < dims[j].DimIndex })
	for _, sel := range dims {
		ids := make([]string, len(sel.ItemIDs))
		copy(ids, sel.ItemIDs)
		sort.Strings(ids)
		fmt.Fprintf(h, ";d%d=%s", sel.DimIndex, strings.Join(ids, ","))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Seal computes the derived chunk fields (cell count, hash, label) from the
// selection and tags. avgCellBytes is the sampled per-cell payload estimate.
func (c *SyncChunk) Seal(avgCellBytes int64) {
	cells := int64(1)
	for _, sel := range c.Selection {
		cells *= int64(len(sel.ItemIDs))
	}
	c.CellCount = cells
	if avgCellBytes <= 0 {
		avgCellBytes = 32
	}
	c.PayloadEstimate = cells * avgCellBytes
	c.Hash = ComputeChunkHash(c.DatasetCode, c.Tags, c.Selection)

	sizes := make([]string, len(c.Selection))
	for i, sel := range c.Selection {
		sizes[i] = fmt.Sprintf("%d", len(sel.ItemIDs))
	}
	c.Label = fmt.Sprintf("%s years=%d-%d level=%s mode=%s dims=[%s] cells=%d",
		c.DatasetCode, c.Tags.YearFrom, c.Tags.YearTo, c.Tags.Level, c.Tags.Mode,
		strings.Join(sizes, "x"), cells)
}

// SortChunks orders chunks deterministically: largest cell count first so the
// heaviest requests are issued early, identity hash as the tiebreak.
func SortChunks(chunks []*SyncChunk) {
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].CellCount != chunks[j].CellCount {
			return chunks[i].CellCount > chunks[j].CellCount
		}
		return chunks[i].Hash < chunks[j].Hash
	})
}
