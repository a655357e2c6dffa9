package planner

import (
	"fmt"

	"github.com/insdata/temposync/internal/support/exception"
)

// axisKind orders axes by split priority. Kinds later in the enumeration are
// split first; temporal blocks are preserved intact the longest. The paired
// territorial axis never splits below one county group.
type axisKind int

const (
	axisTemporal axisKind = iota
	axisPairedTerritorial
	axisTerritorial
	axisClassification
	axisUnit
	axisOther
)

func (k axisKind) String() string {
	switch k {
	case axisTemporal:
		return "temporal"
	case axisPairedTerritorial:
		return "paired-territorial"
	case axisTerritorial:
		return "territorial"
	case axisClassification:
		return "classification"
	case axisUnit:
		return "unit"
	default:
		return "other"
	}
}

// axisGroup is one candidate selection of an axis: the item ids per bound
// dimension index. Ordinary axes bind one dimension; the paired territorial
// axis binds the county and locality dimensions together.
type axisGroup struct {
	items map[int][]string
}

func (g axisGroup) optionCount() int64 {
	count := int64(1)
	for _, ids := range g.items {
		count *= int64(len(ids))
	}
	return count
}

// axis is a planning-time grouping of dimensions that are selected and split
// together.
type axis struct {
	kind axisKind
	dims []int
	// groups holds the candidate selections. Ordinary axes start with a
	// single group; the paired territorial axis carries one group per county.
	groups []axisGroup
}

// candidate is one planning state on the work stack: a chosen group per axis.
type candidate []axisGroup

func (c candidate) cellCount() int64 {
	cells := int64(1)
	for _, g := range c {
		cells *= g.optionCount()
	}
	return cells
}

// expandCandidates enumerates the initial work stack: one candidate per
// combination of axis groups. Only the paired territorial axis contributes
// more than one group, so the expansion stays linear in practice.
func expandCandidates(axes []axis) []candidate {
	stack := []candidate{{}}
	for _, ax := range axes {
		next := make([]candidate, 0, len(stack)*len(ax.groups))
		for _, partial := range stack {
			for _, g := range ax.groups {
				cand := make(candidate, len(partial), len(partial)+1)
				copy(cand, partial)
				next = append(next, append(cand, g))
			}
		}
		stack = next
	}
	return stack
}

// splitCandidates runs the capacity-bounded splitting loop: every candidate
// over the cell limit has one axis split into equal-sized groups and its
// offspring requeued, until all candidates fit. An explicit work stack bounds
// memory on pathological inputs.
func splitCandidates(axes []axis, initial []candidate, cellLimit int64) ([]candidate, error) {
	var done []candidate
	stack := initial

	for len(stack) > 0 {
		cand := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cells := cand.cellCount()
		if cells <= cellLimit {
			done = append(done, cand)
			continue
		}

		axisIdx, maxFit := findSplittableAxis(axes, cand, cellLimit)
		if axisIdx < 0 {
			return nil, exception.Newf("planner", "cell count %d exceeds limit %d and no axis is splittable; a single non-splittable dimension alone exceeds capacity", cells, cellLimit)
		}

		dim := axes[axisIdx].dims[0]
		ids := cand[axisIdx].items[dim]
		for _, part := range partition(ids, maxFit) {
			child := make(candidate, len(cand))
			copy(child, cand)
			child[axisIdx] = axisGroup{items: map[int][]string{dim: part}}
			stack = append(stack, child)
		}
	}
	return done, nil
}

// findSplittableAxis walks the axes in decreasing split priority and returns
// the first one whose option list can be cut so the remaining product fits,
// together with the maximum options per resulting group. The paired
// territorial axis is immovable.
func findSplittableAxis(axes []axis, cand candidate, cellLimit int64) (int, int) {
	best := -1
	bestKind := axisKind(-1)
	bestFit := 0

	for i, ax := range axes {
		if ax.kind == axisPairedTerritorial || len(ax.dims) != 1 {
			continue
		}
		n := len(cand[i].items[ax.dims[0]])
		if n <= 1 {
			continue
		}
		others := cand.cellCount() / int64(n)
		maxFit := int(cellLimit / others)
		if maxFit < 1 {
			// Even a singleton group stays over the limit here; reducing this
			// axis is still the only way forward, other axes get their turn on
			// the requeued candidates.
			maxFit = 1
		}
		if maxFit >= n {
			continue
		}
		if best < 0 || ax.kind > bestKind {
			best, bestKind, bestFit = i, ax.kind, maxFit
		}
	}
	return best, bestFit
}

// partition cuts ids into ceil(len/maxFit) groups whose sizes differ by at
// most one, e.g. 42 items with maxFit 20 yield [14 14 14].
func partition(ids []string, maxFit int) [][]string {
	n := len(ids)
	numGroups := (n + maxFit - 1) / maxFit
	base := n / numGroups
	rem := n % numGroups

	parts := make([][]string, 0, numGroups)
	offset := 0
	for i := 0; i < numGroups; i++ {
		size := base
		if i < rem {
			size++
		}
		parts = append(parts, ids[offset:offset+size])
		offset += size
	}
	if offset != n {
		panic(fmt.Sprintf("partition lost items: %d != %d", offset, n))
	}
	return parts
}
