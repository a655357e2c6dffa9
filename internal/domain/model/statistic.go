package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ValueStatus qualifies a fact cell whose numeric value may be absent.
type ValueStatus string

const (
	// ValuePresent marks a regular numeric observation.
	ValuePresent ValueStatus = "PRESENT"
	// ValueUnavailable marks a cell the source declares as not available.
	ValueUnavailable ValueStatus = "UNAVAILABLE"
	// ValueConfidential marks a cell suppressed for confidentiality.
	ValueConfidential ValueStatus = "CONFIDENTIAL"
	// ValueNone marks an empty cell with no recorded observation.
	ValueNone ValueStatus = "NONE"
)

// Statistic is one resolved fact row destined for the partitioned fact table.
// Coordinate fields reference the normalized store; TerritoryID and UnitID are
// nil for datasets lacking those dimensions.
type Statistic struct {
	DatasetCode  string
	TerritoryID  *int64
	TimePeriodID int64
	UnitID       *int64
	// ClassificationValueIDs reference the classification side relation. Order
	// is irrelevant for identity.
	ClassificationValueIDs []int64
	Value                  *float64
	Status                 ValueStatus
	// NaturalKey identifies the fact's coordinates, see ComputeNaturalKey.
	NaturalKey string
	// Version starts at 1 and increments on every re-observation of the same
	// coordinates.
	Version   int
	UpdatedAt time.Time
}

// naturalKeySentinel stands in for absent optional coordinates so that a nil
// territory can never collide with a real id.
const naturalKeySentinel = "-"

// ComputeNaturalKey hashes the fact coordinates: dataset, territory (or a
// sentinel), time period, unit (or a sentinel) and the sorted classification
// value ids. Classification order never changes the key.
func ComputeNaturalKey(datasetCode string, territoryID *int64, timePeriodID int64, unitID *int64, classValueIDs []int64) string {
	terr := naturalKeySentinel
	if territoryID != nil {
		terr = fmt.Sprintf("%d", *territoryID)
	}
	unit := naturalKeySentinel
	if unitID != nil {
		unit = fmt.Sprintf("%d", *unitID)
	}
	ids := make([]int64, len(classValueIDs))
	copy(ids, classValueIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%s|%s",
		datasetCode, terr, timePeriodID, unit, strings.Join(parts, ",")))
	return hex.EncodeToString(h[:])
}

// Seal fills the derived natural key from the coordinate fields.
func (s *Statistic) Seal() {
	s.NaturalKey = ComputeNaturalKey(s.DatasetCode, s.TerritoryID, s.TimePeriodID, s.UnitID, s.ClassificationValueIDs)
}
