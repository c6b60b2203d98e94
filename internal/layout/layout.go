// Package layout implements the per-storage-level layout representation
// of spec.md C5: a concordant layout mechanically derived from a mapping,
// where spatial loops become intraline factors and temporal loops become
// interline factors.
package layout

import (
	"fmt"

	"github.com/maeri-project/squareloop/internal/arch"
	"github.com/maeri-project/squareloop/internal/mapping"
	"github.com/maeri-project/squareloop/internal/shape"
	apperrors "github.com/maeri-project/squareloop/pkg/errors"
)

// NestKind distinguishes the three coexisting per-(level,data-space) nests.
type NestKind int

const (
	Interline NestKind = iota
	Intraline
	AuthblockLines
)

// Nest is a per-(level, data-space, kind) bag mapping rank name to factor,
// over a fixed ordered list of ranks.
type Nest struct {
	Ranks   []string
	Factors map[string]uint32
}

// NewNest builds a nest over ranks with every factor defaulted to 1.
func NewNest(ranks []string) Nest {
	n := Nest{Ranks: append([]string(nil), ranks...), Factors: make(map[string]uint32, len(ranks))}
	for _, r := range ranks {
		n.Factors[r] = 1
	}
	return n
}

// Product returns the product of every factor in the nest — the
// intraline product that must not exceed a level's block size (spec.md
// section 8 invariant 5).
func (n Nest) Product() uint64 {
	p := uint64(1)
	for _, r := range n.Ranks {
		p *= uint64(n.Factors[r])
	}
	return p
}

// DataSpaceNests holds the interline/intraline/authblock_lines triple for
// one data space at one storage level.
type DataSpaceNests struct {
	Interline      Nest
	Intraline      Nest
	AuthblockLines Nest // empty unless this is a main-memory level
}

// RankKey identifies a rank within its owning data space, since rank names
// are only unique per data space.
type RankKey struct {
	DataSpace string
	Rank      string
}

// Layout aggregates, for one storage level, the per-data-space nests plus
// the static rank/dimension metadata and behavioral flags of spec.md
// section 3.
type Layout struct {
	Level          int
	DataSpaceNames []string
	Nests          map[string]DataSpaceNests // keyed by data space name

	RankToFactorizedDimensionID map[RankKey][]int
	RankToCoefficientValue      map[RankKey][]int
	RankToZeroPadding           map[RankKey]int
	DimOrder                    []string

	NumReadPorts  int
	NumWritePorts int

	AssumeZeroPadding bool
	AssumeRowBuffer   bool
	AssumeReuse       bool
}

// ValidateAssumptions checks the combination of the three behavioral flags
// (spec.md section 9, Open Question 4): row-buffer reuse assumes dense,
// non-padded addressing, so assume_row_buffer and assume_zero_padding may
// not both be set.
func (l Layout) ValidateAssumptions() error {
	if l.AssumeRowBuffer && l.AssumeZeroPadding {
		return apperrors.New(apperrors.CodeConfig,
			fmt.Sprintf("level %d: assume_row_buffer and assume_zero_padding cannot both be set", l.Level), nil)
	}
	return nil
}

// SpaceState is the per-mapping state shared by layout construction and
// the legal layout space (spec.md section 3, "LayoutSpace state").
type SpaceState struct {
	NumLevels int

	StorageLevelTotalCapacity []int
	StorageLevelLineCapacity  []int

	// Indexed [level][dimID]; level 0 is innermost.
	CumulativelyIntralineDimVal [][]int
	CumulativelyProductDimVal   [][]int
}

// CumulativelyInterlineDimVal derives the cumulative interline product at
// (level, dim) as product/intraline, satisfying spec.md section 8
// invariant 2.
func (s *SpaceState) CumulativelyInterlineDimVal(level, dimID int) int {
	intra := s.CumulativelyIntralineDimVal[level][dimID]
	if intra == 0 {
		return 0
	}
	return s.CumulativelyProductDimVal[level][dimID] / intra
}

// CreateConcordantLayout walks mapping's loop nest from innermost to
// outermost, classifies each loop as spatial (-> intraline) or temporal
// (-> interline), and derives one Layout per storage level plus the
// SpaceState cumulative tables (spec.md section 4.3).
func CreateConcordantLayout(m mapping.Mapping, shp *shape.Shape, a *arch.Architecture) (map[int]*Layout, *SpaceState, error) {
	numLevels := a.NumStorageLevels()
	if len(m.Nest.StorageTilingBoundaries)+1 != numLevels {
		return nil, nil, apperrors.New(apperrors.CodeShapeUnderflow,
			fmt.Sprintf("mapping has %d storage levels, architecture declares %d", len(m.Nest.StorageTilingBoundaries)+1, numLevels), nil)
	}

	numDims := shp.NumDims()
	initial := make([]int, numDims)
	for i := range initial {
		initial[i] = 1
	}

	storageLevelIntraline := make([][]int, numLevels)
	storageLevelInterline := make([][]int, numLevels)
	for lvl := 0; lvl < numLevels; lvl++ {
		storageLevelIntraline[lvl] = append([]int(nil), initial...)
		storageLevelInterline[lvl] = append([]int(nil), initial...)
	}

	// Classify each level's own loops as spatial (-> intraline) or
	// temporal (-> interline); level 0 is innermost.
	for lvl := 0; lvl < numLevels; lvl++ {
		for _, l := range m.Nest.LoopsAtLevel(lvl) {
			if l.SpaceTime.IsSpatial() {
				storageLevelIntraline[lvl][l.DimID] = l.End
			} else {
				storageLevelInterline[lvl][l.DimID] = l.End
			}
		}
	}

	cumIntra := make([][]int, numLevels)
	cumProduct := make([][]int, numLevels)
	for lvl := 0; lvl < numLevels; lvl++ {
		cumIntra[lvl] = make([]int, numDims)
		cumProduct[lvl] = make([]int, numDims)
		for d := 0; d < numDims; d++ {
			overall := storageLevelIntraline[lvl][d] * storageLevelInterline[lvl][d]
			if lvl == 0 {
				cumIntra[lvl][d] = storageLevelIntraline[lvl][d]
				cumProduct[lvl][d] = overall
			} else {
				cumIntra[lvl][d] = storageLevelIntraline[lvl][d] * cumIntra[lvl-1][d]
				cumProduct[lvl][d] = overall * cumProduct[lvl-1][d]
			}
		}
	}

	state := &SpaceState{
		NumLevels:                   numLevels,
		StorageLevelTotalCapacity:   make([]int, numLevels),
		StorageLevelLineCapacity:    make([]int, numLevels),
		CumulativelyIntralineDimVal: cumIntra,
		CumulativelyProductDimVal:   cumProduct,
	}
	for lvl := 0; lvl < numLevels; lvl++ {
		state.StorageLevelTotalCapacity[lvl] = a.Levels[lvl].Capacity
		state.StorageLevelLineCapacity[lvl] = a.Levels[lvl].LineCapacity()
	}

	dimOrder := make([]string, numDims)
	for _, d := range shp.Dimensions {
		dimOrder[d.ID] = d.Name
	}

	layouts := make(map[int]*Layout, numLevels)
	for lvl := 0; lvl < numLevels; lvl++ {
		lay := &Layout{
			Level:                       lvl,
			DataSpaceNames:              make([]string, 0, shp.NumDataSpaces()),
			Nests:                       make(map[string]DataSpaceNests, shp.NumDataSpaces()),
			RankToFactorizedDimensionID: make(map[RankKey][]int),
			RankToCoefficientValue:      make(map[RankKey][]int),
			RankToZeroPadding:           make(map[RankKey]int),
			DimOrder:                    dimOrder,
			NumReadPorts:                a.Levels[lvl].NumReadPorts,
			NumWritePorts:               a.Levels[lvl].NumWritePorts,
		}
		for _, ds := range shp.DataSpaces {
			lay.DataSpaceNames = append(lay.DataSpaceNames, ds.Name)
			ranks := make([]string, len(ds.Ranks))
			for i, r := range ds.Ranks {
				ranks[i] = r.Name
				key := RankKey{DataSpace: ds.Name, Rank: r.Name}
				lay.RankToFactorizedDimensionID[key] = r.DimIDs
				lay.RankToCoefficientValue[key] = r.Coefficients
			}
			var authRanks []string
			if a.IsMainMemory(lvl) {
				authRanks = ranks
			}
			lay.Nests[ds.Name] = DataSpaceNests{
				Interline:      NewNest(ranks),
				Intraline:      NewNest(ranks),
				AuthblockLines: NewNest(authRanks),
			}
		}
		layouts[lvl] = lay
	}

	// Step 3 (spec.md section 4.3): assign collapsed factors per rank.
	for lvl := 0; lvl < numLevels; lvl++ {
		lay := layouts[lvl]
		for _, ds := range shp.DataSpaces {
			nests := lay.Nests[ds.Name]
			for _, r := range ds.Ranks {
				intraVal := rankContribution(r, cumIntra[lvl])
				nests.Intraline.Factors[r.Name] = uint32(intraVal)

				interDimVals := make([]int, len(r.DimIDs))
				for i, dimID := range r.DimIDs {
					intra := cumIntra[lvl][dimID]
					interDimVals[i] = ceilDiv(cumProduct[lvl][dimID], intra)
				}
				interVal := rankContributionFromValues(r, interDimVals)
				nests.Interline.Factors[r.Name] = uint32(interVal)
			}
			lay.Nests[ds.Name] = nests
		}
	}

	return layouts, state, nil
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// rankContribution implements spec.md section 4.3's per-rank factor sum
// directly against cumulative dim values (used for the intraline side).
func rankContribution(r shape.Rank, dimVals []int) int {
	values := make([]int, len(r.DimIDs))
	for i, dimID := range r.DimIDs {
		values[i] = dimVals[dimID]
	}
	return rankContributionFromValues(r, values)
}

// rankContributionFromValues computes the half-open addressing sum for a
// rank given its per-dimension values directly (used for the interline
// side, where values are already the post-ceiling ratios).
//
// Grounded on original_source/src/layoutspaces/legal.cpp: for a
// single-dimension rank the contribution is simply its dimension value.
// For a multi-dimension rank, every term except the last is
// dimValue*coefficient (or just dimValue when dimValue==1); the last term
// is dimValue*coefficient-1 (or dimValue-1 when dimValue==1), matching
// half-open rank addressing.
func rankContributionFromValues(r shape.Rank, values []int) int {
	if len(r.DimIDs) <= 1 {
		if len(values) == 0 {
			return 0
		}
		return values[0]
	}
	total := 0
	last := len(values) - 1
	for idx, v := range values {
		coeff := r.Coefficients[idx]
		if idx == last {
			if v == 1 {
				total += v - 1
			} else {
				total += v*coeff - 1
			}
			continue
		}
		if v == 1 {
			total += v
		} else {
			total += v * coeff
		}
	}
	return total
}

// SequentialFactorized builds a deterministic concordant-style layout that
// never fails capacity/port checks, used as the final layout search's
// last-resort fallback (spec.md section 4.2, "final layout search").
func SequentialFactorized(m mapping.Mapping, shp *shape.Shape, a *arch.Architecture) (map[int]*Layout, *SpaceState, error) {
	return CreateConcordantLayout(m, shp, a)
}
