// Package mapping holds the loop-nest representation of spec.md C3: a
// totally ordered sequence of loop descriptors partitioned into storage
// tiling blocks, plus a per-level datatype-bypass mask.
package mapping

// SpaceTime tags a loop as contributing temporal or spatial traffic.
type SpaceTime int

const (
	Temporal SpaceTime = iota
	SpatialX
	SpatialY
)

func (s SpaceTime) String() string {
	switch s {
	case Temporal:
		return "temporal"
	case SpatialX:
		return "spatial-X"
	case SpatialY:
		return "spatial-Y"
	default:
		return "unknown"
	}
}

// IsSpatial reports whether this loop contributes to intraline (one-cycle)
// traffic rather than interline (temporal) traffic.
func (s SpaceTime) IsSpatial() bool {
	return s == SpatialX || s == SpatialY
}

// LoopDescriptor is one loop of the nest: a dimension, its extent, and
// whether it is temporal or spatial. ResidualEnd models imperfect
// factorization: when ResidualEnd < End, the last iteration of the loop
// one level up runs only ResidualEnd iterations instead of End.
type LoopDescriptor struct {
	DimID       int
	Start       int
	End         int
	Stride      int
	SpaceTime   SpaceTime
	ResidualEnd int
}

// Extent is the number of iterations this loop contributes under perfect
// factorization (ignoring the residual).
func (l LoopDescriptor) Extent() int {
	if l.Stride <= 0 {
		return 0
	}
	return (l.End - l.Start + l.Stride - 1) / l.Stride
}

// IsImperfect reports whether this loop has a residual tail shorter than
// its full extent.
func (l LoopDescriptor) IsImperfect() bool {
	return l.ResidualEnd > 0 && l.ResidualEnd < l.End
}

// OuterSize is the number of outer-loop repetitions over which the
// residual/full split of this loop is amortized, i.e. ceil(End/Stride)
// viewed from one level up. Used by the bank-conflict engine's
// imperfect-factorization weighting (spec.md section 4.4, Phase 0).
func (l LoopDescriptor) OuterSize() int {
	return l.Extent()
}

// ExtentFor is Extent under the full assignment, or the residual extent
// ceil((ResidualEnd-Start)/Stride) when useResidual selects the "residual"
// side of a Phase-0 imperfect-factorization assignment for this loop.
func (l LoopDescriptor) ExtentFor(useResidual bool) int {
	if !useResidual || !l.IsImperfect() {
		return l.Extent()
	}
	if l.Stride <= 0 {
		return 0
	}
	return (l.ResidualEnd - l.Start + l.Stride - 1) / l.Stride
}

// LoopNest is the full, totally ordered loop sequence plus the ascending
// indices partitioning it into one block per storage level, outermost
// first.
type LoopNest struct {
	Loops                   []LoopDescriptor
	StorageTilingBoundaries []int
}

// NumLevels returns the number of storage-tiling blocks this nest is
// partitioned into.
func (n LoopNest) NumLevels() int {
	return len(n.StorageTilingBoundaries) + 1
}

// LoopsAtLevel returns the slice of loops belonging to storage level
// `level` (0 = innermost, matching arch.Architecture's level numbering),
// using StorageTilingBoundaries as the cut points. Loops itself is ordered
// outermost-first (spec.md section 3), so storage level `level` occupies
// array segment `numLevels-1-level` counting from the front.
func (n LoopNest) LoopsAtLevel(level int) []LoopDescriptor {
	numLevels := n.NumLevels()
	seg := numLevels - 1 - level
	lo := 0
	if seg > 0 {
		lo = n.StorageTilingBoundaries[seg-1]
	}
	hi := len(n.Loops)
	if seg < len(n.StorageTilingBoundaries) {
		hi = n.StorageTilingBoundaries[seg]
	}
	if lo > len(n.Loops) {
		lo = len(n.Loops)
	}
	if hi > len(n.Loops) {
		hi = len(n.Loops)
	}
	return n.Loops[lo:hi]
}

// BypassMask is a per-data-space bitset over storage levels: bit i set
// means "keep at level i".
type BypassMask uint64

// Keep reports whether data is kept (not bypassed) at the given level.
func (m BypassMask) Keep(level int) bool {
	return m&(1<<uint(level)) != 0
}

// WithKeep returns a mask with level's bit set to keep.
func (m BypassMask) WithKeep(level int) BypassMask {
	return m | (1 << uint(level))
}

// Mapping is a loop nest plus the per-data-space bypass mask.
type Mapping struct {
	Nest              LoopNest
	DatatypeBypass    map[int]BypassMask // keyed by data space id
}

// DimensionProduct computes, for dimension dimID, the product of extents
// of every loop in the nest bound to that dimension — the quantity that
// must equal the dimension's bound for a "perfect" factorization (spec.md
// section 3 invariant, and section 8 invariant 1).
func (m Mapping) DimensionProduct(dimID int) int {
	product := 1
	for _, l := range m.Nest.Loops {
		if l.DimID != dimID {
			continue
		}
		product *= l.Extent()
	}
	return product
}
