// Package mapspace implements the factored map-space traversal of
// spec.md C4: a deterministic, ID-addressable enumeration of legal
// mappings along four named sub-dimensions (index-factorization,
// loop-permutation, spatial-split, datatype-bypass), splittable into
// independent partitions for parallel workers.
//
// Scope note: the index-factorization sub-dimension enumerates
// exact divisor-chain factorizations only (product of per-level factors
// equals the dimension bound exactly). Imperfect factorization
// (LoopDescriptor.ResidualEnd) remains fully modeled by mapping.Mapping
// and by the bufferlevel engine for any mapping, including hand-built or
// user-supplied ones; the enumerator itself never emits a mapping with a
// residual tail.
package mapspace

import (
	"fmt"

	"github.com/maeri-project/squareloop/internal/arch"
	"github.com/maeri-project/squareloop/internal/mapping"
	"github.com/maeri-project/squareloop/internal/shape"
)

// LevelStatus reports whether a level's portion of a mapping decoded
// successfully; Success=false marks the whole mapping illegal.
type LevelStatus struct {
	Level   int
	Success bool
	Reason  string
}

// Constraints narrows the enumerated space; all fields are optional.
type Constraints struct {
	// MaxSpatialFanout bounds the product of spatial loop extents at any
	// one level; 0 means "use the level's own instance/cluster size".
	MaxSpatialFanout map[int]int
	// FixedBypass, if set for a data space, forces that data space's
	// bypass mask to the given value at every enumerated id.
	FixedBypass map[int]mapping.BypassMask
}

// MapSpace is the factored enumeration over one workload+architecture
// pair, optionally narrowed by constraints.
type MapSpace struct {
	shp  *shape.Shape
	a    *arch.Architecture
	cons Constraints

	numLevels int // storage levels only (excludes the arithmetic level)

	factorizations [][][]int // per dimension: list of length-numLevels factor tuples
	spatialOptions [][][]mapping.SpaceTime // per level: list of per-loop SpaceTime assignments

	factorizationSize uint64
	permutationSize   uint64
	spatialSize       uint64
	bypassSize        uint64

	total uint64

	// partition bounds; [lo, hi) of the global id space owned by this
	// MapSpace instance. The root space covers [0, total).
	lo, hi uint64
	cursor uint64
}

// New builds the full map-space for shp/a, applying constraints.
func New(shp *shape.Shape, a *arch.Architecture, cons Constraints) (*MapSpace, error) {
	ms := &MapSpace{shp: shp, a: a, cons: cons, numLevels: a.NumStorageLevels()}

	ms.factorizations = make([][][]int, shp.NumDims())
	ms.factorizationSize = 1
	for _, d := range shp.Dimensions {
		tuples := factorTuples(d.Bound, ms.numLevels)
		ms.factorizations[d.ID] = tuples
		ms.factorizationSize *= uint64(len(tuples))
	}

	// Loop permutation: each level's block holds exactly NumDims loop
	// descriptors (one per dimension, possibly with extent 1); the
	// sub-dimension size is (NumDims!)^numLevels.
	perLevelPerms := factorial(shp.NumDims())
	ms.permutationSize = powU64(uint64(perLevelPerms), ms.numLevels)

	// Spatial split: per level, enumerate every assignment of {temporal,
	// spatial-X, spatial-Y} to each of the level's NumDims loops;
	// ConstructMapping marks a level illegal when the product of its
	// spatial extents exceeds the level's allowed fanout.
	ms.spatialOptions = make([][][]mapping.SpaceTime, ms.numLevels)
	ms.spatialSize = 1
	for lvl := 0; lvl < ms.numLevels; lvl++ {
		fanout := a.Levels[lvl].ClusterSize * a.Levels[lvl].Instances
		if fanout <= 0 {
			fanout = 1
		}
		if v, ok := cons.MaxSpatialFanout[lvl]; ok && v > 0 {
			fanout = v
		}
		opts := spatialAssignments(shp.NumDims(), fanout)
		ms.spatialOptions[lvl] = opts
		ms.spatialSize *= uint64(len(opts))
	}

	// Datatype bypass: 2^numLevels choices per data space, forced to a
	// single value where FixedBypass names that data space.
	ms.bypassSize = 1
	for _, ds := range shp.DataSpaces {
		if _, fixed := cons.FixedBypass[ds.ID]; fixed {
			continue
		}
		ms.bypassSize *= powU64(2, ms.numLevels)
	}

	ms.total = ms.factorizationSize * ms.permutationSize * ms.spatialSize * ms.bypassSize
	ms.hi = ms.total
	return ms, nil
}

// Size returns the total number of composite mapping ids in this space
// (or partition).
func (ms *MapSpace) Size() uint64 { return ms.hi - ms.lo }

// Next yields the next composite mapping id in this partition into idOut,
// returning false when the partition is exhausted.
func (ms *MapSpace) Next(idOut *uint64) bool {
	if ms.lo+ms.cursor >= ms.hi {
		return false
	}
	*idOut = ms.lo + ms.cursor
	ms.cursor++
	return true
}

// Split partitions the space into n contiguous, independently advancing
// sub-spaces (spec.md section 4.1).
func (ms *MapSpace) Split(n int) []*MapSpace {
	if n <= 0 {
		n = 1
	}
	out := make([]*MapSpace, 0, n)
	total := ms.hi - ms.lo
	chunk := total / uint64(n)
	rem := total % uint64(n)
	cursor := ms.lo
	for i := 0; i < n; i++ {
		size := chunk
		if uint64(i) < rem {
			size++
		}
		sub := *ms
		sub.lo = cursor
		sub.hi = cursor + size
		sub.cursor = 0
		out = append(out, &sub)
		cursor += size
	}
	return out
}

// SubDimensionTuple identifies the decomposition of a composite id into
// its four sub-dimension components, used to detect "only bypass
// changed" between consecutive ids (spec.md section 4.1).
type SubDimensionTuple struct {
	Factorization uint64
	Permutation   uint64
	Spatial       uint64
	Bypass        uint64
}

// Decompose splits a composite id into its sub-dimension indices.
func (ms *MapSpace) Decompose(id uint64) SubDimensionTuple {
	bypass := id % ms.bypassSize
	id /= ms.bypassSize
	spatial := id % ms.spatialSize
	id /= ms.spatialSize
	perm := id % ms.permutationSize
	id /= ms.permutationSize
	fact := id % ms.factorizationSize
	return SubDimensionTuple{Factorization: fact, Permutation: perm, Spatial: spatial, Bypass: bypass}
}

// OnlyBypassChanged reports whether a and b differ solely in their bypass
// sub-dimension (spec.md section 4.1).
func OnlyBypassChanged(a, b SubDimensionTuple) bool {
	return a.Factorization == b.Factorization && a.Permutation == b.Permutation && a.Spatial == b.Spatial && a.Bypass != b.Bypass
}

// ConstructMapping decodes a composite id into a concrete Mapping plus a
// per-level status vector. Any level's status.Success=false marks the
// mapping illegal (spec.md section 4.1).
func (ms *MapSpace) ConstructMapping(id uint64) (mapping.Mapping, []LevelStatus, error) {
	if id >= ms.total {
		return mapping.Mapping{}, nil, fmt.Errorf("mapspace: id %d out of range [0,%d)", id, ms.total)
	}
	t := ms.Decompose(id)
	statuses := make([]LevelStatus, ms.numLevels)
	for i := range statuses {
		statuses[i] = LevelStatus{Level: i, Success: true}
	}

	// 1. Resolve per-dimension factor tuples from the factorization index.
	dimFactors := make([][]int, ms.shp.NumDims())
	rem := t.Factorization
	for d := ms.shp.NumDims() - 1; d >= 0; d-- {
		n := uint64(len(ms.factorizations[d]))
		idx := rem % n
		rem /= n
		dimFactors[d] = ms.factorizations[d][idx]
	}

	// 2. Build, per level, one LoopDescriptor per dimension with the
	// chosen factor as its End/Stride=1 extent, then permute the block.
	// LoopNest.Loops is ordered outermost-first (spec.md section 3), while
	// levels themselves are numbered innermost=0 upward (spec.md section
	// 3's cumulative-product convention); decode each level's digits in
	// level-index order, then append the resulting blocks outermost
	// (highest level index) first.
	blocksByLevel := make([][]mapping.LoopDescriptor, ms.numLevels)
	permRem := t.Permutation
	spatialRem := t.Spatial
	for lvl := 0; lvl < ms.numLevels; lvl++ {
		block := make([]mapping.LoopDescriptor, ms.shp.NumDims())
		permSize := uint64(factorial(ms.shp.NumDims()))
		permIdx := permRem % permSize
		permRem /= permSize
		order := lehmerPermutation(ms.shp.NumDims(), permIdx)

		spatialSize := uint64(len(ms.spatialOptions[lvl]))
		spatialIdx := spatialRem % spatialSize
		spatialRem /= spatialSize
		assignment := ms.spatialOptions[lvl][spatialIdx]

		spatialProduct := 1
		for d := 0; d < ms.shp.NumDims(); d++ {
			extent := dimFactors[d][lvl]
			st := assignment[d]
			if st.IsSpatial() {
				spatialProduct *= extent
			}
			block[d] = mapping.LoopDescriptor{
				DimID:     d,
				Start:     0,
				End:       extent,
				Stride:    1,
				SpaceTime: st,
			}
		}
		fanout := ms.a.Levels[lvl].ClusterSize * ms.a.Levels[lvl].Instances
		if fanout <= 0 {
			fanout = 1
		}
		if v, ok := ms.cons.MaxSpatialFanout[lvl]; ok && v > 0 {
			fanout = v
		}
		if spatialProduct > fanout {
			statuses[lvl] = LevelStatus{Level: lvl, Success: false, Reason: fmt.Sprintf("spatial fanout %d exceeds level capacity %d", spatialProduct, fanout)}
		}

		// apply the permutation order to the block before appending
		permuted := make([]mapping.LoopDescriptor, len(block))
		for i, srcDim := range order {
			permuted[i] = block[srcDim]
		}
		blocksByLevel[lvl] = permuted
	}

	loops := make([]mapping.LoopDescriptor, 0, ms.numLevels*ms.shp.NumDims())
	boundaries := make([]int, 0, ms.numLevels-1)
	for lvl := ms.numLevels - 1; lvl >= 0; lvl-- {
		loops = append(loops, blocksByLevel[lvl]...)
		if lvl > 0 {
			boundaries = append(boundaries, len(loops))
		}
	}

	// 3. Datatype bypass.
	bypass := make(map[int]mapping.BypassMask, ms.shp.NumDataSpaces())
	bypassRem := t.Bypass
	for _, ds := range ms.shp.DataSpaces {
		if fixed, ok := ms.cons.FixedBypass[ds.ID]; ok {
			bypass[ds.ID] = fixed
			continue
		}
		n := powU64(2, ms.numLevels)
		v := bypassRem % n
		bypassRem /= n
		bypass[ds.ID] = mapping.BypassMask(v)
	}

	m := mapping.Mapping{
		Nest: mapping.LoopNest{
			Loops:                   loops,
			StorageTilingBoundaries: boundaries,
		},
		DatatypeBypass: bypass,
	}

	for _, st := range statuses {
		if !st.Success {
			return m, statuses, nil
		}
	}
	return m, statuses, nil
}

// --- helpers ---

// factorTuples enumerates every length-n tuple of positive integers whose
// product equals bound exactly (divisor-chain perfect factorizations).
func factorTuples(bound, n int) [][]int {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return [][]int{{bound}}
	}
	var out [][]int
	for f := 1; f <= bound; f++ {
		if bound%f != 0 {
			continue
		}
		for _, rest := range factorTuples(bound/f, n-1) {
			tuple := append([]int{f}, rest...)
			out = append(out, tuple)
		}
	}
	return out
}

func factorial(n int) int {
	r := 1
	for i := 2; i <= n; i++ {
		r *= i
	}
	return r
}

func powU64(base uint64, exp int) uint64 {
	r := uint64(1)
	for i := 0; i < exp; i++ {
		r *= base
	}
	return r
}

// lehmerPermutation decodes idx (0 <= idx < n!) into the idx-th
// permutation of {0,...,n-1} in lexicographic order.
func lehmerPermutation(n int, idx uint64) []int {
	avail := make([]int, n)
	for i := range avail {
		avail[i] = i
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		f := uint64(factorial(n - 1 - i))
		sel := idx / f
		idx %= f
		out[i] = avail[sel]
		avail = append(avail[:sel], avail[sel+1:]...)
	}
	return out
}

// spatialAssignments enumerates every assignment of {temporal, spatial-X,
// spatial-Y} to numDims loops. fanout does not prune the enumeration; the
// loop extents are not known at this stage, and ConstructMapping checks
// the product of the real spatial extents against the fanout.
func spatialAssignments(numDims, fanout int) [][]mapping.SpaceTime {
	choices := []mapping.SpaceTime{mapping.Temporal, mapping.SpatialX, mapping.SpatialY}
	var out [][]mapping.SpaceTime
	var rec func(prefix []mapping.SpaceTime)
	rec = func(prefix []mapping.SpaceTime) {
		if len(prefix) == numDims {
			cp := make([]mapping.SpaceTime, numDims)
			copy(cp, prefix)
			out = append(out, cp)
			return
		}
		for _, c := range choices {
			rec(append(prefix, c))
		}
	}
	rec(nil)
	return out
}
