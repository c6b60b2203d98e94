// Package bufferlevel implements the bank-conflict / latency engine of
// spec.md C7: given one buffer level, its mapping, and its layout, it
// computes a slowdown factor reflecting spatial-parallelism pressure and
// the energy/occupancy model that consumes it.
package bufferlevel

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/maeri-project/squareloop/internal/arch"
	"github.com/maeri-project/squareloop/internal/layout"
	"github.com/maeri-project/squareloop/internal/mapping"
	"github.com/maeri-project/squareloop/internal/shape"
	apperrors "github.com/maeri-project/squareloop/pkg/errors"
)

// CryptoSpec mirrors the optional `crypto` configuration tree of spec.md
// section 6: the cost of an authentication/encryption pass over one
// memory line, and whether engines are shared across data spaces.
type CryptoSpec struct {
	Datapath             int
	AuthCyclePerDatapath  float64
	EncCyclePerDatapath   float64
	AuthAdditionalCycles  float64
	HashSize              int
	CryptoBlocksPerLine   int
	WordBits              int
	EnginesShared         bool
	NumEngines            int
}

// perLineLatency implements spec.md section 4.4's crypto-latency
// formula, concrete scenario 5.
func (c CryptoSpec) perLineLatency(authBlockSize int) float64 {
	if c.Datapath == 0 {
		return 0
	}
	passes := math.Ceil(float64(authBlockSize*c.WordBits) / float64(c.Datapath))
	return passes*(c.AuthCyclePerDatapath+c.EncCyclePerDatapath) + c.AuthAdditionalCycles
}

func (c CryptoSpec) hashReadsPerLine(blockSize int) float64 {
	if blockSize == 0 || c.WordBits == 0 {
		return 0
	}
	return float64(c.CryptoBlocksPerLine*c.HashSize) / float64(blockSize*c.WordBits)
}

// Tile is one data space's addressing state for a single Phase-3
// tile-type combination: its per-rank position and total extent within
// the combination's iterator, plus the zero-padding bookkeeping the
// num_lines formula needs.
type Tile struct {
	DataSpaceID   int
	RankPositions map[string]int // current iterator position per rank, in rank units
	RankTotals    map[string]int // rank's total addressable extent (dimension bound side)
	ZeroPadding   map[string]int
	IsFirstTile   bool
}

// latencyHeap is a max-heap of residual per-line crypto latencies, used by
// Phase 4 to distribute leftover lines across shared crypto engines
// (spec.md section 4.4, "served from a max-heap of residual per-line
// latencies until the remainder is exhausted").
type latencyHeap []float64

func (h latencyHeap) Len() int            { return len(h) }
func (h latencyHeap) Less(i, j int) bool  { return h[i] > h[j] } // max-heap
func (h latencyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *latencyHeap) Push(x interface{}) { *h = append(*h, x.(float64)) }
func (h *latencyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// distributeCrypto implements the shared-vs-dedicated crypto latency split
// of Phase 4: with N engines and `lines` lines at `perLine` cost each, the
// shared case serves ⌊lines/N⌋ lines per engine in lockstep and drains the
// remainder off a max-heap.
func distributeCrypto(lines int, perLine float64, engines int, shared bool) float64 {
	if engines <= 0 {
		engines = 1
	}
	if lines <= 0 {
		return 0
	}
	if !shared {
		return perLine * math.Ceil(float64(lines)/float64(engines))
	}
	base := lines / engines
	remainder := lines % engines
	total := float64(base) * perLine
	if remainder == 0 {
		return total
	}
	h := make(latencyHeap, engines)
	for i := range h {
		h[i] = total
	}
	heap.Init(&h)
	for i := 0; i < remainder; i++ {
		top := heap.Pop(&h).(float64)
		top += perLine
		heap.Push(&h, top)
	}
	max := 0.0
	for _, v := range h {
		if v > max {
			max = v
		}
	}
	return max
}

// ResidualAssignment is one Phase 0 imperfect-factorization weighting term:
// a subset of imperfect ranks assigned their residual extent, with its
// probability weight.
type ResidualAssignment struct {
	UseResidual map[int]bool // keyed by LoopDescriptor index among imperfect loops
	Weight      float64
}

// imperfectAssignments enumerates the 2^k weighting of spec.md section
// 4.4 Phase 0 over loops whose ResidualEnd differs from End.
func imperfectAssignments(imperfect []mapping.LoopDescriptor) []ResidualAssignment {
	k := len(imperfect)
	if k == 0 {
		return []ResidualAssignment{{UseResidual: map[int]bool{}, Weight: 1}}
	}
	out := make([]ResidualAssignment, 0, 1<<uint(k))
	for mask := 0; mask < (1 << uint(k)); mask++ {
		assign := make(map[int]bool, k)
		weight := 1.0
		for i, l := range imperfect {
			outer := float64(l.OuterSize())
			if outer <= 0 {
				outer = 1
			}
			selected := mask&(1<<uint(i)) != 0
			assign[i] = selected
			if selected {
				weight *= 1.0 / outer
			} else {
				weight *= 1 - 1.0/outer
			}
		}
		out = append(out, ResidualAssignment{UseResidual: assign, Weight: weight})
	}
	return out
}

// imperfectIndex returns l's position within imperfect, or -1 if l is not
// one of this level's imperfect loops (e.g. it's a spatial loop, which
// Phase 0 never assigns a residual to).
func imperfectIndex(imperfect []mapping.LoopDescriptor, l mapping.LoopDescriptor) int {
	for i, c := range imperfect {
		if c.DimID == l.DimID && c.Start == l.Start && c.End == l.End && c.Stride == l.Stride && c.SpaceTime == l.SpaceTime {
			return i
		}
	}
	return -1
}

// EvalInputs bundles everything the engine needs for one (level, data
// space set) evaluation.
type EvalInputs struct {
	Shape  *shape.Shape
	Arch   *arch.Architecture
	Level  int
	Layout *layout.Layout
	Nest   mapping.LoopNest
	Crypto CryptoSpec
	Sharing bool

	// State carries the cumulative per-level, per-dimension tables built by
	// layout.CreateConcordantLayout, used by Phase 2 to read the subtile
	// extent a child level delivers upward (CumulativelyProductDimVal at
	// level-1).
	State *layout.SpaceState

	AssumeRowBuffer bool
	AssumeZeroPad   bool
	AssumeReuse     bool
	AccessFrequency map[int]float64 // per data space
}

// Result is the per-level output of the engine: the slowdown, the
// access-count correction ratio, the raw cycle/latency totals feeding the
// energy model, and the fine-grained access counts spec.md section 4.5's
// energy/occupancy model consumes.
type Result struct {
	Slowdown           float64
	AccessCorrection   float64
	CriticalPathCycles float64
	ComputeCycles      float64
	TotalTileCount     int
	Accesses           AccessCounts
}

// Evaluate runs the five-phase pipeline for one level against all data
// spaces referenced by its layout (spec.md section 4.4).
func Evaluate(in EvalInputs) (Result, error) {
	loops := in.Nest.LoopsAtLevel(in.Level)

	var imperfect []mapping.LoopDescriptor
	for _, l := range loops {
		if l.IsImperfect() {
			imperfect = append(imperfect, l)
		}
	}
	assignments := imperfectAssignments(imperfect)

	// Phase 1 — binding parallelism: memory_line must not exceed block size.
	blockSize := in.Arch.Levels[in.Level].LineCapacity()
	for _, dsName := range in.Layout.DataSpaceNames {
		nests := in.Layout.Nests[dsName]
		memoryLine := nests.Intraline.Product()
		if blockSize > 0 && memoryLine > uint64(blockSize) {
			return Result{}, apperrors.New(apperrors.CodeModelInvariant,
				fmt.Sprintf("level %d data space %s: memory_line %d exceeds block size %d", in.Level, dsName, memoryLine, blockSize), nil).
				WithDetails("level", in.Level).WithDetails("dataspace", dsName)
		}
	}

	var weightedSlowdown, weightedCorrection, totalWeight float64
	var weightedAccesses AccessCounts
	var lastCriticalPath, lastCompute float64
	var lastTileCount int

	for _, asg := range assignments {
		ar := criticalPathForAssignment(in, asg, imperfect)
		slowdown := 0.0
		if ar.criticalPath > 0 {
			slowdown = float64(ar.tileCount) * ar.compute / ar.criticalPath
		}
		weightedSlowdown += asg.Weight * slowdown
		weightedCorrection += asg.Weight * ar.correction
		weightedAccesses.RandomRead += asg.Weight * ar.accesses.RandomRead
		weightedAccesses.RandomFill += asg.Weight * ar.accesses.RandomFill
		totalWeight += asg.Weight
		lastCriticalPath, lastCompute, lastTileCount = ar.criticalPath, ar.compute, ar.tileCount
	}
	if totalWeight == 0 {
		totalWeight = 1
	}

	res := Result{
		Slowdown:           weightedSlowdown / totalWeight,
		AccessCorrection:   weightedCorrection / totalWeight,
		CriticalPathCycles: lastCriticalPath,
		ComputeCycles:      lastCompute,
		TotalTileCount:     lastTileCount,
		Accesses: AccessCounts{
			RandomRead: weightedAccesses.RandomRead / totalWeight,
			RandomFill: weightedAccesses.RandomFill / totalWeight,
		},
	}
	if !in.AssumeReuse && !in.AssumeRowBuffer && res.AccessCorrection > 1.0+1e-9 {
		return Result{}, apperrors.New(apperrors.CodeModelInvariant,
			fmt.Sprintf("level %d: access correction ratio %.6f exceeds 1 without assume_reuse/assume_row_buffer", in.Level, res.AccessCorrection), nil)
	}
	return res, nil
}

// rankInfo is one rank's Phase 1/2 derived quantities: binding parallelism
// (what the layout delivers per cycle), mapping parallelism (the subtile
// size the child level hands up), and its total addressable extent.
type rankInfo struct {
	name               string
	dimIDs             []int
	coeffs             []int
	zeroPadding        int
	bindingParallelism int
	mappingParallelism int
	total              int
}

// subtileExtent reads the tile size the level below delivers for dimID,
// via the SpaceState cumulative-product table one level down; the
// innermost level has no child, so its subtile extent is 1 (spec.md
// section 4.4 Phase 2).
func subtileExtent(in EvalInputs, dimID int) int {
	if in.State == nil || in.Level <= 0 {
		return 1
	}
	rows := in.State.CumulativelyProductDimVal
	if in.Level-1 < 0 || in.Level-1 >= len(rows) {
		return 1
	}
	row := rows[in.Level-1]
	if dimID < 0 || dimID >= len(row) {
		return 1
	}
	if row[dimID] <= 0 {
		return 1
	}
	return row[dimID]
}

// mappingParallelismFor implements Phase 2's two-case formula: single-dim
// ranks take the subtile extent directly; multi-dim ranks combine each
// component dimension's subtile extent through its coefficient.
func mappingParallelismFor(in EvalInputs, dimIDs, coeffs []int) int {
	if len(dimIDs) <= 1 {
		sub := 1
		if len(dimIDs) == 1 {
			sub = subtileExtent(in, dimIDs[0])
		}
		return maxInt(1, sub)
	}
	sum := 1
	for i, d := range dimIDs {
		coeff := 1
		if i < len(coeffs) {
			coeff = coeffs[i]
		}
		sum += (subtileExtent(in, d) - 1) * coeff
	}
	return maxInt(1, sum)
}

// bindingParallelismFor implements Phase 1: the intraline factor times the
// authblock factor when the rank carries one (main-memory levels only).
func bindingParallelismFor(nests layout.DataSpaceNests, rankName string) int {
	bp := int(nests.Intraline.Factors[rankName])
	if bp <= 0 {
		bp = 1
	}
	if af, ok := nests.AuthblockLines.Factors[rankName]; ok && af > 0 {
		bp *= int(af)
	}
	return bp
}

// rankTotal is the rank's total addressable extent: the composed
// dimension bound(s) it projects, using the same half-open multi-dimension
// addressing rule as layout.rankContributionFromValues (grounded on
// original_source/src/layoutspaces/legal.cpp), applied to each dimension's
// full bound rather than a cumulative factor.
func rankTotal(shp *shape.Shape, dimIDs, coeffs []int) int {
	if len(dimIDs) == 0 {
		return 1
	}
	if len(dimIDs) == 1 {
		b := shp.Bound(dimIDs[0])
		if b <= 0 {
			b = 1
		}
		return b
	}
	total := 0
	last := len(dimIDs) - 1
	for idx, d := range dimIDs {
		bound := shp.Bound(d)
		if bound <= 0 {
			bound = 1
		}
		coeff := 1
		if idx < len(coeffs) {
			coeff = coeffs[idx]
		}
		if idx == last {
			if bound == 1 {
				total += bound - 1
			} else {
				total += bound*coeff - 1
			}
			continue
		}
		if bound == 1 {
			total += bound
		} else {
			total += bound * coeff
		}
	}
	return total + 1
}

// buildRankInfos computes Phase 1/2 quantities for every rank of one data
// space at this level.
func buildRankInfos(in EvalInputs, dsName string) []rankInfo {
	nests := in.Layout.Nests[dsName]
	out := make([]rankInfo, 0, len(nests.Interline.Ranks))
	for _, rankName := range nests.Interline.Ranks {
		key := layout.RankKey{DataSpace: dsName, Rank: rankName}
		dimIDs := in.Layout.RankToFactorizedDimensionID[key]
		coeffs := in.Layout.RankToCoefficientValue[key]
		out = append(out, rankInfo{
			name:               rankName,
			dimIDs:             dimIDs,
			coeffs:             coeffs,
			zeroPadding:        in.Layout.RankToZeroPadding[key],
			bindingParallelism: bindingParallelismFor(nests, rankName),
			mappingParallelism: mappingParallelismFor(in, dimIDs, coeffs),
			total:              rankTotal(in.Shape, dimIDs, coeffs),
		})
	}
	return out
}

// numLines implements spec.md section 4.4 Phase 3's literal per-rank line
// count formula.
func numLines(total, zeroPadding, bindingParallelism, mappingParallelism, rankPos int) int {
	if bindingParallelism <= 0 {
		bindingParallelism = 1
	}
	upper := minInt(rankPos+mappingParallelism, total-zeroPadding)
	a := upper - zeroPadding
	var term1 int
	if a > 0 {
		term1 = (a + bindingParallelism - 1) / bindingParallelism
	}
	b := maxInt(rankPos-zeroPadding, 0)
	term2 := b / bindingParallelism
	return term1 - term2
}

// buildTile derives one data space's per-rank positions for the given
// Phase-3 combo (a value per relevant dimension), the real per-combo walk
// that replaces the old capped-interline placeholder.
func buildTile(in EvalInputs, dsIdx int, ranks []rankInfo, combo map[int]int, isFirst bool) Tile {
	positions := make(map[string]int, len(ranks))
	totals := make(map[string]int, len(ranks))
	padding := make(map[string]int, len(ranks))
	for _, r := range ranks {
		pos := 0
		for i, d := range r.dimIDs {
			step := subtileExtent(in, d)
			coeff := 1
			if i < len(r.coeffs) {
				coeff = r.coeffs[i]
			}
			pos += combo[d] * step * coeff
		}
		positions[r.name] = pos
		totals[r.name] = r.total
		padding[r.name] = r.zeroPadding
	}
	return Tile{
		DataSpaceID:   dsIdx,
		RankPositions: positions,
		RankTotals:    totals,
		ZeroPadding:   padding,
		IsFirstTile:   isFirst && in.Arch.IsMainMemory(in.Level),
	}
}

// tileLines computes Π_r rank_id_to_lines[r] for one data space's tile
// (spec.md section 4.4 Phase 4).
func tileLines(tile Tile, ranks []rankInfo) int {
	lines := 1
	for _, r := range ranks {
		nl := numLines(r.total, r.zeroPadding, r.bindingParallelism, r.mappingParallelism, tile.RankPositions[r.name])
		if nl <= 0 {
			nl = 1
		}
		lines *= nl
	}
	return lines
}

// TileTypeDescriptor is the equivalence class of Phase-3 tile-type
// enumeration: tiles sharing the same (num_lines_per_rank, dataspace_mask,
// dataspace_rb, first_tile) are counted once and weighted by occurrence,
// rather than walked individually (spec.md glossary, "Tile-type
// descriptor").
type TileTypeDescriptor struct {
	NumLines      map[string]int // keyed by data space name
	DataSpaceMask map[string]bool
	DataSpaceRB   map[string]bool
	FirstTile     bool
}

// Key returns a canonical string identifying this descriptor's
// equivalence class.
func (d TileTypeDescriptor) Key() string {
	parts := make([]string, 0, len(d.NumLines))
	for ds, n := range d.NumLines {
		parts = append(parts, fmt.Sprintf("%s:%d:%v:%v", ds, n, d.DataSpaceMask[ds], d.DataSpaceRB[ds]))
	}
	sort.Strings(parts)
	return fmt.Sprintf("first=%v|%s", d.FirstTile, strings.Join(parts, ","))
}

// dimIterators walks the mixed-radix cartesian product of one Phase-3
// combination's per-dimension tile counts.
type dimIterators struct {
	dims   []int
	counts []int
}

func newDimIterators(dims []int, numberOfTiles map[int]int) dimIterators {
	counts := make([]int, len(dims))
	for i, d := range dims {
		c := numberOfTiles[d]
		if c <= 0 {
			c = 1
		}
		counts[i] = c
	}
	return dimIterators{dims: dims, counts: counts}
}

func (it dimIterators) total() int {
	t := 1
	for _, c := range it.counts {
		t *= c
	}
	if t <= 0 {
		t = 1
	}
	return t
}

func (it dimIterators) decompose(i int) map[int]int {
	out := make(map[int]int, len(it.dims))
	for k, d := range it.dims {
		c := it.counts[k]
		out[d] = i % c
		i /= c
	}
	return out
}

// relevantDims returns, in sorted order, every dimension id referenced by
// any rank across all data spaces — the dimensions Phase 3 must iterate.
func relevantDims(ranksByDS map[string][]rankInfo) []int {
	seen := make(map[int]bool)
	for _, ranks := range ranksByDS {
		for _, r := range ranks {
			for _, d := range r.dimIDs {
				seen[d] = true
			}
		}
	}
	dims := make([]int, 0, len(seen))
	for d := range seen {
		dims = append(dims, d)
	}
	sort.Ints(dims)
	return dims
}

// assignmentResult is one Phase-0 assignment's Phase 2-5 output.
type assignmentResult struct {
	criticalPath float64
	compute      float64
	tileCount    int
	correction   float64
	accesses     AccessCounts
}

// criticalPathForAssignment computes Phases 2-5 for one Phase-0 residual
// assignment: asg selects, per imperfect loop, whether this level's own
// temporal extent for that loop's dimension is its full or residual size,
// which feeds directly into the Phase-3 tile-type enumeration below and so
// changes the resulting critical path and access counts per assignment
// (spec.md section 8 concrete scenario 6).
func criticalPathForAssignment(in EvalInputs, asg ResidualAssignment, imperfect []mapping.LoopDescriptor) assignmentResult {
	loops := in.Nest.LoopsAtLevel(in.Level)
	numberOfTiles := make(map[int]int)
	for _, l := range loops {
		if l.SpaceTime.IsSpatial() {
			continue
		}
		useResidual := false
		if idx := imperfectIndex(imperfect, l); idx >= 0 {
			useResidual = asg.UseResidual[idx]
		}
		numberOfTiles[l.DimID] = l.ExtentFor(useResidual)
	}

	dsNames := in.Layout.DataSpaceNames
	groups := groupDataSpacesByRank(in.Layout, dsNames)
	dsGroup := make(map[string][]string, len(dsNames))
	for _, g := range groups {
		for _, ds := range g {
			dsGroup[ds] = g
		}
	}

	ranksByDS := make(map[string][]rankInfo, len(dsNames))
	dsDims := make(map[string]map[int]bool, len(dsNames))
	for _, dsName := range dsNames {
		ranks := buildRankInfos(in, dsName)
		ranksByDS[dsName] = ranks
		set := make(map[int]bool)
		for _, r := range ranks {
			for _, d := range r.dimIDs {
				set[d] = true
			}
		}
		dsDims[dsName] = set
	}

	// Ineffective dimensions per data space: dims its own group touches
	// that it does not itself project (spec.md section 4.4 Phase 3,
	// dataspace_mask).
	ineffective := make(map[string][]int, len(dsNames))
	for _, dsName := range dsNames {
		groupDims := make(map[int]bool)
		for _, peer := range dsGroup[dsName] {
			for d := range dsDims[peer] {
				groupDims[d] = true
			}
		}
		var dims []int
		for d := range groupDims {
			if !dsDims[dsName][d] {
				dims = append(dims, d)
			}
		}
		ineffective[dsName] = dims
	}

	dims := relevantDims(ranksByDS)
	iter := newDimIterators(dims, numberOfTiles)
	totalCount := iter.total()

	readPorts := maxInt(in.Arch.Levels[in.Level].NumReadPorts, 1)
	writePorts := maxInt(in.Arch.Levels[in.Level].NumWritePorts, 1)
	blockSizeLevel := in.Arch.Levels[in.Level].LineCapacity()

	computeCycles := 1.0
	criticalPath := 0.0
	var totalLinesAcrossDS, totalDataRequested float64
	var accesses AccessCounts

	for i := 0; i < totalCount; i++ {
		combo := iter.decompose(i)
		isFirst := i == 0
		var memLatencyRead, memLatencyWrite, cryptoMax float64

		for dsIdx, dsName := range dsNames {
			tile := buildTile(in, dsIdx, ranksByDS[dsName], combo, isFirst)

			mask := true
			for _, d := range ineffective[dsName] {
				if combo[d] != 0 {
					mask = false
					break
				}
			}
			rb := in.AssumeRowBuffer && !isFirst

			desc := TileTypeDescriptor{
				NumLines:      map[string]int{dsName: tileLines(tile, ranksByDS[dsName])},
				DataSpaceMask: map[string]bool{dsName: mask},
				DataSpaceRB:   map[string]bool{dsName: rb},
				FirstTile:     tile.IsFirstTile,
			}
			_ = desc.Key() // canonical equivalence-class identity; enumeration itself drives the per-tile accounting below

			if !mask {
				continue
			}
			lines := desc.NumLines[dsName]
			if rb {
				lines = maxInt(lines-readPorts, 0)
			}
			if lines <= 0 {
				lines = 1
			}

			nests := in.Layout.Nests[dsName]
			memoryLine := int(nests.Intraline.Product())
			if memoryLine <= 0 {
				memoryLine = 1
			}
			authBlockSize := memoryLine
			if nests.AuthblockLines.Product() > 0 {
				authBlockSize = memoryLine * int(nests.AuthblockLines.Product())
			}

			freq := 1.0
			if f, ok := in.AccessFrequency[dsIdx]; ok && f > 0 {
				freq = f
			}
			effLines := lines
			if !isFirst {
				effLines = int(math.Ceil(float64(lines) / freq))
			}

			totalLinesAcrossDS += float64(lines)
			totalDataRequested += float64(lines) * float64(memoryLine)

			if dsIdx == shape.WriteDataSpaceIndex {
				accesses.RandomFill += float64(effLines)
			} else {
				accesses.RandomRead += float64(effLines)
			}

			perLine := in.Crypto.perLineLatency(authBlockSize)
			hashReads := in.Crypto.hashReadsPerLine(memoryLine)
			cryptoLines := distributeCrypto(effLines, perLine, in.Crypto.NumEngines, in.Crypto.EnginesShared)
			cryptoLines += hashReads * float64(effLines)
			if cryptoLines > cryptoMax {
				cryptoMax = cryptoLines
			}

			latency := math.Ceil(float64(effLines*authBlockSize)/float64(memoryLine)) + math.Ceil(hashReads*float64(effLines))
			if dsIdx == shape.WriteDataSpaceIndex {
				memLatencyWrite += latency
			} else {
				memLatencyRead += latency
			}
		}

		memLatency := math.Max(math.Ceil(memLatencyRead/float64(readPorts)), math.Ceil(memLatencyWrite/float64(writePorts)))

		compute := computeCycles
		if isFirst {
			compute = 0
		}
		criticalPath += math.Max(compute, math.Max(memLatency, cryptoMax))
	}
	criticalPath += computeCycles // first_tile's one-shot compute contribution

	correction := 1.0
	if totalLinesAcrossDS > 0 {
		blockSize := float64(blockSizeLevel)
		if blockSize == 0 {
			blockSize = 1
		}
		correction = (totalDataRequested / float64(totalCount) / blockSize) / (totalLinesAcrossDS / float64(totalCount))
	}

	return assignmentResult{
		criticalPath: criticalPath,
		compute:      computeCycles,
		tileCount:    totalCount,
		correction:   correction,
		accesses:     accesses,
	}
}

// groupDataSpacesByRank unions data spaces that share a projected
// dimension, via union-find, matching spec.md section 4.4 Phase 3's
// "union-find over data-space dimensions."
func groupDataSpacesByRank(lay *layout.Layout, dsNames []string) [][]string {
	parent := make(map[string]string, len(dsNames))
	for _, n := range dsNames {
		parent[n] = n
	}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	dimOwners := make(map[int][]string)
	for _, dsName := range dsNames {
		nests := lay.Nests[dsName]
		for _, r := range nests.Interline.Ranks {
			key := layout.RankKey{DataSpace: dsName, Rank: r}
			for _, d := range lay.RankToFactorizedDimensionID[key] {
				dimOwners[d] = append(dimOwners[d], dsName)
			}
		}
	}
	for _, owners := range dimOwners {
		for i := 1; i < len(owners); i++ {
			union(owners[0], owners[i])
		}
	}

	groupOf := make(map[string][]string)
	for _, n := range dsNames {
		root := find(n)
		groupOf[root] = append(groupOf[root], n)
	}
	groups := make([][]string, 0, len(groupOf))
	for _, g := range groupOf {
		groups = append(groups, g)
	}
	return groups
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
