package bufferlevel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maeri-project/squareloop/internal/arch"
	"github.com/maeri-project/squareloop/internal/layout"
	"github.com/maeri-project/squareloop/internal/mapping"
	"github.com/maeri-project/squareloop/internal/shape"
)

// singleLevelFixture builds the smallest possible workload/architecture
// pair exercising Evaluate: one dimension, one data space, one storage
// level plus the arithmetic level.
func singleLevelFixture(t *testing.T) (*shape.Shape, *arch.Architecture, mapping.Mapping) {
	t.Helper()
	shp, err := shape.New(
		[]shape.Dimension{{Name: "N", ID: 0, Bound: 4}},
		[]shape.DataSpace{{Name: "X", ID: 0, Ranks: []shape.Rank{{Name: "n", DimIDs: []int{0}, Coefficients: []int{1}}}}},
	)
	require.NoError(t, err)

	a, err := arch.New([]arch.LevelSpec{
		{Name: "BUF", Index: 0, Capacity: 64, BlockSize: 4, Technology: arch.TechnologySRAM, NumReadPorts: 1, NumWritePorts: 1},
		{Name: "MACC", Index: 1, IsArithmetic: true},
	})
	require.NoError(t, err)

	m := mapping.Mapping{
		Nest: mapping.LoopNest{
			Loops:                   []mapping.LoopDescriptor{{DimID: 0, Start: 0, End: 4, Stride: 1, SpaceTime: mapping.Temporal}},
			StorageTilingBoundaries: nil,
		},
	}
	return shp, a, m
}

func TestEvaluate_ProducesPositiveSlowdownAndCycles(t *testing.T) {
	shp, a, m := singleLevelFixture(t)
	layouts, _, err := layout.CreateConcordantLayout(m, shp, a)
	require.NoError(t, err)

	res, err := Evaluate(EvalInputs{
		Shape:       shp,
		Arch:        a,
		Level:       0,
		Layout:      layouts[0],
		Nest:        m.Nest,
		AssumeReuse: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Slowdown >= 0)
	assert.True(t, res.ComputeCycles > 0)
	assert.True(t, res.TotalTileCount > 0)
}

func TestEvaluate_RejectsMemoryLineExceedingBlockSize(t *testing.T) {
	shp, a, m := singleLevelFixture(t)
	layouts, _, err := layout.CreateConcordantLayout(m, shp, a)
	require.NoError(t, err)

	// force an illegally large intraline product directly (block size is 4).
	nests := layouts[0].Nests["X"]
	nests.Intraline.Factors["n"] = 99
	layouts[0].Nests["X"] = nests

	_, err = Evaluate(EvalInputs{Shape: shp, Arch: a, Level: 0, Layout: layouts[0], Nest: m.Nest})
	require.Error(t, err)
}

// TestEvaluate_ResidualAssignmentChangesTileCount exercises spec.md
// section 8 concrete scenario 6: a loop with end=4 (outer_size=4) and
// residual_end=2 must weight the residual assignment by 1/4 and the full
// assignment by 3/4, and — unlike the pre-fix engine, which ignored the
// selected extent entirely — the residual assignment must actually walk a
// smaller tile-type space than the full one.
func TestEvaluate_ResidualAssignmentChangesTileCount(t *testing.T) {
	shp, err := shape.New(
		[]shape.Dimension{{Name: "N", ID: 0, Bound: 8}},
		[]shape.DataSpace{{Name: "X", ID: 0, Ranks: []shape.Rank{{Name: "n", DimIDs: []int{0}, Coefficients: []int{1}}}}},
	)
	require.NoError(t, err)

	a, err := arch.New([]arch.LevelSpec{
		{Name: "BUF", Index: 0, Capacity: 64, BlockSize: 8, Technology: arch.TechnologySRAM, NumReadPorts: 1, NumWritePorts: 1},
		{Name: "MACC", Index: 1, IsArithmetic: true},
	})
	require.NoError(t, err)

	m := mapping.Mapping{
		Nest: mapping.LoopNest{
			Loops: []mapping.LoopDescriptor{{DimID: 0, Start: 0, End: 4, ResidualEnd: 2, Stride: 1, SpaceTime: mapping.Temporal}},
		},
	}
	layouts, _, err := layout.CreateConcordantLayout(m, shp, a)
	require.NoError(t, err)

	res, err := Evaluate(EvalInputs{Shape: shp, Arch: a, Level: 0, Layout: layouts[0], Nest: m.Nest, AssumeReuse: true})
	require.NoError(t, err)

	// The last Phase-0 assignment processed is the all-residual one (weight
	// 1/4); its tile count must reflect ResidualEnd=2, not End=4.
	assert.Equal(t, 2, res.TotalTileCount)
}

func TestNumLines_MatchesTheLiteralPhase3Formula(t *testing.T) {
	// total=8, zero_padding=0, binding_parallelism=2, mapping_parallelism=4,
	// rank_pos=0: ceil((min(4,8)-0)/2) - floor(max(0,0)/2) = 2 - 0 = 2.
	assert.Equal(t, 2, numLines(8, 0, 2, 4, 0))
}

func TestNumLines_AccountsForZeroPaddingAndRankPosition(t *testing.T) {
	// total=10, zero_padding=1, binding_parallelism=3, mapping_parallelism=3,
	// rank_pos=3: ceil((min(6,9)-1)/3) - floor(max(2,0)/3) = 2 - 0 = 2.
	assert.Equal(t, 2, numLines(10, 1, 3, 3, 3))
}

func TestBuildTile_DerivesRankPositionsFromTheCombo(t *testing.T) {
	shp, err := shape.New(
		[]shape.Dimension{{Name: "N", ID: 0, Bound: 8}},
		[]shape.DataSpace{{Name: "X", ID: 0, Ranks: []shape.Rank{{Name: "n", DimIDs: []int{0}, Coefficients: []int{1}}}}},
	)
	require.NoError(t, err)
	a, err := arch.New([]arch.LevelSpec{
		{Name: "BUF", Index: 0, Capacity: 64, BlockSize: 8, Technology: arch.TechnologySRAM, NumReadPorts: 1, NumWritePorts: 1},
		{Name: "MACC", Index: 1, IsArithmetic: true, Technology: arch.TechnologyDRAM},
	})
	require.NoError(t, err)
	m := mapping.Mapping{
		Nest: mapping.LoopNest{
			Loops: []mapping.LoopDescriptor{{DimID: 0, Start: 0, End: 4, Stride: 1, SpaceTime: mapping.Temporal}},
		},
	}
	layouts, _, err := layout.CreateConcordantLayout(m, shp, a)
	require.NoError(t, err)

	in := EvalInputs{Shape: shp, Arch: a, Level: 0, Layout: layouts[0], Nest: m.Nest}
	ranks := buildRankInfos(in, "X")
	require.Len(t, ranks, 1)

	tile := buildTile(in, 0, ranks, map[int]int{0: 2}, false)
	assert.Equal(t, 2, tile.RankPositions["n"])
	assert.Equal(t, ranks[0].total, tile.RankTotals["n"])
	assert.False(t, tile.IsFirstTile)
}

func TestImperfectAssignments_WeightsSumToOne(t *testing.T) {
	imperfect := []mapping.LoopDescriptor{
		{End: 8, ResidualEnd: 3},
		{End: 4, ResidualEnd: 2},
	}
	asg := imperfectAssignments(imperfect)
	assert.Len(t, asg, 4) // 2^2

	var total float64
	for _, a := range asg {
		total += a.Weight
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestImperfectAssignments_EmptyInputYieldsSingleUnitWeightTerm(t *testing.T) {
	asg := imperfectAssignments(nil)
	require.Len(t, asg, 1)
	assert.Equal(t, 1.0, asg[0].Weight)
}

func TestDistributeCrypto_DedicatedEnginesCeilPerEngineLoad(t *testing.T) {
	got := distributeCrypto(10, 2.0, 4, false)
	assert.Equal(t, 2.0*3, got) // ceil(10/4)=3 lines served serially per engine
}

func TestDistributeCrypto_SharedEnginesBalanceRemainder(t *testing.T) {
	got := distributeCrypto(9, 1.0, 3, true)
	assert.Equal(t, 3.0, got) // 9 lines / 3 engines divides evenly, no remainder

	got2 := distributeCrypto(10, 1.0, 3, true)
	assert.Equal(t, 4.0, got2) // base 3 lines/engine + 1 remainder line on one engine
}

func TestDistributeCrypto_NoLinesIsZero(t *testing.T) {
	assert.Equal(t, 0.0, distributeCrypto(0, 5.0, 2, true))
}

func TestCryptoSpec_PerLineLatencyZeroWhenNoDatapath(t *testing.T) {
	c := CryptoSpec{}
	assert.Equal(t, 0.0, c.perLineLatency(64))
}

func TestCryptoSpec_PerLineLatencyScalesWithPasses(t *testing.T) {
	c := CryptoSpec{Datapath: 32, WordBits: 8, AuthCyclePerDatapath: 1, EncCyclePerDatapath: 1, AuthAdditionalCycles: 2}
	// authBlockSize=64 bits-per-word 8 -> 512 bits / 32 datapath = 16 passes
	got := c.perLineLatency(64)
	assert.Equal(t, 16.0*(1+1)+2, got)
}
