package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maeri-project/squareloop/internal/arch"
	"github.com/maeri-project/squareloop/internal/mapping"
	"github.com/maeri-project/squareloop/internal/shape"
)

func gemmShape(t *testing.T) *shape.Shape {
	t.Helper()
	dims := []shape.Dimension{
		{Name: "M", ID: 0, Bound: 16},
		{Name: "K", ID: 1, Bound: 16},
		{Name: "N", ID: 2, Bound: 16},
	}
	dataSpaces := []shape.DataSpace{
		{Name: "A", ID: 0, Ranks: []shape.Rank{
			{Name: "m", DimIDs: []int{0}, Coefficients: []int{1}},
			{Name: "k", DimIDs: []int{1}, Coefficients: []int{1}},
		}},
		{Name: "B", ID: 1, Ranks: []shape.Rank{
			{Name: "k", DimIDs: []int{1}, Coefficients: []int{1}},
			{Name: "n", DimIDs: []int{2}, Coefficients: []int{1}},
		}},
		{Name: "Z", ID: 2, Ranks: []shape.Rank{
			{Name: "m", DimIDs: []int{0}, Coefficients: []int{1}},
			{Name: "n", DimIDs: []int{2}, Coefficients: []int{1}},
		}},
	}
	s, err := shape.New(dims, dataSpaces)
	require.NoError(t, err)
	return s
}

func threeLevelArch(t *testing.T) *arch.Architecture {
	t.Helper()
	a, err := arch.New([]arch.LevelSpec{
		{Name: "RF", Index: 0, Capacity: 16, BlockSize: 1, Technology: arch.TechnologySRAM},
		{Name: "SRAM", Index: 1, Capacity: 512, BlockSize: 4, Technology: arch.TechnologySRAM},
		{Name: "DRAM", Index: 2, Capacity: arch.InfiniteCapacity, BlockSize: 16, Technology: arch.TechnologyDRAM, ReadBandwidth: 16, WriteBandwidth: 16},
		{Name: "MACC", Index: 3, IsArithmetic: true},
	})
	require.NoError(t, err)
	return a
}

// flatMapping builds an all-temporal, fully-factored nest: 4 per dimension
// at level 0 and 2 per dimension at each of levels 1 and 2 (16 = 4*2*2),
// matching a dense 16x16x16 GEMM.
func flatMapping(t *testing.T) mapping.Mapping {
	t.Helper()
	loops := []mapping.LoopDescriptor{
		// level 2 (outermost)
		{DimID: 0, Start: 0, End: 2, Stride: 1, SpaceTime: mapping.Temporal},
		{DimID: 1, Start: 0, End: 2, Stride: 1, SpaceTime: mapping.Temporal},
		{DimID: 2, Start: 0, End: 2, Stride: 1, SpaceTime: mapping.Temporal},
		// level 1
		{DimID: 0, Start: 0, End: 2, Stride: 1, SpaceTime: mapping.Temporal},
		{DimID: 1, Start: 0, End: 2, Stride: 1, SpaceTime: mapping.Temporal},
		{DimID: 2, Start: 0, End: 2, Stride: 1, SpaceTime: mapping.Temporal},
		// level 0 (innermost)
		{DimID: 0, Start: 0, End: 4, Stride: 1, SpaceTime: mapping.Temporal},
		{DimID: 1, Start: 0, End: 4, Stride: 1, SpaceTime: mapping.Temporal},
		{DimID: 2, Start: 0, End: 4, Stride: 1, SpaceTime: mapping.Temporal},
	}
	return mapping.Mapping{
		Nest: mapping.LoopNest{
			Loops:                   loops,
			StorageTilingBoundaries: []int{3, 6},
		},
	}
}

func TestCreateConcordantLayout_DimensionProductMatchesBound(t *testing.T) {
	shp := gemmShape(t)
	a := threeLevelArch(t)
	m := flatMapping(t)

	for d := 0; d < shp.NumDims(); d++ {
		assert.Equal(t, shp.Bound(d), m.DimensionProduct(d))
	}

	layouts, state, err := CreateConcordantLayout(m, shp, a)
	require.NoError(t, err)
	assert.Len(t, layouts, 3)
	assert.Equal(t, 3, state.NumLevels)
}

func TestSpaceState_CumulativelyInterlineDimVal(t *testing.T) {
	shp := gemmShape(t)
	a := threeLevelArch(t)
	m := flatMapping(t)

	_, state, err := CreateConcordantLayout(m, shp, a)
	require.NoError(t, err)

	for lvl := 0; lvl < state.NumLevels; lvl++ {
		for d := 0; d < shp.NumDims(); d++ {
			intra := state.CumulativelyIntralineDimVal[lvl][d]
			inter := state.CumulativelyInterlineDimVal(lvl, d)
			product := state.CumulativelyProductDimVal[lvl][d]
			assert.Equal(t, product, intra*inter, "level %d dim %d", lvl, d)
		}
	}
}

func TestValidateAssumptions_RejectsRowBufferWithZeroPadding(t *testing.T) {
	l := Layout{AssumeRowBuffer: true, AssumeZeroPadding: true}
	err := l.ValidateAssumptions()
	require.Error(t, err)
}

func TestValidateAssumptions_AllowsOtherCombinations(t *testing.T) {
	assert.NoError(t, Layout{}.ValidateAssumptions())
	assert.NoError(t, Layout{AssumeRowBuffer: true}.ValidateAssumptions())
	assert.NoError(t, Layout{AssumeZeroPadding: true}.ValidateAssumptions())
	assert.NoError(t, Layout{AssumeReuse: true, AssumeZeroPadding: true}.ValidateAssumptions())
}

func TestNest_Product(t *testing.T) {
	n := NewNest([]string{"m", "k"})
	n.Factors["m"] = 4
	n.Factors["k"] = 2
	assert.Equal(t, uint64(8), n.Product())
}
