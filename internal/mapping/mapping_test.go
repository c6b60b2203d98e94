package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoopDescriptor_Extent(t *testing.T) {
	l := LoopDescriptor{DimID: 0, Start: 0, End: 16, Stride: 4, SpaceTime: Temporal}
	assert.Equal(t, 4, l.Extent())
}

func TestLoopDescriptor_IsImperfect(t *testing.T) {
	perfect := LoopDescriptor{End: 8, ResidualEnd: 8}
	imperfect := LoopDescriptor{End: 8, ResidualEnd: 3}
	assert.False(t, perfect.IsImperfect())
	assert.True(t, imperfect.IsImperfect())
}

func TestSpaceTime_IsSpatial(t *testing.T) {
	assert.False(t, Temporal.IsSpatial())
	assert.True(t, SpatialX.IsSpatial())
	assert.True(t, SpatialY.IsSpatial())
}

// TestLoopsAtLevel_OuterFirstOrdering verifies that Loops, stored
// outermost-first, map back onto innermost=0 storage levels via the
// numLevels-1-level bridge documented on LoopsAtLevel.
func TestLoopsAtLevel_OuterFirstOrdering(t *testing.T) {
	outer := LoopDescriptor{DimID: 0, Start: 0, End: 4, Stride: 1, SpaceTime: Temporal}
	inner := LoopDescriptor{DimID: 0, Start: 0, End: 2, Stride: 1, SpaceTime: Temporal}
	nest := LoopNest{
		Loops:                   []LoopDescriptor{outer, inner},
		StorageTilingBoundaries: []int{1},
	}
	assert.Equal(t, 2, nest.NumLevels())

	innermost := nest.LoopsAtLevel(0)
	outermost := nest.LoopsAtLevel(1)
	assert.Len(t, innermost, 1)
	assert.Len(t, outermost, 1)
	assert.Equal(t, inner, innermost[0])
	assert.Equal(t, outer, outermost[0])
}

func TestBypassMask_KeepAndWithKeep(t *testing.T) {
	var m BypassMask
	assert.False(t, m.Keep(0))
	m = m.WithKeep(0).WithKeep(2)
	assert.True(t, m.Keep(0))
	assert.False(t, m.Keep(1))
	assert.True(t, m.Keep(2))
}

func TestMapping_DimensionProduct(t *testing.T) {
	m := Mapping{
		Nest: LoopNest{
			Loops: []LoopDescriptor{
				{DimID: 0, Start: 0, End: 4, Stride: 1, SpaceTime: Temporal},
				{DimID: 0, Start: 0, End: 4, Stride: 1, SpaceTime: SpatialX},
				{DimID: 1, Start: 0, End: 16, Stride: 1, SpaceTime: Temporal},
			},
		},
	}
	assert.Equal(t, 16, m.DimensionProduct(0))
	assert.Equal(t, 16, m.DimensionProduct(1))
	assert.Equal(t, 1, m.DimensionProduct(2))
}
