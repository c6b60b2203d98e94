package mapspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maeri-project/squareloop/internal/arch"
	"github.com/maeri-project/squareloop/internal/mapping"
	"github.com/maeri-project/squareloop/internal/shape"
)

func gemmFixture(t *testing.T) (*shape.Shape, *arch.Architecture) {
	t.Helper()
	dims := []shape.Dimension{
		{Name: "M", ID: 0, Bound: 4},
		{Name: "K", ID: 1, Bound: 4},
	}
	dataSpaces := []shape.DataSpace{
		{Name: "A", ID: 0, Ranks: []shape.Rank{{Name: "m", DimIDs: []int{0}, Coefficients: []int{1}}}},
		{Name: "B", ID: 1, Ranks: []shape.Rank{{Name: "k", DimIDs: []int{1}, Coefficients: []int{1}}}},
	}
	shp, err := shape.New(dims, dataSpaces)
	require.NoError(t, err)

	a, err := arch.New([]arch.LevelSpec{
		{Name: "RF", Index: 0, Capacity: 16, BlockSize: 1, Technology: arch.TechnologySRAM},
		{Name: "DRAM", Index: 1, Capacity: arch.InfiniteCapacity, BlockSize: 16, Technology: arch.TechnologyDRAM, ReadBandwidth: 16, WriteBandwidth: 16},
		{Name: "MACC", Index: 2, IsArithmetic: true},
	})
	require.NoError(t, err)
	return shp, a
}

func TestNew_ComputesTotalAndSize(t *testing.T) {
	shp, a := gemmFixture(t)
	ms, err := New(shp, a, Constraints{})
	require.NoError(t, err)
	assert.Equal(t, ms.total, ms.Size())
	assert.True(t, ms.total > 0)
}

func TestNext_EnumeratesWholePartitionThenStops(t *testing.T) {
	shp, a := gemmFixture(t)
	ms, err := New(shp, a, Constraints{})
	require.NoError(t, err)

	var id uint64
	count := uint64(0)
	seen := make(map[uint64]bool)
	for ms.Next(&id) {
		assert.False(t, seen[id], "id %d yielded twice", id)
		seen[id] = true
		count++
	}
	assert.Equal(t, ms.total, count)
}

func TestSplit_PartitionsCoverWholeSpaceExactlyOnce(t *testing.T) {
	shp, a := gemmFixture(t)
	ms, err := New(shp, a, Constraints{})
	require.NoError(t, err)

	parts := ms.Split(3)
	require.Len(t, parts, 3)

	var total uint64
	seen := make(map[uint64]bool)
	for _, p := range parts {
		var id uint64
		for p.Next(&id) {
			assert.False(t, seen[id])
			seen[id] = true
			total++
		}
	}
	assert.Equal(t, ms.total, total)
}

func TestDecompose_RoundTripsWithinBounds(t *testing.T) {
	shp, a := gemmFixture(t)
	ms, err := New(shp, a, Constraints{})
	require.NoError(t, err)

	t_ := ms.Decompose(0)
	assert.Equal(t, SubDimensionTuple{}, t_)

	tup := ms.Decompose(ms.total - 1)
	assert.True(t, tup.Factorization < ms.factorizationSize)
	assert.True(t, tup.Permutation < ms.permutationSize)
	assert.True(t, tup.Spatial < ms.spatialSize)
	assert.True(t, tup.Bypass < ms.bypassSize)
}

func TestOnlyBypassChanged(t *testing.T) {
	a := SubDimensionTuple{Factorization: 1, Permutation: 2, Spatial: 3, Bypass: 4}
	sameExceptBypass := SubDimensionTuple{Factorization: 1, Permutation: 2, Spatial: 3, Bypass: 5}
	differsElsewhere := SubDimensionTuple{Factorization: 1, Permutation: 9, Spatial: 3, Bypass: 5}

	assert.True(t, OnlyBypassChanged(a, sameExceptBypass))
	assert.False(t, OnlyBypassChanged(a, differsElsewhere))
	assert.False(t, OnlyBypassChanged(a, a))
}

func TestConstructMapping_DimensionProductMatchesBound(t *testing.T) {
	shp, a := gemmFixture(t)
	ms, err := New(shp, a, Constraints{})
	require.NoError(t, err)

	var id uint64
	require.True(t, ms.Next(&id))
	m, statuses, err := ms.ConstructMapping(id)
	require.NoError(t, err)
	require.Len(t, statuses, ms.numLevels)

	for d := 0; d < shp.NumDims(); d++ {
		assert.Equal(t, shp.Bound(d), m.DimensionProduct(d))
	}
}

func TestConstructMapping_RejectsOutOfRangeID(t *testing.T) {
	shp, a := gemmFixture(t)
	ms, err := New(shp, a, Constraints{})
	require.NoError(t, err)

	_, _, err = ms.ConstructMapping(ms.total)
	require.Error(t, err)
}

func TestConstructMapping_FixedBypassIsHonored(t *testing.T) {
	shp, a := gemmFixture(t)
	cons := Constraints{FixedBypass: map[int]mapping.BypassMask{0: 0b11}}
	ms, err := New(shp, a, cons)
	require.NoError(t, err)

	var id uint64
	require.True(t, ms.Next(&id))
	m, _, err := ms.ConstructMapping(id)
	require.NoError(t, err)
	assert.Equal(t, mapping.BypassMask(0b11), m.DatatypeBypass[0])
}

func TestConstructMapping_MaxSpatialFanoutMarksLevelIllegalWhenExceeded(t *testing.T) {
	shp, a := gemmFixture(t)
	cons := Constraints{MaxSpatialFanout: map[int]int{0: 1}}
	ms, err := New(shp, a, cons)
	require.NoError(t, err)

	sawIllegal := false
	var id uint64
	for ms.Next(&id) {
		_, statuses, err := ms.ConstructMapping(id)
		require.NoError(t, err)
		for _, s := range statuses {
			if !s.Success {
				sawIllegal = true
			}
		}
		if sawIllegal {
			break
		}
	}
	assert.True(t, sawIllegal, "expected at least one spatially over-subscribed level with fanout capped to 1")
}
