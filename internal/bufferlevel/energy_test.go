package bufferlevel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActualAccesses_SumsFillsPlusReadOrUpdate(t *testing.T) {
	a := AccessCounts{
		RandomRead: 3, GatedRead: 1, SkippedRead: 100,
		RandomFill: 2, GatedFill: 1,
		RandomUpdate: 5, GatedUpdate: 1,
		RandomMetadata: 1000, SkippedMetadata: 1000,
	}
	assert.Equal(t, 2.0+1+3+1, a.ActualAccesses(false))
	assert.Equal(t, 2.0+1+5+1, a.ActualAccesses(true))
}

func TestVectorAccesses_CeilsToLineGranularity(t *testing.T) {
	assert.Equal(t, 3.0, VectorAccesses(9, 4))
	assert.Equal(t, 9.0, VectorAccesses(9, 0))
}

func TestFinalizeBufferEnergy_SumsAllTerms(t *testing.T) {
	in := EnergyInputs{
		VectorAccesses:     map[string]float64{"random_read": 2, "random_fill": 1},
		Energy:             OpEnergy{"random_read": 5, "random_fill": 10},
		TileConfidence:     0.5,
		Cycles:             100,
		LeakEnergyPerCycle: 0.01,
		LeaksPerCycle:      1,
		AddressGenEnergy:   3,
		TemporalReduction:  4,
	}
	got := FinalizeBufferEnergy(in)
	want := (2*5+1*10)*0.5 + 4 + 3 + 0.01*100*1
	assert.InDelta(t, want, got, 1e-9)
}

func TestResolveConfidence_ReturnsConstraintWhenItDoesNotFit(t *testing.T) {
	in := OccupancyInputs{
		EffectiveCapacityShare: 1.0,
		ExpectedDataTileSize:   2.0,
		ExpectedMetadataSize:   0,
		AllowOverbooking:       false,
		ConfidenceThreshold:    0.5,
	}
	// constraint=1.0 (no overbooking); used = 1.0*2.0 = 2.0 > 1.0, does not fit.
	assert.Equal(t, 1.0, ResolveConfidence(in))
}

func TestResolveConfidence_ClimbsToFullConfidenceWhenSlackRemains(t *testing.T) {
	in := OccupancyInputs{
		EffectiveCapacityShare: 10.0,
		ExpectedDataTileSize:   1.0,
		ExpectedMetadataSize:   0,
	}
	assert.InDelta(t, 1.0, ResolveConfidence(in), 1e-9)
}

func TestResolveConfidence_OverbookingStartsFromThreshold(t *testing.T) {
	in := OccupancyInputs{
		EffectiveCapacityShare: 0.6,
		ExpectedDataTileSize:   1.0,
		AllowOverbooking:       true,
		ConfidenceThreshold:    0.5,
	}
	got := ResolveConfidence(in)
	assert.True(t, got >= 0.5 && got <= 0.6+0.01)
}
