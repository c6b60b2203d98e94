// Package topology implements spec.md C8: composing the per-level
// bank-conflict results (read/fill/update/drain networks implicit in each
// level's bandwidth terms) into one aggregate EvaluationResult for a
// mapping+layout pair.
package topology

import (
	"fmt"
	"math"

	"github.com/maeri-project/squareloop/internal/arch"
	"github.com/maeri-project/squareloop/internal/bufferlevel"
	"github.com/maeri-project/squareloop/internal/layout"
	"github.com/maeri-project/squareloop/internal/mapping"
	"github.com/maeri-project/squareloop/internal/shape"
	apperrors "github.com/maeri-project/squareloop/pkg/errors"
)

// Metric names the optimization objective of spec.md section 6's
// `mapper.optimization_metric`.
type Metric string

const (
	MetricDelay               Metric = "delay"
	MetricEnergy              Metric = "energy"
	MetricEDP                 Metric = "edp"
	MetricLastLevelAccesses   Metric = "last_level_accesses"
	MetricOrderedAccesses     Metric = "ordered_accesses"
)

// LevelResult is one storage level's contribution to the evaluation.
type LevelResult struct {
	Level     int
	Slowdown  float64
	Energy    float64
	Cycles    float64
	Confidence map[string]float64 // per data space
}

// EvaluationResult is the aggregate per-mapping result compared by
// UpdateIfBetter (spec.md section 8 invariant 7).
type EvaluationResult struct {
	Valid          bool
	Levels         []LevelResult
	Cycles         float64
	EnergyPJ       float64
	Utilization    float64
	EDP            float64
	LastLevelAccesses float64
}

// PreEvaluationCheck is the O(1) fit-vs-capacity precheck of spec.md
// section 4.2 step 4: dense working-set sizes must fit each level's
// declared capacity, and each data space's intraline (parallel) size must
// fit the level's line capacity. Levels with infinite capacity are skipped.
func PreEvaluationCheck(shp *shape.Shape, a *arch.Architecture, layouts map[int]*layout.Layout, state *layout.SpaceState) error {
	for lvl, lay := range layouts {
		if a.Levels[lvl].Capacity == arch.InfiniteCapacity {
			continue
		}
		total := 0
		for _, dsName := range lay.DataSpaceNames {
			nests := lay.Nests[dsName]
			total += int(nests.Interline.Product() * nests.Intraline.Product())
		}
		if total > a.Levels[lvl].Capacity {
			return apperrors.New(apperrors.CodeEvalPrecheck,
				fmt.Sprintf("level %d: dense working set %d exceeds capacity %d", lvl, total, a.Levels[lvl].Capacity), nil).
				WithDetails("level", lvl)
		}
		lineCap := state.StorageLevelLineCapacity[lvl]
		for _, dsName := range lay.DataSpaceNames {
			parallel := int(lay.Nests[dsName].Intraline.Product())
			if lineCap > 0 && parallel > lineCap {
				return apperrors.New(apperrors.CodeEvalPrecheck,
					fmt.Sprintf("level %d data space %s: parallel access size %d exceeds line capacity %d", lvl, dsName, parallel, lineCap), nil).
					WithDetails("level", lvl)
			}
		}
	}
	return nil
}

// Evaluate runs the bank-conflict engine over every storage level and
// composes an aggregate EvaluationResult (spec.md section 4.2 step 5/6,
// section 4.5 "Performance" and "Energy and Occupancy"). state carries the
// cumulative per-level tables bufferlevel's Phase 2 subtile-extent lookup
// needs.
func Evaluate(shp *shape.Shape, a *arch.Architecture, m mapping.Mapping, layouts map[int]*layout.Layout, state *layout.SpaceState, crypto bufferlevel.CryptoSpec) (EvaluationResult, error) {
	levels := make([]LevelResult, 0, len(layouts))
	minSlowdown := math.Inf(1)
	totalEnergy := 0.0

	computeCycles := 1.0
	for d := 0; d < shp.NumDims(); d++ {
		computeCycles *= float64(m.DimensionProduct(d))
	}

	var lastLevelAccesses float64
	var prevAccessTotal, prevConfidence float64
	havePrev := false

	for lvl := 0; lvl < a.NumStorageLevels(); lvl++ {
		lay, ok := layouts[lvl]
		if !ok {
			continue
		}
		res, err := bufferlevel.Evaluate(bufferlevel.EvalInputs{
			Shape:           shp,
			Arch:            a,
			Level:           lvl,
			Layout:          lay,
			Nest:            m.Nest,
			Crypto:          crypto,
			Sharing:         crypto.EnginesShared,
			State:           state,
			AssumeRowBuffer: lay.AssumeRowBuffer,
			AssumeZeroPad:   lay.AssumeZeroPadding,
			AssumeReuse:     lay.AssumeReuse,
		})
		if err != nil {
			return EvaluationResult{}, err
		}
		if res.Slowdown > 0 && res.Slowdown < minSlowdown {
			minSlowdown = res.Slowdown
		}

		blockSize := a.Levels[lvl].LineCapacity()

		// Occupancy & confidence (spec.md section 4.5): the maximum
		// confidence at which the level's dense working set fits its
		// capacity share.
		denseSize := 0
		for _, dsName := range lay.DataSpaceNames {
			nests := lay.Nests[dsName]
			denseSize += int(nests.Interline.Product() * nests.Intraline.Product())
		}
		tileConfidence := 1.0
		if a.Levels[lvl].Capacity != arch.InfiniteCapacity && a.Levels[lvl].Capacity > 0 {
			tileConfidence = bufferlevel.ResolveConfidence(bufferlevel.OccupancyInputs{
				EffectiveCapacityShare: float64(a.Levels[lvl].Capacity),
				ExpectedDataTileSize:   float64(denseSize),
				AllowOverbooking:       lay.AssumeReuse,
				ConfidenceThreshold:    0.9,
			})
		}

		// leaks_per_cycle derived from utilization (spec.md section 4.5):
		// a level stalling below its own critical path leaks for longer
		// than one cycle of useful work per cycle of wall-clock time.
		leaksPerCycle := 1.0
		if res.Slowdown > 0 {
			leaksPerCycle = 1.0 / res.Slowdown
		}

		var childOverflow float64
		if havePrev {
			childOverflow = prevAccessTotal * a.Levels[lvl].EnergyPerOp["random_read"] * (1 - prevConfidence)
		}

		energyIn := bufferlevel.EnergyInputs{
			VectorAccesses: map[string]float64{
				"random_read": bufferlevel.VectorAccesses(res.Accesses.RandomRead, blockSize),
				"random_fill": bufferlevel.VectorAccesses(res.Accesses.RandomFill, blockSize),
			},
			Energy: bufferlevel.OpEnergy{
				"random_read": a.Levels[lvl].EnergyPerOp["random_read"],
				"random_fill": a.Levels[lvl].EnergyPerOp["random_fill"],
			},
			TileConfidence:      tileConfidence,
			Cycles:              computeCycles,
			LeakEnergyPerCycle:  a.Levels[lvl].LeakEnergyPerCycle,
			LeaksPerCycle:       leaksPerCycle,
			ChildOverflowEnergy: childOverflow,
		}
		energy := bufferlevel.FinalizeBufferEnergy(energyIn)
		totalEnergy += energy

		levels = append(levels, LevelResult{
			Level:      lvl,
			Slowdown:   res.Slowdown,
			Energy:     energy,
			Cycles:     res.CriticalPathCycles,
			Confidence: map[string]float64{"tile": tileConfidence},
		})

		accessTotal := res.Accesses.ActualAccesses(false) + res.Accesses.ActualAccesses(true)
		lastLevelAccesses = accessTotal
		prevAccessTotal, prevConfidence, havePrev = accessTotal, tileConfidence, true
	}

	if math.IsInf(minSlowdown, 1) {
		minSlowdown = 1
	}
	cycles := math.Ceil(computeCycles / minSlowdown)

	result := EvaluationResult{
		Valid:             true,
		Levels:            levels,
		Cycles:            cycles,
		EnergyPJ:          totalEnergy,
		Utilization:       minSlowdown,
		LastLevelAccesses: lastLevelAccesses,
	}
	if computeCycles > 0 {
		result.EDP = (totalEnergy / computeCycles) * cycles
	}
	return result, nil
}

// UpdateIfBetter compares candidate against best under metric and returns
// the winner, never regressing (spec.md section 8 invariant 7).
func UpdateIfBetter(best, candidate EvaluationResult, metric Metric) EvaluationResult {
	if !candidate.Valid {
		return best
	}
	if !best.Valid {
		return candidate
	}
	if less(candidate, best, metric) {
		return candidate
	}
	return best
}

func less(a, b EvaluationResult, metric Metric) bool {
	switch metric {
	case MetricEnergy:
		return a.EnergyPJ < b.EnergyPJ
	case MetricEDP:
		return a.EDP < b.EDP
	case MetricLastLevelAccesses:
		return a.LastLevelAccesses < b.LastLevelAccesses
	case MetricOrderedAccesses:
		return a.LastLevelAccesses < b.LastLevelAccesses
	default: // delay
		return a.Cycles < b.Cycles
	}
}
