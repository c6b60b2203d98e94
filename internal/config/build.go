package config

import (
	"fmt"

	"github.com/maeri-project/squareloop/internal/arch"
	"github.com/maeri-project/squareloop/internal/bufferlevel"
	"github.com/maeri-project/squareloop/internal/mapping"
	"github.com/maeri-project/squareloop/internal/mapspace"
	"github.com/maeri-project/squareloop/internal/shape"
	apperrors "github.com/maeri-project/squareloop/pkg/errors"
)

// BuildShape translates the `problem` config tree into a shape.Shape,
// resolving rank dimension/coefficient names to ids (spec.md C1).
func BuildShape(p ProblemConfig) (*shape.Shape, error) {
	dims := make([]shape.Dimension, len(p.Dimensions))
	dimIdx := make(map[string]int, len(p.Dimensions))
	for i, d := range p.Dimensions {
		dims[i] = shape.Dimension{Name: d.Name, ID: i, Bound: d.Bound}
		dimIdx[d.Name] = i
	}
	coeffDefault := make(map[string]int, len(p.Coefficients))
	for _, c := range p.Coefficients {
		coeffDefault[c.Name] = c.Default
	}

	dataSpaces := make([]shape.DataSpace, len(p.DataSpaces))
	for i, ds := range p.DataSpaces {
		ranks := make([]shape.Rank, len(ds.Ranks))
		for j, r := range ds.Ranks {
			dimIDs := make([]int, len(r.Dimensions))
			for k, name := range r.Dimensions {
				id, ok := dimIdx[name]
				if !ok {
					return nil, apperrors.New(apperrors.CodeShapeUnderflow,
						fmt.Sprintf("rank %q references unknown dimension %q", r.Name, name), nil)
				}
				dimIDs[k] = id
			}
			coeffs := make([]int, len(r.Coefficients))
			for k, name := range r.Coefficients {
				if name == "" {
					coeffs[k] = 1
					continue
				}
				v, ok := coeffDefault[name]
				if !ok {
					v = 1
				}
				coeffs[k] = v
			}
			if len(coeffs) == 0 {
				coeffs = make([]int, len(dimIDs))
				for k := range coeffs {
					coeffs[k] = 1
				}
			}
			ranks[j] = shape.Rank{Name: r.Name, DimIDs: dimIDs, Coefficients: coeffs}
		}
		dataSpaces[i] = shape.DataSpace{Name: ds.Name, ID: i, Order: len(ranks), Ranks: ranks, ReadWrite: ds.ReadWrite}
	}

	return shape.New(dims, dataSpaces)
}

// BuildArchitecture translates the `architecture`/`arch` config tree into
// an arch.Architecture. Levels are stored innermost-first; the config's
// `arithmetic` level is appended last if not already positioned there.
func BuildArchitecture(a ArchConfig) (*arch.Architecture, error) {
	ordered := make([]ArchLevel, 0, len(a.Levels))
	var arithmetic []ArchLevel
	for _, l := range a.Levels {
		if l.Arithmetic {
			arithmetic = append(arithmetic, l)
		} else {
			ordered = append(ordered, l)
		}
	}
	ordered = append(ordered, arithmetic...)
	levels := make([]arch.LevelSpec, len(ordered))
	for i, l := range ordered {
		tech := arch.TechnologySRAM
		if l.Technology == string(arch.TechnologyDRAM) {
			tech = arch.TechnologyDRAM
		}
		capacity := l.Capacity
		if capacity == 0 {
			capacity = arch.InfiniteCapacity
		}
		levels[i] = arch.LevelSpec{
			Name:               l.Name,
			Index:              i,
			IsArithmetic:       l.Arithmetic,
			Capacity:           capacity,
			BlockSize:          l.BlockSize,
			ClusterSize:        maxOne(l.ClusterSize),
			Instances:          maxOne(l.Instances),
			Technology:         tech,
			ReadBandwidth:      l.ReadBandwidth,
			WriteBandwidth:     l.WriteBandwidth,
			SharedBandwidth:    l.SharedBandwidth,
			NumReadPorts:       maxOne(l.NumReadPorts),
			NumWritePorts:      maxOne(l.NumWritePorts),
			NumBanks:           maxOne(l.NumBanks),
			EnergyPerOp:        l.EnergyPerOp,
			LeakEnergyPerCycle: l.LeakEnergyPerCycle,
		}
	}
	return arch.New(levels)
}

func maxOne(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}

// BuildConstraints translates a `mapspace`/`mapspace_constraints` config
// tree (whichever was supplied; Validate already enforces exclusivity)
// into mapspace.Constraints, resolving level/data-space names against shp
// and a.
func BuildConstraints(mc *MapspaceConfig, shp *shape.Shape, a *arch.Architecture) (mapspace.Constraints, error) {
	cons := mapspace.Constraints{}
	if mc == nil {
		return cons, nil
	}
	if len(mc.MaxSpatialFanout) > 0 {
		cons.MaxSpatialFanout = make(map[int]int, len(mc.MaxSpatialFanout))
		for name, v := range mc.MaxSpatialFanout {
			lvl, ok := a.LevelByName(name)
			if !ok {
				return cons, apperrors.New(apperrors.CodeShapeUnderflow,
					fmt.Sprintf("mapspace constraint references unknown level %q", name), nil)
			}
			cons.MaxSpatialFanout[lvl] = v
		}
	}
	if len(mc.FixedBypass) > 0 {
		cons.FixedBypass = make(map[int]mapping.BypassMask, len(mc.FixedBypass))
		for name, v := range mc.FixedBypass {
			ds, ok := shp.DataSpaceByName(name)
			if !ok {
				return cons, apperrors.New(apperrors.CodeShapeUnderflow,
					fmt.Sprintf("mapspace constraint references unknown data space %q", name), nil)
			}
			cons.FixedBypass[ds.ID] = mapping.BypassMask(v)
		}
	}
	return cons, nil
}

// BuildCrypto translates the optional `crypto` config key into a
// bufferlevel.CryptoSpec.
func BuildCrypto(c *CryptoConfig) bufferlevel.CryptoSpec {
	if c == nil {
		return bufferlevel.CryptoSpec{}
	}
	engines := c.NumEngines
	if engines <= 0 {
		engines = 1
	}
	return bufferlevel.CryptoSpec{
		Datapath:             c.Datapath,
		AuthCyclePerDatapath: c.AuthCyclePerDatapath,
		EncCyclePerDatapath:  c.EncCyclePerDatapath,
		AuthAdditionalCycles: c.AuthAdditionalCyclePerBlock,
		HashSize:             c.HashSize,
		CryptoBlocksPerLine:  1,
		WordBits:             8,
		EnginesShared:        c.EnginesShared,
		NumEngines:           engines,
	}
}
