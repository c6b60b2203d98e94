// Package layoutspace implements the "Legal" layout space of spec.md C6:
// given a mapping and its concordant layout, it enumerates three
// orthogonal design spaces (line-splitting, interline-to-intraline
// packing, authentication-block sizing) as bounded integer ranges and
// constructs concrete layouts from composite IDs.
package layoutspace

import (
	"fmt"
	"sort"

	"github.com/maeri-project/squareloop/internal/arch"
	"github.com/maeri-project/squareloop/internal/layout"
	"github.com/maeri-project/squareloop/internal/shape"
	apperrors "github.com/maeri-project/squareloop/pkg/errors"
)

// FactorVariable names one tunable rank factor: the (level, data space,
// rank) triple and the maximum value it may take, whose divisors form the
// range of legal choices (spec.md section 3, "variable_authblock_factors"
// generalized to all three sub-spaces).
type FactorVariable struct {
	Level     int
	DataSpace string
	Rank      string
	MaxFactor int
}

// PackingOption is one (rank, divisor) choice a level may apply to pack
// unused line capacity; a level may select at most one.
type PackingOption struct {
	DataSpace string
	Rank      string
	Divisor   int
}

// Space holds the three enumerated sub-spaces for one mapping's
// concordant layout.
type Space struct {
	shp *shape.Shape
	a   *arch.Architecture

	base map[int]*layout.Layout // concordant layout, never mutated

	splittingVars   []FactorVariable
	splittingRanges [][]int

	packingPerLevel [][]PackingOption // index 0 of each level's range is "no packing"

	authVars   []FactorVariable
	authRanges [][]int

	splittingSize uint64
	packingSize   uint64
	authSize      uint64
}

// NumCandidates returns the three sub-space sizes and their product
// (spec.md section 3, num_layout_candidates).
func (s *Space) NumCandidates() (splitting, packing, auth, total uint64) {
	return s.splittingSize, s.packingSize, s.authSize, s.splittingSize * s.packingSize * s.authSize
}

// CreateSpace collects the splitting, packing, and authblock sub-spaces
// from a concordant layout (spec.md section 4.3, CreateSpace).
func CreateSpace(shp *shape.Shape, a *arch.Architecture, base map[int]*layout.Layout, state *layout.SpaceState) (*Space, error) {
	sp := &Space{shp: shp, a: a, base: base}

	// base is keyed by level number; range over a map directly would make
	// the enumerated id space non-deterministic across calls, so visit
	// levels in ascending order everywhere below.
	levels := make([]int, 0, len(base))
	for lvl := range base {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)

	// Authblock factors: one variable per (level, data space, rank) of a
	// main-memory level whose authblock_lines nest is non-empty.
	for _, lvl := range levels {
		lay := base[lvl]
		if !a.IsMainMemory(lvl) {
			continue
		}
		for _, dsName := range lay.DataSpaceNames {
			nests := lay.Nests[dsName]
			for _, rank := range nests.AuthblockLines.Ranks {
				key := layout.RankKey{DataSpace: dsName, Rank: rank}
				dimIDs := lay.RankToFactorizedDimensionID[key]
				maxFactor := 1
				for _, d := range dimIDs {
					num := productAt(state, lvl-1, d)
					den := productAt(state, lvl-2, d)
					if den == 0 {
						den = 1
					}
					maxFactor *= num / den
				}
				if maxFactor > 1 {
					sp.authVars = append(sp.authVars, FactorVariable{Level: lvl, DataSpace: dsName, Rank: rank, MaxFactor: maxFactor})
					sp.authRanges = append(sp.authRanges, divisors(maxFactor))
				}
			}
		}
	}

	// Splitting: for every rank at every level whose interline factor is
	// splittable (>1), converting a divisor of it into additional
	// intraline parallelism, bounded by the level's remaining line
	// capacity.
	for _, lvl := range levels {
		lay := base[lvl]
		lineCap := state.StorageLevelLineCapacity[lvl]
		for _, dsName := range lay.DataSpaceNames {
			nests := lay.Nests[dsName]
			usedIntraline := nests.Intraline.Product()
			headroom := int64(lineCap) / maxInt64(usedIntraline, 1)
			for _, rank := range nests.Interline.Ranks {
				interFactor := int(nests.Interline.Factors[rank])
				if interFactor <= 1 || headroom <= 1 {
					continue
				}
				ds := divisors(interFactor)
				var legal []int
				for _, d := range ds {
					if int64(d) <= headroom {
						legal = append(legal, d)
					}
				}
				if len(legal) <= 1 {
					continue
				}
				sp.splittingVars = append(sp.splittingVars, FactorVariable{Level: lvl, DataSpace: dsName, Rank: rank, MaxFactor: interFactor})
				sp.splittingRanges = append(sp.splittingRanges, legal)
			}
		}
	}

	// Packing: per level, at most one rank may absorb unused line
	// capacity left over after splitting; choice 0 is always "no
	// packing". ConstructLayout indexes packingPerLevel by level number
	// directly, so levels must be visited in ascending, gap-free order.
	for _, lvl := range levels {
		lay := base[lvl]
		lineCap := state.StorageLevelLineCapacity[lvl]
		opts := []PackingOption{{}} // sentinel no-op at index 0
		for _, dsName := range lay.DataSpaceNames {
			nests := lay.Nests[dsName]
			usedIntraline := nests.Intraline.Product()
			headroom := int64(lineCap) / maxInt64(usedIntraline, 1)
			if headroom <= 1 {
				continue
			}
			for _, rank := range nests.Interline.Ranks {
				interFactor := int(nests.Interline.Factors[rank])
				for _, d := range divisors(interFactor) {
					if d > 1 && int64(d) <= headroom {
						opts = append(opts, PackingOption{DataSpace: dsName, Rank: rank, Divisor: d})
					}
				}
			}
		}
		sp.packingPerLevel = append(sp.packingPerLevel, opts)
	}

	sp.splittingSize = sizeOf(sp.splittingRanges)
	sp.authSize = sizeOf(sp.authRanges)
	sp.packingSize = 1
	for _, opts := range sp.packingPerLevel {
		sp.packingSize *= uint64(len(opts))
	}
	if sp.splittingSize == 0 {
		sp.splittingSize = 1
	}
	if sp.authSize == 0 {
		sp.authSize = 1
	}
	if sp.packingSize == 0 {
		sp.packingSize = 1
	}
	return sp, nil
}

// ConstructLayout decodes (splittingID, packingID, authID) into a concrete
// per-level layout map by applying each sub-space's chosen divisors to a
// deep copy of the base concordant layout (spec.md section 4.3,
// ConstructLayout).
func (s *Space) ConstructLayout(splittingID, packingID, authID uint64) (map[int]*layout.Layout, error) {
	if splittingID >= s.splittingSize {
		return nil, apperrors.New(apperrors.CodeLayoutConstruction, fmt.Sprintf("splitting id %d out of range [0,%d)", splittingID, s.splittingSize), nil)
	}
	if packingID >= s.packingSize {
		return nil, apperrors.New(apperrors.CodeLayoutConstruction, fmt.Sprintf("packing id %d out of range [0,%d)", packingID, s.packingSize), nil)
	}
	if authID >= s.authSize {
		return nil, apperrors.New(apperrors.CodeLayoutConstruction, fmt.Sprintf("auth id %d out of range [0,%d)", authID, s.authSize), nil)
	}

	out := cloneLayouts(s.base)

	rem := splittingID
	for i, rng := range s.splittingRanges {
		n := uint64(len(rng))
		divisor := rng[rem%n]
		rem /= n
		v := s.splittingVars[i]
		nests := out[v.Level].Nests[v.DataSpace]
		inter := nests.Interline.Factors[v.Rank]
		if divisor == 0 || int(inter)%divisor != 0 {
			return nil, apperrors.New(apperrors.CodeLayoutConstruction,
				fmt.Sprintf("splitting divisor %d does not divide interline factor %d for rank %s at level %d", divisor, inter, v.Rank, v.Level), nil)
		}
		nests.Interline.Factors[v.Rank] = inter / uint32(divisor)
		nests.Intraline.Factors[v.Rank] = nests.Intraline.Factors[v.Rank] * uint32(divisor)
		out[v.Level].Nests[v.DataSpace] = nests
	}

	remPack := packingID
	for lvl, opts := range s.packingPerLevel {
		n := uint64(len(opts))
		idx := remPack % n
		remPack /= n
		opt := opts[idx]
		if opt.Rank == "" {
			continue
		}
		nests := out[lvl].Nests[opt.DataSpace]
		inter := nests.Interline.Factors[opt.Rank]
		if opt.Divisor == 0 || int(inter)%opt.Divisor != 0 {
			return nil, apperrors.New(apperrors.CodeLayoutConstruction,
				fmt.Sprintf("packing divisor %d does not divide interline factor %d for rank %s at level %d", opt.Divisor, inter, opt.Rank, lvl), nil)
		}
		nests.Interline.Factors[opt.Rank] = inter / uint32(opt.Divisor)
		nests.Intraline.Factors[opt.Rank] = nests.Intraline.Factors[opt.Rank] * uint32(opt.Divisor)
		out[lvl].Nests[opt.DataSpace] = nests
	}

	remAuth := authID
	for i, rng := range s.authRanges {
		n := uint64(len(rng))
		divisor := rng[remAuth%n]
		remAuth /= n
		v := s.authVars[i]
		nests := out[v.Level].Nests[v.DataSpace]
		nests.AuthblockLines.Factors[v.Rank] = uint32(divisor)
		out[v.Level].Nests[v.DataSpace] = nests
	}

	for lvl, lay := range out {
		blockSize := s.a.Levels[lvl].LineCapacity()
		for _, dsName := range lay.DataSpaceNames {
			product := lay.Nests[dsName].Intraline.Product()
			if blockSize > 0 && product > uint64(blockSize) {
				return nil, apperrors.New(apperrors.CodeModelInvariant,
					fmt.Sprintf("level %d data space %s: intraline product %d exceeds block size %d", lvl, dsName, product, blockSize), nil).
					WithDetails("level", lvl).WithDetails("product", product).WithDetails("blockSize", blockSize)
			}
		}
	}

	return out, nil
}

// ClearAuthblockFactors resets every authblock_lines factor to 1, used by
// the splitting/packing phases to isolate their effect from the auth
// sub-space (spec.md section 4.2).
func ClearAuthblockFactors(layouts map[int]*layout.Layout) map[int]*layout.Layout {
	out := cloneLayouts(layouts)
	for _, lay := range out {
		for ds, nests := range lay.Nests {
			for r := range nests.AuthblockLines.Factors {
				nests.AuthblockLines.Factors[r] = 1
			}
			lay.Nests[ds] = nests
		}
	}
	return out
}

func cloneLayouts(in map[int]*layout.Layout) map[int]*layout.Layout {
	out := make(map[int]*layout.Layout, len(in))
	for lvl, lay := range in {
		cp := *lay
		cp.Nests = make(map[string]layout.DataSpaceNests, len(lay.Nests))
		for ds, nests := range lay.Nests {
			cp.Nests[ds] = layout.DataSpaceNests{
				Interline:      cloneNest(nests.Interline),
				Intraline:      cloneNest(nests.Intraline),
				AuthblockLines: cloneNest(nests.AuthblockLines),
			}
		}
		out[lvl] = &cp
	}
	return out
}

func cloneNest(n layout.Nest) layout.Nest {
	cp := layout.Nest{Ranks: append([]string(nil), n.Ranks...), Factors: make(map[string]uint32, len(n.Factors))}
	for k, v := range n.Factors {
		cp.Factors[k] = v
	}
	return cp
}

func productAt(state *layout.SpaceState, level, dimID int) int {
	if level < 0 || level >= len(state.CumulativelyProductDimVal) {
		return 1
	}
	return state.CumulativelyProductDimVal[level][dimID]
}

func maxInt64(a uint64, b int64) int64 {
	if int64(a) > b {
		return int64(a)
	}
	return b
}

func sizeOf(ranges [][]int) uint64 {
	size := uint64(1)
	for _, r := range ranges {
		size *= uint64(len(r))
	}
	return size
}

// divisors returns the sorted list of positive divisors of n (n >= 1).
func divisors(n int) []int {
	if n <= 0 {
		return []int{1}
	}
	var out []int
	for d := 1; d*d <= n; d++ {
		if n%d == 0 {
			out = append(out, d)
			if d != n/d {
				out = append(out, n/d)
			}
		}
	}
	sort.Ints(out)
	return out
}
