// Package shape holds the immutable description of a workload: its
// factorized dimensions, data spaces, and the affine rank projections that
// map dimension points onto data-space coordinates (spec.md C1).
package shape

import (
	"fmt"

	apperrors "github.com/maeri-project/squareloop/pkg/errors"
)

// Dimension is an integer-indexed named axis with a positive bound.
type Dimension struct {
	Name  string
	ID    int
	Bound int
}

// Coefficient is a named multiplier used in a rank's affine expression,
// e.g. the "stride" coefficient of an im2col rank. Coefficients carry a
// default so a projection may omit them.
type Coefficient struct {
	Name    string
	Default int
}

// Rank is an affine projection of one or more dimensions:
// rank_expr = sum_i coefficient_i * dim_i.
type Rank struct {
	Name         string
	DimIDs       []int
	Coefficients []int // parallel to DimIDs; resolved coefficient values
}

// Value evaluates the rank's affine expression at the given dimension point
// (indexed by dimension id).
func (r Rank) Value(point []int) int {
	total := 0
	for i, dimID := range r.DimIDs {
		total += r.Coefficients[i] * point[dimID]
	}
	return total
}

// IsMultiDim reports whether this rank projects more than one dimension.
func (r Rank) IsMultiDim() bool {
	return len(r.DimIDs) > 1
}

// DataSpace is a named tensor with an ordered list of ranks.
type DataSpace struct {
	Name      string
	ID        int
	Order     int // number of ranks, i.e. tensor order/rank count
	Ranks     []Rank
	ReadWrite bool
}

// WriteDataSpaceIndex is the hard-coded convention (spec.md section 9,
// Open Question 2) under which the bank-conflict engine treats data space
// index 2 as the write/output data space. Not configurable.
const WriteDataSpaceIndex = 2

// Shape is the immutable, process-independent context threaded explicitly
// through every computation that needs dimension or rank lookups (design
// notes section 9: "pass the shape explicitly through an immutable
// context" rather than a process-global GetShape()).
type Shape struct {
	Dimensions []Dimension
	DataSpaces []DataSpace

	dimByName  map[string]int
	dsByName   map[string]int
}

// New builds a Shape and its name-lookup indices, validating that every
// rank's dimension ids are in range.
func New(dims []Dimension, dataSpaces []DataSpace) (*Shape, error) {
	s := &Shape{
		Dimensions: dims,
		DataSpaces: dataSpaces,
		dimByName:  make(map[string]int, len(dims)),
		dsByName:   make(map[string]int, len(dataSpaces)),
	}
	for _, d := range dims {
		if d.Bound <= 0 {
			return nil, apperrors.New(apperrors.CodeShapeUnderflow,
				fmt.Sprintf("dimension %q has non-positive bound %d", d.Name, d.Bound), nil)
		}
		s.dimByName[d.Name] = d.ID
	}
	for _, ds := range dataSpaces {
		s.dsByName[ds.Name] = ds.ID
		for _, r := range ds.Ranks {
			for _, dimID := range r.DimIDs {
				if dimID < 0 || dimID >= len(dims) {
					return nil, apperrors.New(apperrors.CodeShapeUnderflow,
						fmt.Sprintf("rank %q of data space %q references unknown dimension id %d", r.Name, ds.Name, dimID), nil)
				}
			}
		}
	}
	return s, nil
}

// DimensionID resolves a dimension name to its id.
func (s *Shape) DimensionID(name string) (int, bool) {
	id, ok := s.dimByName[name]
	return id, ok
}

// DataSpaceByName resolves a data space name.
func (s *Shape) DataSpaceByName(name string) (DataSpace, bool) {
	id, ok := s.dsByName[name]
	if !ok {
		return DataSpace{}, false
	}
	return s.DataSpaces[id], true
}

// NumDims returns the number of factorized dimensions in this workload.
func (s *Shape) NumDims() int { return len(s.Dimensions) }

// NumDataSpaces returns the number of data spaces in this workload.
func (s *Shape) NumDataSpaces() int { return len(s.DataSpaces) }

// Bound returns the bound of dimension id, or 0 if out of range.
func (s *Shape) Bound(dimID int) int {
	if dimID < 0 || dimID >= len(s.Dimensions) {
		return 0
	}
	return s.Dimensions[dimID].Bound
}
