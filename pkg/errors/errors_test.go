package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_BuildsAnAppErrorWithEmptyDetails(t *testing.T) {
	err := New(CodeConfig, "bad config", nil)
	assert.Equal(t, CodeConfig, err.Code)
	assert.Equal(t, "bad config", err.Message)
	assert.NotNil(t, err.Details)
	assert.Equal(t, "CONFIG: bad config", err.Error())
}

func TestError_IncludesWrappedErrorWhenPresent(t *testing.T) {
	wrapped := errors.New("underlying failure")
	err := New(CodeShapeUnderflow, "dimension missing", wrapped)
	assert.Equal(t, "SHAPE_UNDERFLOW: dimension missing: underlying failure", err.Error())
	assert.Equal(t, wrapped, err.Unwrap())
}

func TestWithDetails_ChainsAndAccumulatesKeys(t *testing.T) {
	err := New(CodeEvalPrecheck, "capacity exceeded", nil).
		WithDetails("level", 2).
		WithDetails("reason", "overflow")
	assert.Equal(t, 2, err.Details["level"])
	assert.Equal(t, "overflow", err.Details["reason"])
}

func TestCode_ExtractsCodeThroughWrapping(t *testing.T) {
	inner := New(CodeModelInvariant, "intraline overflow", nil)
	wrapped := errorsFmtWrap(inner)

	code, ok := Code(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeModelInvariant, code)
}

func TestCode_ReturnsFalseForAPlainError(t *testing.T) {
	_, ok := Code(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsCode_MatchesOnlyTheGivenCode(t *testing.T) {
	err := New(CodeLayoutConstruction, "bad divisor", nil)
	assert.True(t, IsCode(err, CodeLayoutConstruction))
	assert.False(t, IsCode(err, CodeConfig))
}

// errorsFmtWrap wraps err the way a caller using %w would, to exercise
// Code/IsCode's errors.As traversal through a layer of wrapping.
func errorsFmtWrap(err error) error {
	return &wrapper{err: err}
}

type wrapper struct{ err error }

func (w *wrapper) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapper) Unwrap() error { return w.err }
