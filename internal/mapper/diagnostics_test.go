package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnostics_RecordAccumulatesCountPerBucket(t *testing.T) {
	d := NewDiagnostics()
	d.Record(FailCapacity, 2, "over capacity", "mapping-a")
	d.Record(FailCapacity, 2, "over capacity", "mapping-b")
	d.Record(FailFanout, 0, "fanout exceeded", "mapping-c")

	summary := d.Summary()
	require.Len(t, summary, 2)

	byKey := make(map[failKey]Summary, len(summary))
	for _, s := range summary {
		byKey[failKey{Class: s.Class, Level: s.Level}] = s
	}
	assert.Equal(t, 2, byKey[failKey{Class: FailCapacity, Level: 2}].Count)
	assert.Equal(t, 1, byKey[failKey{Class: FailFanout, Level: 0}].Count)
}

func TestDiagnostics_FirstOccurrenceIsAlwaysRetained(t *testing.T) {
	d := NewDiagnostics()
	d.Record(FailCapacity, 0, "reason-1", "only-sample")
	summary := d.Summary()
	require.Len(t, summary, 1)
	assert.Equal(t, "only-sample", summary[0].Sample)
	assert.Equal(t, "reason-1", summary[0].Reason)
}

func TestDiagnostics_MergeCombinesCountsAcrossThreads(t *testing.T) {
	a := NewDiagnostics()
	a.Record(FailCapacity, 1, "r1", "a-sample")

	b := NewDiagnostics()
	b.Record(FailCapacity, 1, "r2", "b-sample-1")
	b.Record(FailCapacity, 1, "r2", "b-sample-2")

	a.Merge(b)
	summary := a.Summary()
	require.Len(t, summary, 1)
	assert.Equal(t, 3, summary[0].Count)
}

func TestDiagnostics_MergeNilIsANoOp(t *testing.T) {
	d := NewDiagnostics()
	d.Record(FailFanout, 0, "r", "s")
	d.Merge(nil)
	assert.Len(t, d.Summary(), 1)
}

func TestDiagnostics_MergeIntoEmptyCopiesBucketsVerbatim(t *testing.T) {
	a := NewDiagnostics()
	b := NewDiagnostics()
	b.Record(FailLayoutConstruction, 3, "bad divisor", "sample-x")

	a.Merge(b)
	summary := a.Summary()
	require.Len(t, summary, 1)
	assert.Equal(t, FailLayoutConstruction, summary[0].Class)
	assert.Equal(t, 3, summary[0].Level)
	assert.Equal(t, 1, summary[0].Count)
	assert.Equal(t, "sample-x", summary[0].Sample)
}
