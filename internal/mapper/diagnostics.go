package mapper

import (
	"math/rand"
	"sync"
)

// FailClass names one of the three search-continuing failure kinds of
// spec.md section 7 (Fanout = mapping construction, Capacity = eval
// precheck, LayoutConstruction); ModelInvariant has no class here and is
// never recorded in diagnostics.
type FailClass string

const (
	FailFanout            FailClass = "Fanout"
	FailCapacity          FailClass = "Capacity"
	FailLayoutConstruction FailClass = "LayoutConstruction"
)

// failKey identifies one (fail_class, level) bucket of spec.md section 7's
// diagnostic aggregation.
type failKey struct {
	Class FailClass
	Level int
}

// failBucket is one bucket's reservoir: a count and the currently
// retained sample, replaced with probability 1/count on each new
// occurrence (uniform reservoir sampling of size 1).
type failBucket struct {
	Count  int
	Sample string
	Reason string
}

// Diagnostics aggregates per-thread fail_stats into the global map merged
// at shutdown (spec.md section 7, "diagnostic aggregation merges
// per-thread fail_stats into a global map at shutdown. Only the
// first-seen sample mapping per (fail_class, level) is preserved, rotated
// uniformly at random across repeated occurrences").
type Diagnostics struct {
	mu      sync.Mutex
	buckets map[failKey]*failBucket
	rng     *rand.Rand
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{
		buckets: make(map[failKey]*failBucket),
		rng:     rand.New(rand.NewSource(1)),
	}
}

// Record adds one occurrence of (class, level) with the given mapping
// description as its candidate sample, using reservoir sampling to decide
// whether it replaces the currently retained sample.
func (d *Diagnostics) Record(class FailClass, level int, reason, mappingDesc string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := failKey{Class: class, Level: level}
	b, ok := d.buckets[key]
	if !ok {
		b = &failBucket{}
		d.buckets[key] = b
	}
	b.Count++
	if b.Count == 1 || d.rng.Intn(b.Count) == 0 {
		b.Sample = mappingDesc
		b.Reason = reason
	}
}

// Merge folds another Diagnostics' buckets into this one, preserving
// reservoir-sampling fairness across the combined counts.
func (d *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	other.mu.Lock()
	snapshot := make(map[failKey]failBucket, len(other.buckets))
	for k, v := range other.buckets {
		snapshot[k] = *v
	}
	other.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	for k, ob := range snapshot {
		b, ok := d.buckets[k]
		if !ok {
			cp := ob
			d.buckets[k] = &cp
			continue
		}
		combined := b.Count + ob.Count
		if combined > 0 && d.rng.Intn(combined) < ob.Count {
			b.Sample = ob.Sample
			b.Reason = ob.Reason
		}
		b.Count = combined
	}
}

// Summary returns a stable snapshot of every bucket for reporting.
type Summary struct {
	Class  FailClass
	Level  int
	Count  int
	Sample string
	Reason string
}

func (d *Diagnostics) Summary() []Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Summary, 0, len(d.buckets))
	for k, b := range d.buckets {
		out = append(out, Summary{Class: k.Class, Level: k.Level, Count: b.Count, Sample: b.Sample, Reason: b.Reason})
	}
	return out
}
