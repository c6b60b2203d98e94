// Package mapper implements spec.md C9/C10: a pool of worker goroutines,
// one per map-space partition, searching independently and merging their
// best result under a single shared mutex (teacher pattern:
// arx-os-arxos/internal/daemon.Daemon's worker-pool/WaitGroup/mutex model,
// generalized from file-import workers to mapping-search workers).
package mapper

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/maeri-project/squareloop/internal/arch"
	"github.com/maeri-project/squareloop/internal/bufferlevel"
	"github.com/maeri-project/squareloop/internal/layout"
	"github.com/maeri-project/squareloop/internal/logger"
	"github.com/maeri-project/squareloop/internal/mapping"
	"github.com/maeri-project/squareloop/internal/mapspace"
	"github.com/maeri-project/squareloop/internal/metrics"
	"github.com/maeri-project/squareloop/internal/shape"
	"github.com/maeri-project/squareloop/internal/statusboard"
	"github.com/maeri-project/squareloop/internal/topology"
)

// BestPayload bundles the global best's evaluation result with the
// mapping and layouts that produced it, so callers can emit all four
// result artifacts of spec.md section 6, not just the aggregate stats.
type BestPayload struct {
	Result  topology.EvaluationResult
	Mapping mapping.Mapping
	Layouts map[int]*layout.Layout
	State   *layout.SpaceState
}

// Options configures a Mapper run, mirroring the `mapper` config tree.
type Options struct {
	NumThreads                     int
	Metric                          topology.Metric
	SearchSize                      uint64
	Timeout                         uint64
	VictoryCondition                uint64
	SyncInterval                    uint64
	LogInterval                     int
	MaxTemporalLoopsInAMapping      int
	LiveStatus                      bool
	LogStats                        bool
	PenalizeConsecutiveBypassFails  bool
	AuthPhasePatience               int
	AuthPhaseEpsilon                float64
}

// Mapper owns the shared state (best result, status board) and spawns one
// Thread per map-space partition.
type Mapper struct {
	shp    *shape.Shape
	a      *arch.Architecture
	crypto bufferlevel.CryptoSpec
	opts   Options

	mu       sync.Mutex
	best     BestPayload
	diag     *Diagnostics
	terminate int32

	board *statusboard.Board
	log   *logger.Logger
	mets  *metrics.Collector
}

// sharedMetrics is registered once per process: the collector's series
// live in the default prometheus registry, where registering them a second
// time panics, and a process may construct more than one Mapper.
var (
	sharedMetricsOnce sync.Once
	sharedMetrics     *metrics.Collector
)

// New constructs a Mapper ready to Run over the given map-space.
func New(shp *shape.Shape, a *arch.Architecture, crypto bufferlevel.CryptoSpec, opts Options) *Mapper {
	if opts.NumThreads <= 0 {
		opts.NumThreads = runtime.NumCPU()
	}
	sharedMetricsOnce.Do(func() { sharedMetrics = metrics.New() })
	return &Mapper{
		shp:    shp,
		a:      a,
		crypto: crypto,
		opts:   opts,
		diag:   NewDiagnostics(),
		board:  statusboard.New(opts.NumThreads),
		log:    logger.New(logger.INFO).Named("mapper"),
		mets:   sharedMetrics,
	}
}

// Terminate cooperatively stops every worker at the top of its next
// iteration (spec.md section 5, "global terminate flag").
func (m *Mapper) Terminate() {
	atomic.StoreInt32(&m.terminate, 1)
}

func (m *Mapper) shouldTerminate() bool {
	return atomic.LoadInt32(&m.terminate) != 0
}

// Run partitions the full map-space into opts.NumThreads pieces, spawns
// one worker goroutine per partition, and blocks until all finish
// (spec.md section 5, "Join() waits for all workers to finish their
// current iteration and run the final layout phase").
func (m *Mapper) Run(ms *mapspace.MapSpace) (BestPayload, *Diagnostics) {
	partitions := ms.Split(m.opts.NumThreads)

	var wg sync.WaitGroup
	for i, part := range partitions {
		wg.Add(1)
		go func(id int, space *mapspace.MapSpace) {
			defer wg.Done()
			t := NewThread(id, m, space)
			t.Run()
		}(i, part)
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.best, m.diag
}

// pullBest copies the current global best under the shared mutex
// (spec.md section 5, "a worker pulls best -> thread_best first").
func (m *Mapper) pullBest() BestPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.best
}

// pushBest publishes threadBest if it improves the global best, returning
// true only when it replaced a previously valid global best (spec.md
// section 5, "then pushes thread_best -> best if the global best did not
// improve it").
func (m *Mapper) pushBest(threadBest BestPayload) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := topology.UpdateIfBetter(m.best.Result, threadBest.Result, m.opts.Metric)
	adopted := threadBest.Result.Valid && merged.Cycles == threadBest.Result.Cycles && merged.EnergyPJ == threadBest.Result.EnergyPJ
	improved := adopted && m.best.Result.Valid
	if adopted {
		m.best = threadBest
	}
	return improved
}

func (m *Mapper) mergeDiagnostics(d *Diagnostics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diag.Merge(d)
}

func (m *Mapper) updateStatusRow(id int, row statusboard.Row) {
	if !m.opts.LiveStatus {
		return
	}
	m.board.Update(id, row)
}

// observeMetrics publishes one worker's counter increments since its
// previous call and its current gauges, in the row shape the status board
// renders (spec.md section 4.2's progress
// statistics, exported as prometheus series alongside the terminal view).
func (m *Mapper) observeMetrics(id int, row statusboard.Row) {
	m.mets.Observe(
		fmt.Sprintf("%d", id),
		row.Total, row.Invalid, row.Valid,
		row.BestCycles, row.BestEnergyPJ, row.BestUtilization,
	)
}
