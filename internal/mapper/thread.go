package mapper

import (
	"fmt"
	"math/rand"

	"github.com/maeri-project/squareloop/internal/layout"
	"github.com/maeri-project/squareloop/internal/layoutspace"
	"github.com/maeri-project/squareloop/internal/mapping"
	"github.com/maeri-project/squareloop/internal/mapspace"
	"github.com/maeri-project/squareloop/internal/statusboard"
	"github.com/maeri-project/squareloop/internal/topology"
	apperrors "github.com/maeri-project/squareloop/pkg/errors"
)

// Thread is one worker's exclusive state: its map-space partition,
// iterator, thread-local statistics, and layout-space objects (spec.md
// section 5, "each worker owns its map-space, its search iterator, its
// thread-local statistics, and its layout-space objects exclusively").
type Thread struct {
	id    int
	m     *Mapper
	space *mapspace.MapSpace

	totalMappings           uint64
	invalidMapcnstr         uint64
	invalidEval             uint64
	validMappings           uint64
	mappingsSinceLastBest   uint64

	threadBest      topology.EvaluationResult
	bestMapping     mapping.Mapping
	bestLayouts     map[int]*layout.Layout
	bestState       *layout.SpaceState
	diag            *Diagnostics

	prevTuple    mapspace.SubDimensionTuple
	havePrevTuple bool

	observed statusboard.Row // counters last published to metrics

	rng *rand.Rand
}

// NewThread creates a worker for one map-space partition.
func NewThread(id int, m *Mapper, space *mapspace.MapSpace) *Thread {
	return &Thread{
		id:    id,
		m:     m,
		space: space,
		diag:  NewDiagnostics(),
		rng:   rand.New(rand.NewSource(int64(id) + 1)),
	}
}

// shouldTerminate checks the first four termination conditions of spec.md
// section 4.2, in order; the fifth (the map-space iterator is exhausted)
// is checked by Run.
func (t *Thread) shouldTerminate() bool {
	if t.m.shouldTerminate() {
		return true
	}
	if t.m.opts.SearchSize > 0 && t.validMappings >= t.m.opts.SearchSize {
		return true
	}
	if t.m.opts.VictoryCondition > 0 && t.mappingsSinceLastBest >= t.m.opts.VictoryCondition {
		return true
	}
	if t.m.opts.Timeout > 0 && (t.invalidMapcnstr+t.invalidEval) >= t.m.opts.Timeout {
		return true
	}
	return false
}

// Run executes the per-iteration pipeline until a termination condition
// fires, then runs the final layout search (spec.md section 4.2).
func (t *Thread) Run() {
	var id uint64
	for {
		if t.shouldTerminate() {
			break
		}
		if !t.space.Next(&id) {
			break
		}
		t.iterate(id)

		if t.m.opts.SyncInterval > 0 && t.totalMappings%t.m.opts.SyncInterval == 0 {
			t.sync()
		}
		if t.m.opts.LogInterval > 0 && int(t.totalMappings)%t.m.opts.LogInterval == 0 {
			row := t.statusRow()
			if t.m.opts.LiveStatus {
				t.m.updateStatusRow(t.id, row)
			}
			delta := row
			delta.Total -= t.observed.Total
			delta.Invalid -= t.observed.Invalid
			delta.Valid -= t.observed.Valid
			t.m.observeMetrics(t.id, delta)
			t.observed = row
		}
	}

	if t.threadBest.Valid {
		t.finalLayoutSearch()
	}
	t.sync()
	t.m.mergeDiagnostics(t.diag)
}

func (t *Thread) statusRow() statusboard.Row {
	return statusboard.Row{
		ThreadID:           t.id,
		Total:              t.totalMappings,
		Invalid:            t.invalidMapcnstr + t.invalidEval,
		Valid:              t.validMappings,
		MappingsSinceBest:   t.mappingsSinceLastBest,
		BestCycles:          t.threadBest.Cycles,
		BestEnergyPJ:        t.threadBest.EnergyPJ,
		BestUtilization:     t.threadBest.Utilization,
	}
}

// iterate runs one pass of the per-iteration pipeline (spec.md section
// 4.2): construct, check loop-count cap, precheck, evaluate, record.
func (t *Thread) iterate(id uint64) {
	t.totalMappings++

	tuple := t.space.Decompose(id)
	onlyBypass := t.havePrevTuple && mapspace.OnlyBypassChanged(t.prevTuple, tuple)
	t.prevTuple, t.havePrevTuple = tuple, true

	m, statuses, err := t.space.ConstructMapping(id)
	if err != nil || !allSucceeded(statuses) {
		if !(onlyBypass && !t.m.opts.PenalizeConsecutiveBypassFails) {
			t.invalidMapcnstr++
		}
		reason := "unknown"
		level := -1
		for _, s := range statuses {
			if !s.Success {
				reason, level = s.Reason, s.Level
				break
			}
		}
		t.diag.Record(FailFanout, level, reason, fmt.Sprintf("id=%d", id))
		return
	}

	if t.m.opts.MaxTemporalLoopsInAMapping > 0 {
		count := 0
		for _, l := range m.Nest.Loops {
			if !l.SpaceTime.IsSpatial() && l.Extent() > l.Stride {
				count++
			}
		}
		if count > t.m.opts.MaxTemporalLoopsInAMapping {
			t.invalidMapcnstr++
			t.diag.Record(FailFanout, -1, "too many temporal loops", fmt.Sprintf("id=%d", id))
			return
		}
	}

	layouts, state, err := layout.CreateConcordantLayout(m, t.m.shp, t.m.a)
	if err != nil {
		t.invalidMapcnstr++
		t.diag.Record(FailFanout, -1, err.Error(), fmt.Sprintf("id=%d", id))
		return
	}

	if err := topology.PreEvaluationCheck(t.m.shp, t.m.a, layouts, state); err != nil {
		if !(onlyBypass && !t.m.opts.PenalizeConsecutiveBypassFails) {
			t.invalidEval++
		}
		code, _ := apperrors.Code(err)
		t.diag.Record(FailCapacity, -1, string(code), fmt.Sprintf("id=%d", id))
		return
	}

	result, _, ok := t.searchLayout(m, layouts, state)
	if !ok {
		t.invalidEval++
		t.diag.Record(FailLayoutConstruction, -1, "no legal layout found", fmt.Sprintf("id=%d", id))
		return
	}

	t.validMappings++
	t.recordResult(result, m, layouts, state)
}

// searchLayout runs Phase 1 (Splitting) and, if worthwhile, Phase 2
// (Packing) of spec.md section 4.2 step 6, evaluating each candidate with
// authblock factors cleared to isolate the phase's effect.
func (t *Thread) searchLayout(m mapping.Mapping, layouts map[int]*layout.Layout, state *layout.SpaceState) (topology.EvaluationResult, *layoutspace.Space, bool) {
	space, err := layoutspace.CreateSpace(t.m.shp, t.m.a, layouts, state)
	if err != nil {
		return topology.EvaluationResult{}, nil, false
	}
	_, packingCandidates, _, _ := space.NumCandidates()

	cleared := layoutspace.ClearAuthblockFactors(layouts)
	clearedSpace, err := layoutspace.CreateSpace(t.m.shp, t.m.a, cleared, state)
	if err != nil {
		return topology.EvaluationResult{}, nil, false
	}
	splittingCandidates, _, _, _ := clearedSpace.NumCandidates()

	var best topology.EvaluationResult
	var bestSplitID uint64
	for sid := uint64(0); sid < splittingCandidates; sid++ {
		candidateLayouts, err := clearedSpace.ConstructLayout(sid, 0, 0)
		if err != nil {
			continue
		}
		res, err := topology.Evaluate(t.m.shp, t.m.a, m, candidateLayouts, state, t.m.crypto)
		if err != nil {
			continue
		}
		if !best.Valid || betterForPhase(res, best) {
			best, bestSplitID = res, sid
		}
	}
	if !best.Valid {
		return topology.EvaluationResult{}, space, false
	}

	if packingCandidates > 1 {
		for pid := uint64(1); pid < packingCandidates; pid++ {
			candidateLayouts, err := clearedSpace.ConstructLayout(bestSplitID, pid, 0)
			if err != nil {
				continue
			}
			res, err := topology.Evaluate(t.m.shp, t.m.a, m, candidateLayouts, state, t.m.crypto)
			if err != nil {
				continue
			}
			if betterForPhase(res, best) {
				best = res
			}
		}
	}

	return best, space, true
}

// betterForPhase is the Phase 1/2 acceptance criterion of spec.md section
// 4.2: "strictly smaller cycles or (tie) strictly smaller energy-per-
// compute."
func betterForPhase(candidate, best topology.EvaluationResult) bool {
	if candidate.Cycles < best.Cycles {
		return true
	}
	if candidate.Cycles == best.Cycles && candidate.EnergyPJ < best.EnergyPJ {
		return true
	}
	return false
}

func (t *Thread) recordResult(result topology.EvaluationResult, m mapping.Mapping, layouts map[int]*layout.Layout, state *layout.SpaceState) {
	merged := topology.UpdateIfBetter(t.threadBest, result, t.m.opts.Metric)
	if merged.Cycles != t.threadBest.Cycles || merged.EnergyPJ != t.threadBest.EnergyPJ || !t.threadBest.Valid {
		t.threadBest = merged
		t.bestMapping = m
		t.bestLayouts = layouts
		t.bestState = state
		t.mappingsSinceLastBest = 0
	} else {
		t.mappingsSinceLastBest++
	}
}

func (t *Thread) sync() {
	pulled := t.m.pullBest()
	merged := topology.UpdateIfBetter(t.threadBest, pulled.Result, t.m.opts.Metric)
	if pulled.Result.Valid && merged.Cycles == pulled.Result.Cycles && merged.EnergyPJ == pulled.Result.EnergyPJ {
		t.threadBest = pulled.Result
		t.bestMapping = pulled.Mapping
		t.bestLayouts = pulled.Layouts
		t.bestState = pulled.State
	}
	t.m.pushBest(BestPayload{Result: t.threadBest, Mapping: t.bestMapping, Layouts: t.bestLayouts, State: t.bestState})
}

// finalLayoutSearch runs the three-phase final layout search of spec.md
// section 4.2 after the main loop exits, using the mapping that produced
// thread_best: install dummy authblock factors, sweep splitting, fix and
// sweep packing, then randomly sample the auth sub-space with an
// early-exit on consecutive barely-better acceptances.
func (t *Thread) finalLayoutSearch() {
	if t.bestLayouts == nil {
		return
	}
	cleared := layoutspace.ClearAuthblockFactors(t.bestLayouts)
	space, err := layoutspace.CreateSpace(t.m.shp, t.m.a, cleared, t.bestState)
	if err != nil {
		return
	}
	splittingN, packingN, authN, _ := space.NumCandidates()

	var bestLayouts map[int]*layout.Layout

	// Phase 1 — Splitting.
	var best topology.EvaluationResult
	var bestSplit uint64
	for sid := uint64(0); sid < splittingN; sid++ {
		candidate, err := space.ConstructLayout(sid, 0, 0)
		if err != nil {
			continue
		}
		res, err := topology.Evaluate(t.m.shp, t.m.a, t.bestMapping, candidate, t.bestState, t.m.crypto)
		if err != nil {
			continue
		}
		if !best.Valid || betterForPhase(res, best) {
			best, bestSplit, bestLayouts = res, sid, candidate
		}
	}

	// Phase 2 — Packing, splitting fixed.
	var bestPacking uint64
	if packingN > 1 {
		for pid := uint64(0); pid < packingN; pid++ {
			candidate, err := space.ConstructLayout(bestSplit, pid, 0)
			if err != nil {
				continue
			}
			res, err := topology.Evaluate(t.m.shp, t.m.a, t.bestMapping, candidate, t.bestState, t.m.crypto)
			if err != nil {
				continue
			}
			if !best.Valid || betterForPhase(res, best) {
				best, bestPacking, bestLayouts = res, pid, candidate
			}
		}
	}

	// Phase 3 — Auth, splitting and packing fixed, random sampling with
	// early exit after auth_phase_patience consecutive barely-better
	// acceptances (epsilon = auth_phase_epsilon pJ/compute).
	patience := t.m.opts.AuthPhasePatience
	if patience <= 0 {
		patience = 10
	}
	epsilon := t.m.opts.AuthPhaseEpsilon
	if epsilon <= 0 {
		epsilon = 0.1
	}
	authBest := topology.EvaluationResult{}
	var authLayouts map[int]*layout.Layout
	barelyBetterStreak := 0
	maxSamples := authN
	if maxSamples > 10000 {
		maxSamples = 10000
	}
	for sampled := uint64(0); authN > 0 && sampled < maxSamples; sampled++ {
		aid := uint64(t.rng.Int63n(int64(authN)))
		candidate, err := space.ConstructLayout(bestSplit, bestPacking, aid)
		if err != nil {
			continue
		}
		res, err := topology.Evaluate(t.m.shp, t.m.a, t.bestMapping, candidate, t.bestState, t.m.crypto)
		if err != nil {
			continue
		}
		if !authBest.Valid {
			authBest, authLayouts = res, candidate
			barelyBetterStreak = 0
			continue
		}
		if !betterForPhase(res, authBest) {
			continue
		}
		improvement := authBest.EnergyPJ - res.EnergyPJ
		authBest, authLayouts = res, candidate
		if improvement < epsilon {
			barelyBetterStreak++
		} else {
			barelyBetterStreak = 0
		}
		if barelyBetterStreak >= patience {
			break
		}
	}
	if authBest.Valid {
		best, bestLayouts = authBest, authLayouts
	}

	// Fallback: no phase found a valid layout.
	if !best.Valid {
		fallback, fallbackState, err := layout.SequentialFactorized(t.bestMapping, t.m.shp, t.m.a)
		if err == nil {
			if res, err := topology.Evaluate(t.m.shp, t.m.a, t.bestMapping, fallback, fallbackState, t.m.crypto); err == nil {
				best, bestLayouts = res, fallback
				t.bestState = fallbackState
			}
		}
	}

	if best.Valid {
		t.threadBest = best
		if bestLayouts != nil {
			t.bestLayouts = bestLayouts
		}
	}
}

func allSucceeded(statuses []mapspace.LevelStatus) bool {
	for _, s := range statuses {
		if !s.Success {
			return false
		}
	}
	return true
}
