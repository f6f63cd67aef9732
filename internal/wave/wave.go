// Package wave implements the Wave Planner (spec §4.8): at each level-queue
// boundary it drains routing events, decides whether to preempt, rebuilds
// a sub-graph for forward-run targets via the Dependency Planner, applies
// onFinish wave-retry for ifCondition-skipped checks, and reports whether
// any work remains.
package wave

import (
	"sort"

	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/journal"
	"github.com/probelabs/visor-sub002/internal/planner"
	"github.com/probelabs/visor-sub002/internal/routing"
)

// State is the Wave Planner's slice of RunState (§3): the wave counter,
// the still-pending levels of the current wave, the accumulated routing
// event queue, the onFinish accumulator, and the forward-run dedup guards.
type State struct {
	Wave              int
	PendingLevels     []planner.Level
	EventQueue        []routing.ForwardRunRequest
	OnFinishRequested bool
	Guards            map[engine.ForwardRunKey]bool
}

// NewState constructs an empty Wave Planner state starting at wave 0.
func NewState() *State {
	return &State{Guards: make(map[engine.ForwardRunKey]bool)}
}

// Enqueue appends routing-decided (or nested-workflow-bubbled) forward-run
// requests to the pending event queue (§4.8 step 1).
func (s *State) Enqueue(requests []routing.ForwardRunRequest) {
	s.EventQueue = append(s.EventQueue, requests...)
}

// RecordOnFinish notes that a completed check's onFinish directive was
// enabled, accumulating the wave-retry request processed at step 4.
func (s *State) RecordOnFinish(spec engine.CheckSpec) {
	if spec.OnFinish.Enabled {
		s.OnFinishRequested = true
	}
}

// Outcome is what Plan decided for the next scheduling step.
type Outcome struct {
	Levels    []planner.Level
	Completed bool
}

// Plan advances the Wave Planner by one boundary call (§4.8 steps 2-6).
// checks is the full static catalog; j and scope let step 4 identify
// ifCondition-skipped checks to retry.
func Plan(checks map[string]engine.CheckSpec, st *State, j journal.Journal, scope engine.Scope) (Outcome, error) {
	preemptive, nonPreemptive := splitEvents(st.EventQueue)

	// Step 2: pending levels remain and nothing preemptive is queued —
	// keep running the current wave's level queue unchanged. Queued
	// non-preemptive run requests wait until it drains.
	if len(st.PendingLevels) > 0 && len(preemptive) == 0 {
		_ = nonPreemptive
		return Outcome{Levels: st.PendingLevels}, nil
	}

	// Step 3: preempt — clear the pending level queue.
	if len(preemptive) > 0 {
		st.PendingLevels = nil
	}

	newWave := st.Wave + 1

	if len(st.EventQueue) > 0 {
		admitted := routing.Dedup(st.EventQueue, newWave, st.Guards)
		st.EventQueue = nil
		if len(admitted) > 0 {
			subset := buildSubgraph(checks, admitted)
			plan, err := planner.Compute(subset)
			if err != nil {
				return Outcome{}, err
			}
			st.Wave = newWave
			st.PendingLevels = plan.Levels
			return Outcome{Levels: plan.Levels}, nil
		}
	}

	// Step 4: no forward events pending — fall back to onFinish wave-retry.
	if st.OnFinishRequested {
		st.OnFinishRequested = false
		retry := gatedForRetry(checks, j, scope)
		if len(retry) > 0 {
			st.Wave = newWave
			st.PendingLevels = []planner.Level{retry}
			return Outcome{Levels: []planner.Level{retry}}, nil
		}
	}

	// Step 6: no work remains.
	st.PendingLevels = nil
	return Outcome{Completed: true}, nil
}

func splitEvents(requests []routing.ForwardRunRequest) (preemptive, nonPreemptive []routing.ForwardRunRequest) {
	for _, r := range requests {
		if r.Origin == routing.OriginGoto {
			preemptive = append(preemptive, r)
		} else {
			nonPreemptive = append(nonPreemptive, r)
		}
	}
	return preemptive, nonPreemptive
}

// buildSubgraph collects the union of requested targets, their transitive
// dependencies (excluding pure memory-initializer checks, which exist only
// to seed the memory store and carry no routable output of their own),
// and their transitive dependents filtered by the requesting event
// (§4.8 step 3).
func buildSubgraph(checks map[string]engine.CheckSpec, requests []routing.ForwardRunRequest) map[string]engine.CheckSpec {
	include := make(map[string]bool)

	for _, req := range requests {
		include[req.Target] = true

		for dep := range planner.Ancestors(checks, req.Target) {
			spec, ok := checks[dep]
			if !ok || spec.Type == engine.CheckMemory {
				continue
			}
			include[dep] = true
		}

		for desc := range planner.Descendants(checks, req.Target) {
			spec, ok := checks[desc]
			if !ok || !eventEligible(spec, req.Event) {
				continue
			}
			include[desc] = true
		}
	}

	subset := make(map[string]engine.CheckSpec, len(include))
	for id := range include {
		if spec, ok := checks[id]; ok {
			subset[id] = spec
		}
	}
	return subset
}

func eventEligible(spec engine.CheckSpec, event string) bool {
	if len(spec.Triggers) == 0 {
		return true
	}
	_, ok := spec.Triggers[event]
	return ok
}

// gatedForRetry identifies checks whose most recent entry at scope was
// skipped for ifCondition — the only skip reason wave-retry may revisit
// (§4.6 step 2, §4.8 step 4) — without pulling in their dependency trees.
func gatedForRetry(checks map[string]engine.CheckSpec, j journal.Journal, scope engine.Scope) planner.Level {
	var ids []string
	for id := range checks {
		entry, ok := j.LatestFor(id, scope)
		if !ok {
			continue
		}
		if entry.Status == engine.StatusSkipped && entry.SkipReason == engine.SkipIfCondition {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return planner.Level(ids)
}
