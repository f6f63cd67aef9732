// Package dispatch implements the Level Dispatcher (spec §4.9): runs one
// level of the current wave, fanning out forEach parents across their
// produced items by extending scope, bounding concurrency at
// maxParallelism, and enforcing a wave barrier — the dispatcher never
// advances to the next level until every scheduled check in the current
// one has produced a journal entry or been skipped.
package dispatch

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/execctx"
	"github.com/probelabs/visor-sub002/internal/expr"
	"github.com/probelabs/visor-sub002/internal/planner"
	"github.com/probelabs/visor-sub002/internal/routing"
	"github.com/probelabs/visor-sub002/internal/runtime"
)

// Hooks lets the owning runner observe dispatch-level lifecycle events
// without this package depending on internal/eventbus directly — the
// top-level runner wires these to bus.Publish calls (§4.10 "owns the
// event bus adapter").
type Hooks struct {
	OnScheduled func(checkID string, scope engine.Scope)
	OnCompleted func(entry engine.JournalEntry)
}

// Deps bundles the Level Dispatcher's collaborators, shared across every
// RunWave call for one run.
type Deps struct {
	Runtime        runtime.Deps
	Checks         map[string]engine.CheckSpec
	Evaluator      *expr.Evaluator
	Guard          *routing.LoopGuard
	MaxParallelism int
	Hooks          Hooks
}

// WaveInput is one wave's worth of levels plus the shared evaluation
// context every check invocation in the wave needs.
type WaveInput struct {
	Levels    []planner.Level
	Wave      int
	Event     string
	PR        expr.PRInfo
	Metadata  map[string]any
	Env       map[string]string
	Memory    expr.MemoryView
	RunID     string
	AILimiter *semaphore.Weighted

	// WorkflowDepth is passed straight through to every invocation's
	// execctx.Context.WorkflowDepth (§5, §9 nested-workflow recursion).
	WorkflowDepth int
}

// WaveResult aggregates everything the wave produced: every journal entry
// written, every routing request decided from them, and whether any check
// requested a fail-fast halt.
type WaveResult struct {
	Entries           []engine.JournalEntry
	RoutingRequests   []routing.ForwardRunRequest
	FailFastTriggered bool
	OnFinishSpecs     []engine.CheckSpec
	RejectedGotos     []routing.RejectedGoto
	RoutingEvents     []routing.Event
}

type scopedCheck struct {
	checkID string
	scope   engine.Scope
}

// RunWave executes every level of in.Levels in order, honoring the wave
// barrier between them, and returns the aggregated result. It stops
// scheduling new checks (but waits for in-flight ones) once ctx is
// canceled or a check requests a fail-fast halt (§4.9 "Cancellation").
func RunWave(ctx context.Context, d Deps, in WaveInput) WaveResult {
	var result WaveResult
	scopeCache := map[string][]engine.Scope{}

	for _, level := range in.Levels {
		if ctx.Err() != nil || result.FailFastTriggered {
			break
		}

		scheduled := expandLevel(d.Checks, scopeCache, level)
		entries := runLevel(ctx, d, in, scheduled)

		for _, e := range entries {
			result.Entries = append(result.Entries, e.entry)
			if e.failFast {
				result.FailFastTriggered = true
			}
			result.RoutingRequests = append(result.RoutingRequests, e.routing...)
			result.RejectedGotos = append(result.RejectedGotos, e.rejected...)
			result.RoutingEvents = append(result.RoutingEvents, e.events...)

			spec := d.Checks[e.entry.CheckID]
			if spec.OnFinish.Enabled {
				result.OnFinishSpecs = append(result.OnFinishSpecs, spec)
			}
		}

		updateScopeCache(d.Checks, scopeCache, level, entries)
	}

	return result
}

type runOutcome struct {
	entry    engine.JournalEntry
	failFast bool
	routing  []routing.ForwardRunRequest
	rejected []routing.RejectedGoto
	events   []routing.Event
}

// runLevel fans out every scoped check in the level concurrently, bounded
// by MaxParallelism, and blocks until all of them complete — the wave
// barrier (§4.9 "the dispatcher does not advance ... until every scheduled
// check has either produced a journal entry or been skipped").
func runLevel(ctx context.Context, d Deps, in WaveInput, scheduled []scopedCheck) []runOutcome {
	// A zero-value errgroup.Group (not WithContext) is used deliberately:
	// one check's own runtime.Run never returns a Go error (failures are
	// encoded in the journal entry), so there is no sibling-cancellation
	// signal to wire up — only the bounded-concurrency SetLimit matters
	// here, and the caller's ctx already carries the real cancellation.
	var g errgroup.Group
	if d.MaxParallelism > 0 {
		g.SetLimit(d.MaxParallelism)
	}

	var mu sync.Mutex
	outcomes := make([]runOutcome, 0, len(scheduled))

	for _, sc := range scheduled {
		sc := sc
		if ctx.Err() != nil {
			break
		}
		spec := d.Checks[sc.checkID]

		g.Go(func() error {
			if d.Hooks.OnScheduled != nil {
				d.Hooks.OnScheduled(sc.checkID, sc.scope)
			}

			inv := runtime.Invocation{
				Spec:     spec,
				Scope:    sc.scope,
				Wave:     in.Wave,
				Event:    in.Event,
				PR:       in.PR,
				Metadata: in.Metadata,
				Env:      in.Env,
				Memory:   in.Memory,
				Exec: execctx.Context{
					Std: ctx, RunID: in.RunID, CheckID: sc.checkID, Scope: sc.scope,
					Wave: in.Wave, Attempt: 1, SessionMode: spec.SessionMode, AILimiter: in.AILimiter,
					WorkflowDepth: in.WorkflowDepth,
				},
			}
			res := runtime.Run(ctx, d.Runtime, inv)

			var decision routing.Decision
			if res.Entry.Status == engine.StatusSuccess || res.Entry.Status == engine.StatusFailed {
				routingCtx := runtime.RoutingContext(d.Runtime, inv, res.Entry)
				decision = routing.Decide(d.Evaluator, d.Checks, spec, res.Entry, routingCtx, d.Guard)
			}

			if d.Hooks.OnCompleted != nil {
				d.Hooks.OnCompleted(res.Entry)
			}

			mu.Lock()
			outcomes = append(outcomes, runOutcome{
				entry: res.Entry, failFast: res.FailFastTriggered,
				routing: decision.Requests, rejected: decision.Rejected, events: decision.Events,
			})
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() // check invocations never return an error: failures are encoded in the journal entry

	sort.Slice(outcomes, func(i, k int) bool {
		if outcomes[i].entry.CheckID != outcomes[k].entry.CheckID {
			return outcomes[i].entry.CheckID < outcomes[k].entry.CheckID
		}
		return outcomes[i].entry.Scope.String() < outcomes[k].entry.Scope.String()
	})
	return outcomes
}

// expandLevel resolves, for every checkId in level, the set of scopes it
// must run at this wave — one per active forEach fanout its dependency
// chain has accumulated (§4.9 "each item spawns a logical sub-execution").
func expandLevel(checks map[string]engine.CheckSpec, scopeCache map[string][]engine.Scope, level planner.Level) []scopedCheck {
	var out []scopedCheck
	for _, checkID := range level {
		for _, sc := range scopesFor(checks, scopeCache, checkID) {
			out = append(out, scopedCheck{checkID: checkID, scope: sc})
		}
	}
	return out
}

// scopesFor resolves the active scopes for checkID from its dependencies'
// cached scopes, falling back to the root scope for dependency-free
// checks. A dependent whose dependencies contributed zero active scopes —
// e.g. a forEach parent that succeeded with an empty sequence — yields zero
// scopes rather than falling back to root: expandLevel then never dispatches
// it this wave, which is this engine's realization of "dependents are
// skipped with dependencyFailed" (§8), the same way a fail-fast halt leaves
// a not-yet-dispatched check with no journal entry at all.
func scopesFor(checks map[string]engine.CheckSpec, scopeCache map[string][]engine.Scope, checkID string) []engine.Scope {
	spec := checks[checkID]
	if len(spec.DependsOn) == 0 {
		return []engine.Scope{nil}
	}

	seenParent := make(map[string]bool)
	seenScope := make(map[string]bool)
	var out []engine.Scope
	for _, tok := range spec.DependsOn {
		for _, alt := range tok.Alternatives {
			if seenParent[alt] {
				continue
			}
			seenParent[alt] = true
			for _, sc := range scopeCache[alt] {
				key := sc.String()
				if seenScope[key] {
					continue
				}
				seenScope[key] = true
				out = append(out, sc)
			}
		}
	}
	return out
}

// updateScopeCache records, for every checkId just dispatched, the set of
// scopes its dependents should run at: a forEach parent's successful
// output array expands into one child scope per item; everything else
// passes its own invocation scopes through unchanged.
func updateScopeCache(checks map[string]engine.CheckSpec, scopeCache map[string][]engine.Scope, level planner.Level, outcomes []runOutcome) {
	byCheck := make(map[string][]engine.JournalEntry)
	for _, o := range outcomes {
		byCheck[o.entry.CheckID] = append(byCheck[o.entry.CheckID], o.entry)
	}

	for _, checkID := range level {
		spec := checks[checkID]
		entries := byCheck[checkID]

		if !spec.ForEach {
			seen := make(map[string]bool)
			var scopes []engine.Scope
			for _, e := range entries {
				key := e.Scope.String()
				if seen[key] {
					continue
				}
				seen[key] = true
				scopes = append(scopes, e.Scope)
			}
			scopeCache[checkID] = scopes
			continue
		}

		var childScopes []engine.Scope
		for _, e := range entries {
			if e.Status != engine.StatusSuccess {
				continue
			}
			items, ok := e.OutputValue.([]any)
			if !ok {
				continue
			}
			for i := range items {
				childScopes = append(childScopes, e.Scope.Extend(checkID, i))
			}
		}
		scopeCache[checkID] = childScopes
	}
}
