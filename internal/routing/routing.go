// Package routing implements the Routing Decider (spec §4.7): given a
// freshly completed JournalEntry and its owning CheckSpec, it decides
// whether a goto/gotoJs preemption or run/runJs forward-run fanout is
// requested, validates goto targets against the static ancestor closure,
// enforces the routing-loop limit, and deduplicates forward-run requests
// per wave.
package routing

import (
	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/expr"
	"github.com/probelabs/visor-sub002/internal/planner"
)

// Origin distinguishes preemptive goto requests from non-preemptive run
// requests (§4.7 rules 2-3).
type Origin string

const (
	OriginGoto Origin = "goto"
	OriginRun  Origin = "run"
)

// ForwardRunRequest is one decided routing action, ready for the Wave
// Planner to dedup and act on.
type ForwardRunRequest struct {
	Target    string
	Event     string
	Origin    Origin
	Scope     engine.Scope
	ItemIndex *int // set when run/runJs pinned a forEach item index
}

// Event records a routing-expression compile/runtime failure, treated as
// a no-op per §4.7 rule 5 (never a check failure).
type Event struct {
	Directive string
	Err       error
}

// RejectedGoto records a goto/gotoJs directive whose target failed the
// ancestor check (§4.7 rule 2) or hit the per-target loop limit — logged,
// not retried.
type RejectedGoto struct {
	CheckID   string // the issuing check whose goto/gotoJs was rejected
	Target    string
	Reason    string
	LoopLimit bool // true when the rejection was routing.max_loops, not a non-ancestor target
}

// Decision is everything the Routing Decider produced for one completed
// entry.
type Decision struct {
	Requests []ForwardRunRequest
	Events   []Event
	Rejected []RejectedGoto
}

// LoopGuard tracks the per-target goto counter RunState.flags needs to
// enforce routingLoopLimit (§4.7 rule 2, §3 RunState).
type LoopGuard struct {
	counts map[string]int
	limit  int
}

// NewLoopGuard constructs a guard capping each goto target at limit
// traversals. limit <= 0 means unlimited.
func NewLoopGuard(limit int) *LoopGuard {
	return &LoopGuard{counts: make(map[string]int), limit: limit}
}

// Allow reports whether target may be goto'd again, incrementing its
// counter as a side effect when allowed.
func (g *LoopGuard) Allow(target string) bool {
	if g.limit <= 0 {
		g.counts[target]++
		return true
	}
	if g.counts[target] >= g.limit {
		return false
	}
	g.counts[target]++
	return true
}

// Decide evaluates onSuccess (entry succeeded) or onFail (entry failed) for
// the completed entry, per §4.7. checks is the full static catalog, used
// for goto ancestor validation; guard enforces the routing loop limit.
func Decide(evaluator *expr.Evaluator, checks map[string]engine.CheckSpec, spec engine.CheckSpec, entry engine.JournalEntry, exprCtx expr.Context, guard *LoopGuard) Decision {
	var directive engine.RoutingDirective
	switch entry.Status {
	case engine.StatusSuccess:
		directive = spec.OnSuccess
	case engine.StatusFailed:
		directive = spec.OnFail
	default:
		return Decision{}
	}
	if directive.IsEmpty() {
		return Decision{}
	}

	var d Decision
	decideGoto(evaluator, checks, spec, entry, directive, exprCtx, guard, &d)
	decideRun(evaluator, spec, entry, directive, exprCtx, &d)
	return d
}

func decideGoto(evaluator *expr.Evaluator, checks map[string]engine.CheckSpec, spec engine.CheckSpec, entry engine.JournalEntry, directive engine.RoutingDirective, exprCtx expr.Context, guard *LoopGuard, d *Decision) {
	target := directive.Goto
	if directive.GotoJS != "" {
		compiled, evt := expr.CompileOrNil(directive.GotoJS, expr.KindGoto)
		if evt != nil {
			d.Events = append(d.Events, Event{Directive: "gotoJs", Err: evt.Err})
		}
		target = evaluator.EvalGoto(compiled, exprCtx)
	}
	if target == "" {
		return
	}

	ancestors := planner.Ancestors(checks, spec.ID)
	if !ancestors[target] {
		d.Rejected = append(d.Rejected, RejectedGoto{CheckID: spec.ID, Target: target, Reason: "goto target is not an ancestor of " + spec.ID})
		return
	}
	if guard != nil && !guard.Allow(target) {
		d.Rejected = append(d.Rejected, RejectedGoto{CheckID: spec.ID, Target: target, Reason: "routing loop limit exceeded for " + target, LoopLimit: true})
		return
	}

	d.Requests = append(d.Requests, ForwardRunRequest{
		Target: target,
		Event:  gotoEventName(entry),
		Origin: OriginGoto,
		Scope:  entry.Scope,
	})
}

func decideRun(evaluator *expr.Evaluator, spec engine.CheckSpec, entry engine.JournalEntry, directive engine.RoutingDirective, exprCtx expr.Context, d *Decision) {
	seenTargets := make(map[string]bool)

	for _, rt := range directive.Run {
		if seenTargets[rt.CheckID] {
			continue
		}
		seenTargets[rt.CheckID] = true
		d.Requests = append(d.Requests, ForwardRunRequest{
			Target: rt.CheckID, Event: runEventName(entry), Origin: OriginRun, Scope: entry.Scope, ItemIndex: rt.ItemIndex,
		})
	}

	if directive.RunJS == "" {
		return
	}
	compiled, evt := expr.CompileOrNil(directive.RunJS, expr.KindRun)
	if evt != nil {
		d.Events = append(d.Events, Event{Directive: "runJs", Err: evt.Err})
	}
	for _, rd := range evaluator.EvalRun(compiled, exprCtx) {
		if seenTargets[rd.CheckID] {
			continue
		}
		seenTargets[rd.CheckID] = true
		d.Requests = append(d.Requests, ForwardRunRequest{
			Target: rd.CheckID, Event: runEventName(entry), Origin: OriginRun, Scope: entry.Scope, ItemIndex: rd.ItemIndex,
		})
	}
}

func gotoEventName(entry engine.JournalEntry) string { return "goto:" + entry.CheckID }
func runEventName(entry engine.JournalEntry) string  { return "run:" + entry.CheckID }

// DedupKey builds the forwardRunGuards map key for one request at wave
// (§3 ForwardRunKey, §4.7 rule 4: "added the first time; duplicate
// requests in the same wave are dropped").
func DedupKey(req ForwardRunRequest, wave int) engine.ForwardRunKey {
	return engine.ForwardRunKey{Target: req.Target, Event: req.Event, Wave: wave, Scope: req.Scope.String()}
}

// Dedup filters requests against a shared guards set, mutating guards to
// record each newly-admitted key.
func Dedup(requests []ForwardRunRequest, wave int, guards map[engine.ForwardRunKey]bool) []ForwardRunRequest {
	out := make([]ForwardRunRequest, 0, len(requests))
	for _, req := range requests {
		key := DedupKey(req, wave)
		if guards[key] {
			continue
		}
		guards[key] = true
		out = append(out, req)
	}
	return out
}
