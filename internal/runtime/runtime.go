// Package runtime implements the Check Runtime (spec §4.6): given a
// (checkSpec, scope, wave), it filters by trigger, evaluates the guard,
// checks dependency satisfaction, invokes the bound provider with a
// retry/backoff loop, evaluates fail_if predicates, and appends the
// resulting JournalEntry. Routing is delegated to internal/routing, which
// consumes the JournalEntry this package returns.
package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/execctx"
	"github.com/probelabs/visor-sub002/internal/expr"
	"github.com/probelabs/visor-sub002/internal/journal"
	"github.com/probelabs/visor-sub002/internal/metrics"
	"github.com/probelabs/visor-sub002/internal/provider"
)

// Deps bundles the Check Runtime's collaborators, built once per run and
// shared across every invocation.
type Deps struct {
	Journal   journal.Journal
	Providers *provider.Registry
	Evaluator *expr.Evaluator
	Metrics   *metrics.Metrics

	// MaxWorkflowDepth caps nested workflow-check recursion (§5, §9). <= 0
	// means unlimited.
	MaxWorkflowDepth int
}

// Invocation is everything one Run call needs beyond the shared Deps.
type Invocation struct {
	Spec     engine.CheckSpec
	Scope    engine.Scope
	Wave     int
	Attempt  int // 1-based; zero is treated as 1
	Event    string
	PR       expr.PRInfo
	Metadata map[string]any
	Env      map[string]string
	Memory   expr.MemoryView
	Exec     execctx.Context
}

// Result is what Run produces: the appended entry plus whether this
// invocation's fail_if evaluation requested a fail-fast halt (§4.6 step 5).
// Applying that flag to RunState.flags is the caller's (internal/dispatch
// and the top-level runner's) responsibility — this package owns no
// mutable run-wide state.
type Result struct {
	Entry             engine.JournalEntry
	FailFastTriggered bool
}

// Run executes the Check Runtime's steps 1-6 for one check invocation
// and returns the journal entry it produced; routing (step 7) is left to
// internal/routing.
func Run(ctx context.Context, d Deps, inv Invocation) Result {
	if inv.Attempt <= 0 {
		inv.Attempt = 1
	}
	started := time.Now()
	var debug []string

	// Step 1: trigger filter.
	if len(inv.Spec.Triggers) > 0 {
		if _, ok := inv.Spec.Triggers[inv.Event]; !ok {
			return d.skip(inv, started, engine.SkipTriggerMismatch, debug)
		}
	}

	outputs, history := d.collectDependencyOutputs(inv)

	// Step 2: guard.
	guardExpr, guardEvt := expr.CompileOrNil(inv.Spec.IfExpr, expr.KindPredicate)
	debug = appendEvent(debug, guardEvt)
	guardCtx := d.exprContext(inv, outputs, history, nil)
	if !d.Evaluator.EvalPredicate(guardExpr, guardCtx, true) {
		return d.skip(inv, started, engine.SkipIfCondition, debug)
	}

	// Step 3: dependency check.
	if !d.dependenciesSatisfied(inv) {
		return d.skip(inv, started, engine.SkipDependencyFailed, debug)
	}

	// Step 3.5: nested-workflow depth guard — only workflow checks descend
	// into a child engine, so only they can exceed the depth ceiling.
	if inv.Spec.Type == engine.CheckWorkflow && d.MaxWorkflowDepth > 0 && inv.Exec.WorkflowDepth+1 > d.MaxWorkflowDepth {
		return d.skip(inv, started, engine.SkipDepthLimit, debug)
	}

	// Step 4: provider invocation with retry loop.
	p, lookupErr := d.Providers.Lookup(inv.Spec.Type)
	if lookupErr != nil {
		return d.fail(inv, started, engine.KindProviderTerminal, lookupErr.Error(), "", debug)
	}

	result, attempts, provErr := d.invokeWithRetry(ctx, inv, p, outputs)
	if provErr != nil {
		kind := engine.KindProviderTerminal
		var engErr *engine.EngineError
		if engine.IsRetryable(provErr) {
			kind = engine.KindProviderTransient
		} else if errors.As(provErr, &engErr) && engErr.Code == engine.KindSessionReuseFailed {
			kind = engine.KindSessionReuseFailed
		}
		return d.fail(inv, started, kind, provErr.Error(), "", debug)
	}

	// Step 5: fail_if evaluation.
	selfCtx := d.exprContext(inv, outputs, history, result.OutputValue)
	failedName, failedSeverity, halt, failDebug := d.evalFailIf(inv, selfCtx)
	debug = append(debug, failDebug...)

	entry := engine.JournalEntry{
		CheckID:     inv.Spec.ID,
		Wave:        inv.Wave,
		Scope:       inv.Scope.Clone(),
		Attempt:     attempts,
		StartedAt:   started,
		EndedAt:     time.Now(),
		OutputValue: result.OutputValue,
		SessionID:   result.SessionID,
		DebugInfo:   debug,
		Group:       inv.Spec.Group,
	}
	entry.DurationMs = entry.EndedAt.Sub(entry.StartedAt).Milliseconds()

	if failedName != "" {
		entry.Status = engine.StatusFailed
		entry.Error = &engine.EntryError{
			Kind:    engine.KindPredicateTrue,
			Message: "fail_if " + failedName + " (" + failedSeverity + ") evaluated true",
		}
	} else {
		entry.Status = engine.StatusSuccess
	}

	// Step 6: journal append.
	entry.Seq = d.Journal.Append(entry)

	if d.Metrics != nil {
		d.Metrics.RecordCheckLatency(inv.Exec.RunID, inv.Spec.ID, entry.EndedAt.Sub(entry.StartedAt), string(entry.Status))
	}

	return Result{Entry: entry, FailFastTriggered: halt}
}

func (d Deps) invokeWithRetry(ctx context.Context, inv Invocation, p provider.Provider, outputs map[string]any) (provider.Result, int, error) {
	attempts := inv.Spec.Retry.Attempts()
	var lastErr error
	var result provider.Result
	attempt := 1

	for ; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := inv.Spec.Retry.DelayFor(attempt)
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return provider.Result{}, attempt, ctx.Err()
				}
			}
			if d.Metrics != nil {
				d.Metrics.IncrementRetries(inv.Exec.RunID, inv.Spec.ID)
			}
		}

		req := provider.Request{PR: inv.PR, Config: inv.Spec.ProviderConfig, DependencyResults: outputs, Exec: inv.Exec}
		result, lastErr = p.Execute(ctx, req)
		if lastErr == nil {
			return result, attempt, nil
		}
		if !engine.IsRetryable(lastErr) {
			return provider.Result{}, attempt, lastErr
		}
	}
	return provider.Result{}, attempts, lastErr
}

// evalFailIf evaluates every named predicate in declaration order and
// returns the first one that fires, plus whether it requests a fail-fast
// halt (§4.6 step 5). A check may name several predicates; the first true
// one determines the recorded failure.
func (d Deps) evalFailIf(inv Invocation, ctx expr.Context) (name, severity string, halt bool, debug []string) {
	for _, f := range inv.Spec.FailIf {
		compiled, evt := expr.CompileOrNil(f.Expr, expr.KindPredicate)
		debug = appendEvent(debug, evt)
		if d.Evaluator.EvalPredicate(compiled, ctx, false) {
			return f.Name, f.Severity, f.HaltExecution, debug
		}
	}
	return "", "", false, debug
}

func (d Deps) dependenciesSatisfied(inv Invocation) bool {
	for _, tok := range inv.Spec.DependsOn {
		satisfied := false
		for _, alt := range tok.Alternatives {
			if _, ok := d.Journal.CurrentValue(alt, inv.Scope); ok {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// collectDependencyOutputs gathers currentValue/history for every distinct
// checkId named across the check's dependsOn tokens, the carrier for the
// `outputs`/`outputs.history` expression globals (§4.3).
func (d Deps) collectDependencyOutputs(inv Invocation) (map[string]any, map[string][]any) {
	outputs := make(map[string]any)
	history := make(map[string][]any)
	seen := make(map[string]bool)
	for _, tok := range inv.Spec.DependsOn {
		for _, alt := range tok.Alternatives {
			if seen[alt] {
				continue
			}
			seen[alt] = true
			if v, ok := d.Journal.CurrentValue(alt, inv.Scope); ok {
				outputs[alt] = v
			}
			history[alt] = d.Journal.History(alt, inv.Scope)
		}
	}
	return outputs, history
}

// RoutingContext rebuilds the expression context a routing decision needs
// (output/outputs/outputs.history) for an already-completed entry, reusing
// the same dependency-output collection Run uses internally. Exported for
// internal/dispatch to hand to internal/routing.Decide after Run returns.
func RoutingContext(d Deps, inv Invocation, entry engine.JournalEntry) expr.Context {
	outputs, history := d.collectDependencyOutputs(inv)
	return d.exprContext(inv, outputs, history, entry.OutputValue)
}

func (d Deps) exprContext(inv Invocation, outputs map[string]any, history map[string][]any, self any) expr.Context {
	return expr.Context{
		Output:   self,
		Outputs:  outputs,
		History:  history,
		Metadata: inv.Metadata,
		Env:      inv.Env,
		Memory:   inv.Memory,
		PR:       inv.PR,
	}
}

func (d Deps) skip(inv Invocation, started time.Time, reason engine.SkipReason, debug []string) Result {
	entry := engine.JournalEntry{
		CheckID:    inv.Spec.ID,
		Wave:       inv.Wave,
		Scope:      inv.Scope.Clone(),
		Attempt:    inv.Attempt,
		Status:     engine.StatusSkipped,
		SkipReason: reason,
		StartedAt:  started,
		EndedAt:    time.Now(),
		DebugInfo:  debug,
		Group:      inv.Spec.Group,
	}
	entry.DurationMs = entry.EndedAt.Sub(entry.StartedAt).Milliseconds()
	entry.Seq = d.Journal.Append(entry)
	if d.Metrics != nil {
		d.Metrics.IncrementSkips(inv.Exec.RunID, inv.Spec.ID, string(reason))
	}
	return Result{Entry: entry}
}

func (d Deps) fail(inv Invocation, started time.Time, kind, message, sessionID string, debug []string) Result {
	entry := engine.JournalEntry{
		CheckID:   inv.Spec.ID,
		Wave:      inv.Wave,
		Scope:     inv.Scope.Clone(),
		Attempt:   inv.Attempt,
		Status:    engine.StatusFailed,
		StartedAt: started,
		EndedAt:   time.Now(),
		Error:     &engine.EntryError{Kind: kind, Message: message},
		SessionID: sessionID,
		DebugInfo: debug,
		Group:     inv.Spec.Group,
	}
	entry.DurationMs = entry.EndedAt.Sub(entry.StartedAt).Milliseconds()
	entry.Seq = d.Journal.Append(entry)
	if d.Metrics != nil {
		d.Metrics.RecordCheckLatency(inv.Exec.RunID, inv.Spec.ID, entry.EndedAt.Sub(entry.StartedAt), string(entry.Status))
	}
	return Result{Entry: entry}
}

func appendEvent(debug []string, evt *expr.Event) []string {
	if evt == nil {
		return debug
	}
	return append(debug, evt.Source+": "+evt.Err.Error())
}
