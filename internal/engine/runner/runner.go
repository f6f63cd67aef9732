// Package runner implements the State-Machine Runner (spec §4.10): the
// top-level Engine that builds an initial plan, drives WavePlanning ↔
// LevelDispatch until no work remains or fail-fast triggers, owns the
// event bus adapter (publishing StateTransition and domain events at each
// step), and shapes the final Results/Statistics. Named internal/engine's
// satellite "runner" subpackage rather than living inside internal/engine
// itself: internal/runtime, internal/routing, internal/wave, and
// internal/dispatch all import internal/engine for its shared data types,
// so the orchestrator that imports all of them back cannot also live in
// internal/engine without an import cycle.
package runner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/probelabs/visor-sub002/internal/dispatch"
	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/eventbus"
	"github.com/probelabs/visor-sub002/internal/execctx"
	"github.com/probelabs/visor-sub002/internal/expr"
	"github.com/probelabs/visor-sub002/internal/journal"
	"github.com/probelabs/visor-sub002/internal/memstore"
	"github.com/probelabs/visor-sub002/internal/metrics"
	"github.com/probelabs/visor-sub002/internal/planner"
	"github.com/probelabs/visor-sub002/internal/provider"
	"github.com/probelabs/visor-sub002/internal/result"
	"github.com/probelabs/visor-sub002/internal/routing"
	"github.com/probelabs/visor-sub002/internal/runtime"
	"github.com/probelabs/visor-sub002/internal/wave"
)

// Deps bundles the Engine's process-wide collaborators, built once and
// shared across every Run call.
type Deps struct {
	Providers *provider.Registry
	Journal   journal.Journal
	Evaluator *expr.Evaluator
	Metrics   *metrics.Metrics
	Bus       *eventbus.Bus
	Memory    *memstore.Store
}

// Config is the static, per-run catalog and option set §6.1 loads from
// internal/config.ParseResult.
type Config struct {
	Checks             map[string]engine.CheckSpec
	MaxParallelism     int
	MaxAIConcurrency   int
	FailFast           bool
	RoutingMaxLoops    int
	MaxWorkflowDepth   int
	SuppressionEnabled bool

	// WorkflowDepth is this Engine's own nesting depth: 0 for a top-level
	// run, N for a child engine a workflow provider constructed N levels
	// deep (§5, §9). Callers outside internal/provider/workflow should
	// leave this at zero.
	WorkflowDepth int

	// WorkflowID tags every published envelope's WorkflowID field,
	// identifying which nested workflow check owns this Engine (§6.4).
	// Empty at the top level.
	WorkflowID string
}

// Input is one Run call's trigger context.
type Input struct {
	RunID    string
	Event    string
	PR       expr.PRInfo
	Metadata map[string]any
	Env      map[string]string
}

// Output is what Run returns at termination (§6.5).
type Output struct {
	Results    result.Results
	Statistics result.Statistics
	FinalState string
}

// Engine is the State-Machine Runner.
type Engine struct {
	deps Deps
	cfg  Config
}

// New constructs an Engine, defaulting any unset collaborator so callers
// may supply a zero-value Deps for simple/test use.
func New(deps Deps, cfg Config) *Engine {
	if deps.Journal == nil {
		deps.Journal = journal.NewInMemory()
	}
	if deps.Evaluator == nil {
		deps.Evaluator = expr.New(nil)
	}
	if deps.Providers == nil {
		deps.Providers = provider.NewRegistry()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.New(eventbus.NoopEmitter{}, "", func() string { return "" })
	}
	if deps.Memory == nil {
		deps.Memory = memstore.New()
	}
	return &Engine{deps: deps, cfg: cfg}
}

// Run drives one full execution of cfg.Checks to completion (§4.10).
func (e *Engine) Run(ctx context.Context, in Input) Output {
	state := "Init"

	plan, err := planner.Compute(e.cfg.Checks)
	if err != nil {
		e.synthesizeCycleFailure(err, 0)
		e.transition(0, &state, "Completed")
		return e.finalize(state)
	}
	e.transition(0, &state, "PlanReady")
	e.transition(0, &state, "WavePlanning")

	st := wave.NewState()
	st.PendingLevels = plan.Levels

	guard := routing.NewLoopGuard(e.cfg.RoutingMaxLoops)
	aiLimiter := execctx.NewAILimiter(e.cfg.MaxAIConcurrency)

	dispatchDeps := dispatch.Deps{
		Runtime: runtime.Deps{
			Journal:          e.deps.Journal,
			Providers:        e.deps.Providers,
			Evaluator:        e.deps.Evaluator,
			Metrics:          e.deps.Metrics,
			MaxWorkflowDepth: e.cfg.MaxWorkflowDepth,
		},
		Checks:         e.cfg.Checks,
		Evaluator:      e.deps.Evaluator,
		Guard:          guard,
		MaxParallelism: e.cfg.MaxParallelism,
		Hooks: dispatch.Hooks{
			OnScheduled: func(checkID string, scope engine.Scope) {
				e.deps.Bus.Publish(e.cfg.WorkflowID, st.Wave, eventbus.KindCheckScheduled,
					eventbus.CheckScheduled{CheckID: checkID, Scope: scope.String()})
			},
			OnCompleted: func(entry engine.JournalEntry) {
				e.publishCompletion(st.Wave, entry)
			},
		},
	}

	for {
		outcome, planErr := wave.Plan(e.cfg.Checks, st, e.deps.Journal, nil)
		if planErr != nil {
			e.synthesizeCycleFailure(planErr, st.Wave)
			break
		}
		if outcome.Completed {
			break
		}

		e.transition(st.Wave, &state, "LevelDispatch")
		if e.deps.Metrics != nil {
			e.deps.Metrics.SetWave(st.Wave)
		}

		waveRes := dispatch.RunWave(ctx, dispatchDeps, dispatch.WaveInput{
			Levels:        outcome.Levels,
			Wave:          st.Wave,
			Event:         in.Event,
			PR:            in.PR,
			Metadata:      in.Metadata,
			Env:           in.Env,
			Memory:        e.deps.Memory,
			RunID:         in.RunID,
			AILimiter:     aiLimiter,
			WorkflowDepth: e.cfg.WorkflowDepth,
		})

		// RunWave dispatches every level it was handed, so none of them is
		// still pending at the next planning call.
		st.PendingLevels = nil
		st.Enqueue(waveRes.RoutingRequests)
		for _, req := range waveRes.RoutingRequests {
			e.deps.Bus.Publish(e.cfg.WorkflowID, st.Wave, eventbus.KindForwardRunRequested, eventbus.ForwardRunRequested{
				Target: req.Target, GotoEvent: req.Event, Origin: string(req.Origin), Scope: req.Scope.String(),
			})
		}
		for _, spec := range waveRes.OnFinishSpecs {
			st.RecordOnFinish(spec)
			e.deps.Bus.Publish(e.cfg.WorkflowID, st.Wave, eventbus.KindWaveRetry, eventbus.WaveRetry{Reason: "onFinish:" + spec.ID})
		}
		e.synthesizeRejectedGotos(waveRes.RejectedGotos, st.Wave)

		e.transition(st.Wave, &state, "WavePlanning")

		if waveRes.FailFastTriggered {
			e.deps.Bus.Publish(e.cfg.WorkflowID, st.Wave, eventbus.KindShutdown, eventbus.Shutdown{})
			break
		}
		if ctx.Err() != nil {
			e.deps.Bus.Publish(e.cfg.WorkflowID, st.Wave, eventbus.KindShutdown, eventbus.Shutdown{Error: ctx.Err().Error()})
			break
		}
	}

	e.transition(st.Wave, &state, "Completed")
	_ = e.deps.Bus.Flush()
	return e.finalize(state)
}

func (e *Engine) transition(wave int, state *string, to string) {
	from := *state
	*state = to
	e.deps.Bus.Publish(e.cfg.WorkflowID, wave, eventbus.KindStateTransition, eventbus.StateTransition{From: from, To: to})
}

func (e *Engine) publishCompletion(wave int, entry engine.JournalEntry) {
	if entry.Status == engine.StatusFailed && entry.Error != nil {
		e.deps.Bus.Publish(e.cfg.WorkflowID, wave, eventbus.KindCheckErrored, eventbus.CheckErrored{
			CheckID: entry.CheckID, Scope: entry.Scope.String(), Error: entry.Error.Message,
		})
		return
	}
	e.deps.Bus.Publish(e.cfg.WorkflowID, wave, eventbus.KindCheckCompleted, eventbus.CheckCompleted{
		CheckID: entry.CheckID, Scope: entry.Scope.String(), Status: string(entry.Status),
	})
}

// synthesizeCycleFailure appends one failed journal entry for a
// PlanningCycle error, naming the cycle's nodes (§7: "A PlanningCycle
// aborts with a clear message naming the cycle"). Per §8 scenario 6, a
// cycle reaches Completed with a structured report rather than Error —
// the general transition table's "Init, planning cycle -> Error" is
// superseded by the concrete testable scenario, which is authoritative
// here (see DESIGN.md).
func (e *Engine) synthesizeCycleFailure(err error, wave int) {
	var cycleErr *planner.CycleError
	if !errors.As(err, &cycleErr) || len(cycleErr.Nodes) == 0 {
		return
	}
	now := time.Now()
	entry := engine.JournalEntry{
		CheckID:   cycleErr.Nodes[0],
		Wave:      wave,
		Status:    engine.StatusFailed,
		StartedAt: now,
		EndedAt:   now,
		Error: &engine.EntryError{
			Kind:    engine.KindPlanningCycle,
			Message: "dependency cycle detected among: " + strings.Join(cycleErr.Nodes, ", "),
		},
	}
	entry.Seq = e.deps.Journal.Append(entry)
	e.publishCompletion(wave, entry)
}

// synthesizeRejectedGotos appends a skipped journal entry with
// routingLoopLimit for every goto rejected by the loop guard (§7
// LoopLimitExceeded: "Local; skipped with routingLoopLimit"). Rejections
// due to a non-ancestor target are logged via the routing package's own
// Rejected slice but produce no journal entry — they are a routing-expr
// no-op (§4.7 rule 5), not a check outcome.
func (e *Engine) synthesizeRejectedGotos(rejected []routing.RejectedGoto, wave int) {
	for _, r := range rejected {
		if !r.LoopLimit {
			continue
		}
		now := time.Now()
		entry := engine.JournalEntry{
			CheckID:    r.CheckID,
			Wave:       wave,
			Status:     engine.StatusSkipped,
			SkipReason: engine.SkipRoutingLoopLimit,
			StartedAt:  now,
			EndedAt:    now,
		}
		entry.Seq = e.deps.Journal.Append(entry)
		e.publishCompletion(wave, entry)
	}
}

func (e *Engine) finalize(state string) Output {
	res := result.Build(e.cfg.Checks, e.deps.Journal)
	res = result.NewSuppressor(e.cfg.SuppressionEnabled).Filter(res)
	stats := result.BuildStatistics(e.cfg.Checks, e.deps.Journal)
	return Output{Results: res, Statistics: stats, FinalState: state}
}
