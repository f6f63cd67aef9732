// Package workflow implements the nested-workflow check type (SPEC_FULL
// §4, §9): a provider whose Execute call constructs a child
// internal/engine/runner.Engine over a prefix-scoped subset of the parent
// run's own check catalog, drives it to completion inline, and bubbles its
// published envelopes up to a parent-owned queue. Grounded on the
// teacher's examples/multi-llm-review/workflow package, which wires a
// child graph.Engine (store, emitter, node set, start node) the same way;
// here the "node set" is simply every CheckSpec whose ID carries the
// configured prefix.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/engine/runner"
	"github.com/probelabs/visor-sub002/internal/eventbus"
	"github.com/probelabs/visor-sub002/internal/provider"
)

// Provider runs a prefix-scoped sub-catalog of checks as a nested engine.
// One Provider instance is shared across every workflow check in a run;
// its depth ceiling and event queue are run-wide, not per-check.
type Provider struct {
	// Checks is the full parent catalog. Each workflow check's own
	// "prefix" config value selects the sub-catalog it drives: every
	// CheckSpec whose ID has that prefix, so authors lay out nested
	// workflows by ID convention (e.g. "review.security.*") rather than an
	// explicit sub-tree reference.
	Checks map[string]engine.CheckSpec

	// Providers is reused as-is for the child engine — a nested workflow
	// check can depend on the same command/http/ai providers its parent
	// does.
	Providers *provider.Registry

	// MaxWorkflowDepth is threaded into every child engine's Config so the
	// depth ceiling is enforced uniformly at any nesting level (§5, §9).
	// The actual over-limit check happens in internal/runtime, one level
	// up from here, before Execute is ever called for the offending check.
	MaxWorkflowDepth int

	// Bubble receives every envelope the child engine publishes, tagged
	// with the issuing check's ID as WorkflowID. Nil disables bubbling.
	// Bounded: a full channel drops rather than blocks the child run.
	Bubble chan eventbus.Envelope
}

// New constructs a workflow Provider.
func New(checks map[string]engine.CheckSpec, providers *provider.Registry, maxWorkflowDepth int, bubble chan eventbus.Envelope) *Provider {
	return &Provider{Checks: checks, Providers: providers, MaxWorkflowDepth: maxWorkflowDepth, Bubble: bubble}
}

func (*Provider) Name() string { return "workflow" }
func (*Provider) Description() string {
	return "runs a nested sub-engine over a prefix-scoped subset of the check catalog"
}

// ValidateConfig requires a non-empty "prefix" string.
func (*Provider) ValidateConfig(config map[string]any) bool {
	prefix, ok := config["prefix"].(string)
	return ok && prefix != ""
}

// Execute builds the sub-catalog named by config["prefix"], runs it to
// completion as a child engine one level deeper than the caller, and
// reports its final state/statistics as this check's own output.
func (p *Provider) Execute(ctx context.Context, req provider.Request) (provider.Result, error) {
	prefix, _ := req.Config["prefix"].(string)
	if prefix == "" {
		return provider.Result{}, fmt.Errorf("workflow: config.prefix is required")
	}

	sub := subCatalog(p.Checks, prefix)
	if len(sub) == 0 {
		return provider.Result{OutputValue: map[string]any{"finalState": "Completed", "checksRun": 0}}, nil
	}

	event, _ := req.Config["event"].(string)

	child := runner.New(runner.Deps{
		Providers: p.Providers,
		Bus:       p.childBus(req.Exec.RunID),
	}, runner.Config{
		Checks:           sub,
		MaxWorkflowDepth: p.MaxWorkflowDepth,
		WorkflowDepth:    req.Exec.WorkflowDepth + 1,
		WorkflowID:       req.Exec.CheckID,
	})

	out := child.Run(ctx, runner.Input{
		RunID: req.Exec.RunID,
		Event: event,
		PR:    req.PR,
	})

	return provider.Result{OutputValue: map[string]any{
		"finalState": out.FinalState,
		"checksRun":  out.Statistics.TotalExecutions,
		"succeeded":  out.Statistics.SuccessfulExecutions,
		"failed":     out.Statistics.FailedExecutions,
		"skipped":    out.Statistics.SkippedChecks,
	}}, nil
}

// subCatalog returns every CheckSpec whose ID has the given prefix.
func subCatalog(checks map[string]engine.CheckSpec, prefix string) map[string]engine.CheckSpec {
	out := make(map[string]engine.CheckSpec)
	for id, spec := range checks {
		if strings.HasPrefix(id, prefix) {
			out[id] = spec
		}
	}
	return out
}

// childBus wires the child engine's event bus to forward every envelope
// into p.Bubble rather than publish it directly, so a deeply nested
// workflow's events still surface through the one queue the top-level run
// owns (§9 "event bubbling across nested workflows").
func (p *Provider) childBus(runID string) *eventbus.Bus {
	return eventbus.New(bubbleEmitter{ch: p.Bubble}, runID, uuid.NewString)
}

// bubbleEmitter forwards to a bounded channel, dropping rather than
// blocking once it is full.
type bubbleEmitter struct{ ch chan eventbus.Envelope }

func (b bubbleEmitter) Emit(env eventbus.Envelope) {
	if b.ch == nil {
		return
	}
	select {
	case b.ch <- env:
	default:
	}
}

func (b bubbleEmitter) EmitBatch(envs []eventbus.Envelope) {
	for _, e := range envs {
		b.Emit(e)
	}
}

func (bubbleEmitter) Flush() error { return nil }
