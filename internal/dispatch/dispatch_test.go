package dispatch

import (
	"context"
	"testing"

	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/expr"
	"github.com/probelabs/visor-sub002/internal/journal"
	"github.com/probelabs/visor-sub002/internal/planner"
	"github.com/probelabs/visor-sub002/internal/provider"
	"github.com/probelabs/visor-sub002/internal/routing"
	"github.com/probelabs/visor-sub002/internal/runtime"
)

type fixedProvider struct{ output any }

func (*fixedProvider) Name() string                       { return "fixed" }
func (*fixedProvider) Description() string                { return "test fixture" }
func (*fixedProvider) ValidateConfig(map[string]any) bool { return true }
func (p *fixedProvider) Execute(context.Context, provider.Request) (provider.Result, error) {
	return provider.Result{OutputValue: p.output}, nil
}

func newDeps(checks map[string]engine.CheckSpec, reg *provider.Registry) Deps {
	return Deps{
		Runtime: runtime.Deps{
			Journal:   journal.NewInMemory(),
			Providers: reg,
			Evaluator: expr.New(nil),
		},
		Checks:         checks,
		Evaluator:      expr.New(nil),
		Guard:          routing.NewLoopGuard(0),
		MaxParallelism: 4,
	}
}

func TestRunWaveDispatchesOneLevel(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"a": {ID: "a", Type: engine.CheckNoop},
		"b": {ID: "b", Type: engine.CheckNoop},
	}
	reg := provider.NewRegistry()
	reg.Register(engine.CheckNoop, &fixedProvider{output: "ok"})
	d := newDeps(checks, reg)

	res := RunWave(context.Background(), d, WaveInput{
		Levels: []planner.Level{{"a", "b"}},
		Wave:   1,
		RunID:  "run-1",
	})

	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(res.Entries))
	}
	for _, e := range res.Entries {
		if e.Status != engine.StatusSuccess {
			t.Fatalf("expected success, got %+v", e)
		}
	}
}

func TestRunWaveExpandsForEachFanout(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"parent": {ID: "parent", Type: engine.CheckNoop, ForEach: true},
		"child":  {ID: "child", Type: engine.CheckNoop, DependsOn: []engine.DependencyToken{{Alternatives: []string{"parent"}}}},
	}
	reg := provider.NewRegistry()
	reg.Register(engine.CheckNoop, &fixedProvider{output: []any{"x", "y", "z"}})
	d := newDeps(checks, reg)

	res := RunWave(context.Background(), d, WaveInput{
		Levels: []planner.Level{{"parent"}, {"child"}},
		Wave:   1,
		RunID:  "run-1",
	})

	var childEntries int
	for _, e := range res.Entries {
		if e.CheckID == "child" {
			childEntries++
		}
	}
	if childEntries != 3 {
		t.Fatalf("expected 3 fanned-out child entries, got %d (entries=%+v)", childEntries, res.Entries)
	}
}

// TestRunWaveSkipsDependentsOfEmptyForEach covers the §8 boundary: a
// forEach parent that succeeds with an empty sequence must produce zero
// sub-executions for its dependents, not one dispatched at the root scope.
func TestRunWaveSkipsDependentsOfEmptyForEach(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"parent": {ID: "parent", Type: engine.CheckNoop, ForEach: true},
		"child":  {ID: "child", Type: engine.CheckNoop, DependsOn: []engine.DependencyToken{{Alternatives: []string{"parent"}}}},
	}
	reg := provider.NewRegistry()
	reg.Register(engine.CheckNoop, &fixedProvider{output: []any{}})
	d := newDeps(checks, reg)

	res := RunWave(context.Background(), d, WaveInput{
		Levels: []planner.Level{{"parent"}, {"child"}},
		Wave:   1,
		RunID:  "run-1",
	})

	for _, e := range res.Entries {
		if e.CheckID == "child" {
			t.Fatalf("expected no entries for child of an empty forEach, got %+v", e)
		}
	}
}

func TestRunWaveStopsSchedulingAfterFailFast(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"a": {
			ID: "a", Type: engine.CheckNoop,
			FailIf: []engine.FailIfExpr{{Name: "always", Expr: "true", Severity: "high", HaltExecution: true}},
		},
		"b": {ID: "b", Type: engine.CheckNoop},
	}
	reg := provider.NewRegistry()
	reg.Register(engine.CheckNoop, &fixedProvider{output: "ok"})
	d := newDeps(checks, reg)

	res := RunWave(context.Background(), d, WaveInput{
		Levels: []planner.Level{{"a"}, {"b"}},
		Wave:   1,
		RunID:  "run-1",
	})

	if !res.FailFastTriggered {
		t.Fatal("expected FailFastTriggered to be set")
	}
	for _, e := range res.Entries {
		if e.CheckID == "b" {
			t.Fatalf("expected level b to be skipped after fail-fast, got %+v", e)
		}
	}
}
