package wave

import (
	"testing"

	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/journal"
	"github.com/probelabs/visor-sub002/internal/planner"
	"github.com/probelabs/visor-sub002/internal/routing"
)

func checks() map[string]engine.CheckSpec {
	return map[string]engine.CheckSpec{
		"a": {ID: "a"},
		"b": {ID: "b", DependsOn: []engine.DependencyToken{{Alternatives: []string{"a"}}}},
		"c": {ID: "c", DependsOn: []engine.DependencyToken{{Alternatives: []string{"b"}}}},
	}
}

func TestPlanContinuesWithoutReplanOnNonPreemptiveEvents(t *testing.T) {
	st := NewState()
	st.PendingLevels = []planner.Level{{"b"}}
	st.Enqueue([]routing.ForwardRunRequest{{Target: "c", Event: "run:a", Origin: routing.OriginRun}})

	out, err := Plan(checks(), st, journal.NewInMemory(), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(out.Levels) != 1 || len(out.Levels[0]) != 1 || out.Levels[0][0] != "b" {
		t.Fatalf("expected unchanged pending levels, got %+v", out.Levels)
	}
	if st.Wave != 0 {
		t.Fatalf("expected wave to stay at 0, got %d", st.Wave)
	}
}

func TestPlanPreemptsOnGotoEvent(t *testing.T) {
	st := NewState()
	st.PendingLevels = []planner.Level{{"c"}}
	st.Enqueue([]routing.ForwardRunRequest{{Target: "b", Event: "goto:c", Origin: routing.OriginGoto}})

	out, err := Plan(checks(), st, journal.NewInMemory(), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if out.Completed {
		t.Fatal("expected work from the preempting sub-graph, not Completed")
	}
	found := false
	for _, lvl := range out.Levels {
		for _, id := range lvl {
			if id == "b" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected sub-graph to include target b, got %+v", out.Levels)
	}
	if st.Wave != 1 {
		t.Fatalf("expected wave to increment to 1, got %d", st.Wave)
	}
}

func TestPlanDedupsWithinSameWave(t *testing.T) {
	st := NewState()
	req := routing.ForwardRunRequest{Target: "b", Event: "goto:c", Origin: routing.OriginGoto}
	st.Enqueue([]routing.ForwardRunRequest{req})
	out1, err := Plan(checks(), st, journal.NewInMemory(), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if out1.Completed {
		t.Fatal("expected first request to produce work")
	}

	st.Enqueue([]routing.ForwardRunRequest{req})
	out2, err := Plan(checks(), st, journal.NewInMemory(), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !out2.Completed {
		t.Fatalf("expected duplicate request in the same wave to be dropped, got %+v", out2)
	}
}

func TestPlanOnFinishRetriesOnlyIfConditionSkips(t *testing.T) {
	st := NewState()
	j := journal.NewInMemory()
	j.Append(engine.JournalEntry{CheckID: "a", Status: engine.StatusSkipped, SkipReason: engine.SkipIfCondition})
	j.Append(engine.JournalEntry{CheckID: "b", Status: engine.StatusSkipped, SkipReason: engine.SkipDependencyFailed})

	st.RecordOnFinish(engine.CheckSpec{OnFinish: engine.OnFinishDirective{Enabled: true}})

	out, err := Plan(checks(), st, j, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(out.Levels) != 1 || len(out.Levels[0]) != 1 || out.Levels[0][0] != "a" {
		t.Fatalf("expected wave-retry to re-queue only a, got %+v", out.Levels)
	}
}

func TestPlanCompletesWhenNoWorkRemains(t *testing.T) {
	st := NewState()
	out, err := Plan(checks(), st, journal.NewInMemory(), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !out.Completed {
		t.Fatalf("expected Completed, got %+v", out)
	}
}

func TestPlanSubgraphCycleIsHardFailure(t *testing.T) {
	st := NewState()
	cyclic := map[string]engine.CheckSpec{
		"x": {ID: "x", DependsOn: []engine.DependencyToken{{Alternatives: []string{"y"}}}},
		"y": {ID: "y", DependsOn: []engine.DependencyToken{{Alternatives: []string{"x"}}}},
	}
	st.Enqueue([]routing.ForwardRunRequest{{Target: "x", Event: "run:z", Origin: routing.OriginRun}})

	_, err := Plan(cyclic, st, journal.NewInMemory(), nil)
	if err == nil {
		t.Fatal("expected a cycle error from the sub-graph planner")
	}
}
