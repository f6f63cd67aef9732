package planner

import "testing"

import "github.com/probelabs/visor-sub002/internal/engine"

func tok(ids ...string) engine.DependencyToken {
	return engine.DependencyToken{Alternatives: ids}
}

func spec(id string, deps ...engine.DependencyToken) engine.CheckSpec {
	return engine.CheckSpec{ID: id, DependsOn: deps}
}

// TestDiamond covers spec §8 scenario 1.
func TestDiamond(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"A": spec("A"),
		"B": spec("B", tok("A")),
		"C": spec("C", tok("A")),
		"D": spec("D", tok("B"), tok("C")),
	}

	plan, err := Compute(checks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %+v", len(plan.Levels), plan.Levels)
	}
	if len(plan.Levels[0]) != 1 || plan.Levels[0][0] != "A" {
		t.Fatalf("level 0 = %v, want [A]", plan.Levels[0])
	}
	if len(plan.Levels[1]) != 2 {
		t.Fatalf("level 1 = %v, want 2 elements", plan.Levels[1])
	}
	if len(plan.Levels[2]) != 1 || plan.Levels[2][0] != "D" {
		t.Fatalf("level 2 = %v, want [D]", plan.Levels[2])
	}
}

// TestCycleRejected covers spec §8 scenario 6.
func TestCycleRejected(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"A": spec("A", tok("B")),
		"B": spec("B", tok("A")),
	}

	_, err := Compute(checks)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	cycleErr, ok := err.(*CycleError)
	if !ok {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if len(cycleErr.Nodes) != 2 {
		t.Fatalf("expected 2 cycle nodes, got %v", cycleErr.Nodes)
	}
}

// TestOrDependencyExpandsBothAlternatives confirms that the planner
// treats an OR-group as one incoming edge set (runtime enforces the "at
// least one succeeded" rule separately, §4.2 step 1).
func TestOrDependencyExpandsBothAlternatives(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"A": spec("A"),
		"B": spec("B"),
		"C": spec("C", tok("A", "B")),
	}

	plan, err := Compute(checks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(plan.Levels))
	}
	if len(plan.Levels[1]) != 1 || plan.Levels[1][0] != "C" {
		t.Fatalf("level 1 = %v, want [C]", plan.Levels[1])
	}
}

func TestEmptyDependsOnRunsAtFirstLevel(t *testing.T) {
	checks := map[string]engine.CheckSpec{"A": spec("A")}
	plan, err := Compute(checks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Levels) != 1 || len(plan.Levels[0]) != 1 {
		t.Fatalf("expected single level with one check, got %+v", plan.Levels)
	}
}

func TestAncestorsAndDescendants(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"A": spec("A"),
		"B": spec("B", tok("A")),
		"C": spec("C", tok("B")),
	}

	anc := Ancestors(checks, "C")
	if !anc["A"] || !anc["B"] {
		t.Fatalf("expected A and B as ancestors of C, got %v", anc)
	}

	desc := Descendants(checks, "A")
	if !desc["B"] || !desc["C"] {
		t.Fatalf("expected B and C as descendants of A, got %v", desc)
	}
}
