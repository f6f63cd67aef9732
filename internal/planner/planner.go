// Package planner implements the Dependency Planner (spec §4.2): it parses
// depends_on tokens (including A|B OR-groups), detects cycles, and emits a
// layered topological order via Kahn's algorithm.
package planner

import (
	"sort"

	"github.com/probelabs/visor-sub002/internal/engine"
)

// Level is one execution level: a set of check ids with no edges between
// them, safe to run concurrently (GLOSSARY "Level").
type Level []string

// Plan is the ordered sequence of Levels a full or partial catalog
// produces (GLOSSARY "Wave" builds one Plan per wave).
type Plan struct {
	Levels []Level
}

// CycleError reports the check ids the planner could not layer because
// they participate in one or more cycles (§4.2 step 3, §7 PlanningCycle).
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return "dependency cycle detected among: " + joinIDs(e.Nodes)
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
}

// Compute computes the layered topological order for the given subset of
// checks. checks maps checkId -> CheckSpec; the planner only considers
// dependency tokens whose alternatives are keys of checks (edges pointing
// outside the subset are ignored, which is how the Wave Planner builds
// sub-graphs for forward-run requests — §4.8 step 3).
//
// Tie-break within a level is deterministic ascending check id order, per §4.2 "none specified (set semantics)" and §9's Open
// Question resolution: we document and pick sorted-by-id order.
func Compute(checks map[string]engine.CheckSpec) (Plan, error) {
	// in-degree and dependents, built from OR-expanded edges (§4.2 step 1):
	// an edge exists from every alternative of a token to the dependent.
	inDegree := make(map[string]int, len(checks))
	dependents := make(map[string][]string, len(checks))

	for id := range checks {
		inDegree[id] = 0
	}

	for id, spec := range checks {
		seenParents := make(map[string]bool)
		for _, tok := range spec.DependsOn {
			for _, alt := range tok.Alternatives {
				if _, ok := checks[alt]; !ok {
					continue // dependency outside this subset: not an edge here
				}
				if seenParents[alt] {
					continue // OR-group referencing the same parent twice
				}
				seenParents[alt] = true
				dependents[alt] = append(dependents[alt], id)
				inDegree[id]++
			}
		}
	}

	var plan Plan
	remaining := len(checks)
	inDegreeWork := make(map[string]int, len(inDegree))
	for k, v := range inDegree {
		inDegreeWork[k] = v
	}

	for remaining > 0 {
		var level Level
		for id, deg := range inDegreeWork {
			if deg == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			break // no zero-in-degree nodes left: cycle
		}
		sort.Strings(level)
		plan.Levels = append(plan.Levels, level)

		for _, id := range level {
			delete(inDegreeWork, id)
			remaining--
			for _, dep := range dependents[id] {
				if _, stillPending := inDegreeWork[dep]; stillPending {
					inDegreeWork[dep]--
				}
			}
		}
	}

	if remaining > 0 {
		var cycleNodes []string
		for id := range inDegreeWork {
			cycleNodes = append(cycleNodes, id)
		}
		sort.Strings(cycleNodes)
		return Plan{}, &CycleError{Nodes: cycleNodes}
	}

	return plan, nil
}

// Ancestors returns the transitive dependency closure of checkID within
// checks — used by the Routing Decider to validate goto targets (§4.7
// rule 2: "Target must be a transitive ancestor").
func Ancestors(checks map[string]engine.CheckSpec, checkID string) map[string]bool {
	visited := make(map[string]bool)
	var visit func(string)
	visit = func(id string) {
		spec, ok := checks[id]
		if !ok {
			return
		}
		for _, tok := range spec.DependsOn {
			for _, alt := range tok.Alternatives {
				if !visited[alt] {
					visited[alt] = true
					visit(alt)
				}
			}
		}
	}
	visit(checkID)
	return visited
}

// Descendants returns the transitive dependent closure of checkID within
// checks — used by the Wave Planner to gather dependents filtered by
// event when building a forward-run sub-graph (§4.8 step 3).
func Descendants(checks map[string]engine.CheckSpec, checkID string) map[string]bool {
	dependents := make(map[string][]string, len(checks))
	for id, spec := range checks {
		for _, tok := range spec.DependsOn {
			for _, alt := range tok.Alternatives {
				dependents[alt] = append(dependents[alt], id)
			}
		}
	}

	visited := make(map[string]bool)
	var visit func(string)
	visit = func(id string) {
		for _, dep := range dependents[id] {
			if !visited[dep] {
				visited[dep] = true
				visit(dep)
			}
		}
	}
	visit(checkID)
	return visited
}

// DirectDependencies returns the set of checkIds that appear in any
// alternative of spec.DependsOn's tokens (flattened, ignoring OR
// structure) — used by the Wave Planner to gather the transitive
// dependencies of a forward-run target.
func DirectDependencies(spec engine.CheckSpec) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range spec.DependsOn {
		for _, alt := range tok.Alternatives {
			if !seen[alt] {
				seen[alt] = true
				out = append(out, alt)
			}
		}
	}
	return out
}
