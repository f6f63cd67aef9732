// Package result implements result shaping (spec §6.5): grouping completed
// checks by CheckSpec.GroupOrID, aggregating forEach output across scopes,
// collecting issues out of check output, and computing the per-check and
// run-wide statistics the engine returns at termination. Suppressor is the
// "dedicated post-processor" §7 requires for suppressed-issue filtering —
// it operates on the shaped Results, never on the journal itself, so raw
// issues stay visible in the journal for audit.
package result

import (
	"sort"
	"time"

	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/expr"
	"github.com/probelabs/visor-sub002/internal/journal"
)

// Issue is one finding extracted from a check's outputValue, by convention
// a map shaped like {file, line, severity, message, ruleId, suppressed}
// under an "issues" key — the same vocabulary expr.Issue exposes to
// hasIssue/countIssues, plus a Suppressed flag Suppressor consumes.
type Issue struct {
	expr.Issue
	Suppressed bool
}

// CheckResult is one check's contribution to its group (§6.5 "each entry
// carries the latest content, aggregated output ..., collected issues, and
// optional debug info").
type CheckResult struct {
	CheckID   string
	Group     string
	Latest    engine.JournalEntry
	Output    any // single OutputValue, or []any when multiple scopes succeeded (forEach fanout)
	Issues    []Issue
	DebugInfo []string
}

// GroupResult is every CheckResult sharing one CheckSpec.group (or a lone
// check defaulting to its own id), plus the group's combined output/issues.
type GroupResult struct {
	Group  string
	Checks []CheckResult
	Output any // Checks[0].Output when the group has one check, else a map keyed by checkId
	Issues []Issue
}

// Results is the full grouped output of one run.
type Results struct {
	Groups map[string]GroupResult
}

// Build groups every configured check's journal history into Results (§6.5).
func Build(checks map[string]engine.CheckSpec, j journal.Journal) Results {
	byCheck := make(map[string][]engine.JournalEntry, len(checks))
	for _, e := range j.Entries() {
		byCheck[e.CheckID] = append(byCheck[e.CheckID], e)
	}

	groups := make(map[string]GroupResult)
	for id, spec := range checks {
		groupID := spec.GroupOrID()
		cr := buildCheckResult(id, groupID, byCheck[id])

		g := groups[groupID]
		g.Group = groupID
		g.Checks = append(g.Checks, cr)
		g.Issues = append(g.Issues, cr.Issues...)
		groups[groupID] = g
	}

	for key, g := range groups {
		sort.Slice(g.Checks, func(i, k int) bool { return g.Checks[i].CheckID < g.Checks[k].CheckID })
		g.Output = groupOutput(g.Checks)
		groups[key] = g
	}
	return Results{Groups: groups}
}

func buildCheckResult(checkID, group string, entries []engine.JournalEntry) CheckResult {
	var successful []engine.JournalEntry
	for _, e := range entries {
		if e.Status == engine.StatusSuccess {
			successful = append(successful, e)
		}
	}

	var latest engine.JournalEntry
	if len(entries) > 0 {
		latest = entries[len(entries)-1]
	}

	var output any
	var issues []Issue
	var debug []string
	for _, e := range entries {
		debug = append(debug, e.DebugInfo...)
	}

	switch len(successful) {
	case 0:
		// no successful run: output stays nil, issues stay empty.
	case 1:
		output = successful[0].OutputValue
		issues = extractIssues(successful[0].OutputValue)
	default:
		joined := make([]any, 0, len(successful))
		for _, e := range successful {
			joined = append(joined, e.OutputValue)
			issues = append(issues, extractIssues(e.OutputValue)...)
		}
		output = joined
	}

	return CheckResult{CheckID: checkID, Group: group, Latest: latest, Output: output, Issues: issues, DebugInfo: debug}
}

func groupOutput(checks []CheckResult) any {
	if len(checks) == 1 {
		return checks[0].Output
	}
	out := make(map[string]any, len(checks))
	for _, c := range checks {
		out[c.CheckID] = c.Output
	}
	return out
}

func extractIssues(v any) []Issue {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := m["issues"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]Issue, 0, len(list))
	for _, item := range list {
		im, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Issue{
			Issue: expr.Issue{
				File:     stringField(im["file"]),
				Line:     intField(im["line"]),
				Severity: stringField(im["severity"]),
				Message:  stringField(im["message"]),
				RuleID:   stringField(im["ruleId"]),
			},
			Suppressed: boolField(im["suppressed"]),
		})
	}
	return out
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

func intField(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func boolField(v any) bool {
	b, _ := v.(bool)
	return b
}

// Statistics is the run-wide execution summary (§6.5).
type Statistics struct {
	TotalChecksConfigured int
	TotalExecutions       int
	SuccessfulExecutions  int
	FailedExecutions      int
	SkippedChecks         int
	TotalDuration         time.Duration
	Checks                map[string]engine.CheckStats
}

// Balanced reports whether every per-check counter and the run-wide totals
// satisfy the §8 invariant total == succeeded+failed+skipped.
func (s Statistics) Balanced() bool {
	if s.TotalExecutions != s.SuccessfulExecutions+s.FailedExecutions+s.SkippedChecks {
		return false
	}
	for _, cs := range s.Checks {
		if !cs.Balance() {
			return false
		}
	}
	return true
}

// BuildStatistics computes per-check and run-wide counters from the
// journal's full entry history.
func BuildStatistics(checks map[string]engine.CheckSpec, j journal.Journal) Statistics {
	stats := Statistics{
		TotalChecksConfigured: len(checks),
		Checks:                make(map[string]engine.CheckStats, len(checks)),
	}

	for _, e := range j.Entries() {
		cs := stats.Checks[e.CheckID]
		cs.Total++
		dur := time.Duration(e.DurationMs) * time.Millisecond
		cs.Duration += dur

		switch e.Status {
		case engine.StatusSuccess:
			cs.Succeeded++
			stats.SuccessfulExecutions++
		case engine.StatusFailed:
			cs.Failed++
			stats.FailedExecutions++
		case engine.StatusSkipped:
			cs.Skipped++
			stats.SkippedChecks++
		}

		stats.Checks[e.CheckID] = cs
		stats.TotalExecutions++
		stats.TotalDuration += dur
	}
	return stats
}

// Suppressor filters suppressed issues out of shaped Results when
// output.suppressionEnabled is set (§7), leaving the journal (and thus
// CheckResult.Latest.OutputValue) untouched for audit.
type Suppressor struct {
	Enabled bool
}

// NewSuppressor constructs a Suppressor from the config-level
// output.suppressionEnabled flag.
func NewSuppressor(enabled bool) Suppressor {
	return Suppressor{Enabled: enabled}
}

// Filter returns Results with every Suppressed issue removed from both
// group- and check-level Issues slices. A no-op when disabled.
func (s Suppressor) Filter(in Results) Results {
	if !s.Enabled {
		return in
	}
	out := Results{Groups: make(map[string]GroupResult, len(in.Groups))}
	for key, g := range in.Groups {
		g.Issues = filterIssues(g.Issues)
		checks := make([]CheckResult, len(g.Checks))
		for i, c := range g.Checks {
			c.Issues = filterIssues(c.Issues)
			checks[i] = c
		}
		g.Checks = checks
		out.Groups[key] = g
	}
	return out
}

func filterIssues(issues []Issue) []Issue {
	if len(issues) == 0 {
		return issues
	}
	out := make([]Issue, 0, len(issues))
	for _, i := range issues {
		if !i.Suppressed {
			out = append(out, i)
		}
	}
	return out
}
