package result

import (
	"testing"

	"github.com/probelabs/visor-sub002/internal/engine"
	"github.com/probelabs/visor-sub002/internal/journal"
)

func TestBuildGroupsByGroupOrID(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"lint-go":  {ID: "lint-go", Group: "lint"},
		"lint-ts":  {ID: "lint-ts", Group: "lint"},
		"security": {ID: "security"},
	}
	j := journal.NewInMemory()
	j.Append(engine.JournalEntry{CheckID: "lint-go", Status: engine.StatusSuccess, OutputValue: "go ok"})
	j.Append(engine.JournalEntry{CheckID: "lint-ts", Status: engine.StatusSuccess, OutputValue: "ts ok"})
	j.Append(engine.JournalEntry{CheckID: "security", Status: engine.StatusSuccess, OutputValue: "clean"})

	res := Build(checks, j)

	lint, ok := res.Groups["lint"]
	if !ok || len(lint.Checks) != 2 {
		t.Fatalf("expected lint group with 2 checks, got %+v", lint)
	}
	out, ok := lint.Output.(map[string]any)
	if !ok || out["lint-go"] != "go ok" || out["lint-ts"] != "ts ok" {
		t.Fatalf("expected combined group output, got %+v", lint.Output)
	}

	sec, ok := res.Groups["security"]
	if !ok || sec.Output != "clean" {
		t.Fatalf("expected security group to default its group to its own id, got %+v", sec)
	}
}

func TestBuildAggregatesForEachOutputAcrossScopes(t *testing.T) {
	checks := map[string]engine.CheckSpec{
		"per-file": {ID: "per-file"},
	}
	j := journal.NewInMemory()
	j.Append(engine.JournalEntry{CheckID: "per-file", Status: engine.StatusSuccess, OutputValue: "a",
		Scope: engine.Scope{{CheckID: "files", ItemIndex: 0}}})
	j.Append(engine.JournalEntry{CheckID: "per-file", Status: engine.StatusSuccess, OutputValue: "b",
		Scope: engine.Scope{{CheckID: "files", ItemIndex: 1}}})

	res := Build(checks, j)
	out, ok := res.Groups["per-file"].Output.([]any)
	if !ok || len(out) != 2 || out[0] != "a" || out[1] != "b" {
		t.Fatalf("expected joined forEach output, got %+v", res.Groups["per-file"].Output)
	}
}

func TestBuildExtractsIssuesFromOutputValue(t *testing.T) {
	checks := map[string]engine.CheckSpec{"review": {ID: "review"}}
	j := journal.NewInMemory()
	j.Append(engine.JournalEntry{CheckID: "review", Status: engine.StatusSuccess, OutputValue: map[string]any{
		"issues": []any{
			map[string]any{"file": "a.go", "line": 10, "severity": "high", "message": "nil deref"},
			map[string]any{"file": "b.go", "line": 2, "severity": "low", "message": "style nit", "suppressed": true},
		},
	}})

	res := Build(checks, j)
	issues := res.Groups["review"].Issues
	if len(issues) != 2 {
		t.Fatalf("expected 2 extracted issues, got %d", len(issues))
	}
	if issues[0].File != "a.go" || issues[0].Line != 10 || issues[0].Severity != "high" {
		t.Fatalf("unexpected first issue: %+v", issues[0])
	}
	if !issues[1].Suppressed {
		t.Fatalf("expected second issue to be marked suppressed")
	}
}

func TestBuildStatisticsBalances(t *testing.T) {
	checks := map[string]engine.CheckSpec{"a": {ID: "a"}, "b": {ID: "b"}}
	j := journal.NewInMemory()
	j.Append(engine.JournalEntry{CheckID: "a", Status: engine.StatusSuccess, DurationMs: 10})
	j.Append(engine.JournalEntry{CheckID: "a", Status: engine.StatusFailed, DurationMs: 5})
	j.Append(engine.JournalEntry{CheckID: "b", Status: engine.StatusSkipped, SkipReason: engine.SkipIfCondition})

	stats := BuildStatistics(checks, j)
	if stats.TotalChecksConfigured != 2 {
		t.Fatalf("expected 2 configured checks, got %d", stats.TotalChecksConfigured)
	}
	if stats.TotalExecutions != 3 || stats.SuccessfulExecutions != 1 || stats.FailedExecutions != 1 || stats.SkippedChecks != 1 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
	if !stats.Balanced() {
		t.Fatalf("expected statistics to balance: %+v", stats)
	}
	if stats.Checks["a"].Total != 2 || stats.Checks["a"].Succeeded != 1 || stats.Checks["a"].Failed != 1 {
		t.Fatalf("unexpected per-check stats for a: %+v", stats.Checks["a"])
	}
}

func TestSuppressorFiltersIssuesButLeavesJournalIntact(t *testing.T) {
	checks := map[string]engine.CheckSpec{"review": {ID: "review"}}
	j := journal.NewInMemory()
	entry := engine.JournalEntry{CheckID: "review", Status: engine.StatusSuccess, OutputValue: map[string]any{
		"issues": []any{
			map[string]any{"severity": "high", "message": "keep"},
			map[string]any{"severity": "low", "message": "drop", "suppressed": true},
		},
	}}
	j.Append(entry)

	res := Build(checks, j)
	filtered := NewSuppressor(true).Filter(res)

	if len(filtered.Groups["review"].Issues) != 1 || filtered.Groups["review"].Issues[0].Message != "keep" {
		t.Fatalf("expected only the unsuppressed issue to remain, got %+v", filtered.Groups["review"].Issues)
	}
	// the journal itself, and the unfiltered Results, still carry both issues.
	if len(res.Groups["review"].Issues) != 2 {
		t.Fatalf("expected unfiltered Results to retain both issues, got %+v", res.Groups["review"].Issues)
	}
	rawIssues := j.Entries()[0].OutputValue.(map[string]any)["issues"].([]any)
	if len(rawIssues) != 2 {
		t.Fatalf("expected journal entry to remain unfiltered, got %+v", rawIssues)
	}
}

func TestSuppressorDisabledIsNoOp(t *testing.T) {
	checks := map[string]engine.CheckSpec{"review": {ID: "review"}}
	j := journal.NewInMemory()
	j.Append(engine.JournalEntry{CheckID: "review", Status: engine.StatusSuccess, OutputValue: map[string]any{
		"issues": []any{map[string]any{"severity": "low", "suppressed": true}},
	}})

	res := Build(checks, j)
	filtered := NewSuppressor(false).Filter(res)
	if len(filtered.Groups["review"].Issues) != 1 {
		t.Fatalf("expected disabled suppressor to pass issues through unchanged")
	}
}
