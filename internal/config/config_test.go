package config

import "testing"

const sampleDoc = `
version: "1"
checks:
  lint:
    type: command
    config:
      script: "golint ./..."
  review:
    type: ai
    depends_on: ["lint"]
    fail_if:
      - name: hasErrors
        expr: "countIssues('high') > 0"
        severity: high
        halt_execution: true
    on_fail:
      goto: lint
options:
  max_parallelism: 4
  fail_fast: true
`

func TestLoadParsesChecksAndOptions(t *testing.T) {
	res, err := Load([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(res.Checks))
	}
	review, ok := res.Checks["review"]
	if !ok {
		t.Fatal("expected review check present")
	}
	if len(review.DependsOn) != 1 || review.DependsOn[0].Alternatives[0] != "lint" {
		t.Fatalf("unexpected depends_on: %+v", review.DependsOn)
	}
	if len(review.FailIf) != 1 || !review.FailIf[0].HaltExecution {
		t.Fatalf("unexpected fail_if: %+v", review.FailIf)
	}
	if review.OnFail.Goto != "lint" {
		t.Fatalf("unexpected on_fail: %+v", review.OnFail)
	}
	if !res.Options.FailFast || res.Options.MaxParallelism != 4 {
		t.Fatalf("unexpected options: %+v", res.Options)
	}
}

func TestLoadSplitsOrDependencyTokens(t *testing.T) {
	doc := `
version: "1"
checks:
  a:
    type: noop
  b:
    type: noop
  c:
    type: noop
    depends_on: ["a|b"]
`
	res, err := Load([]byte(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tok := res.Checks["c"].DependsOn[0]
	if len(tok.Alternatives) != 2 || !tok.IsOr() {
		t.Fatalf("expected OR token with 2 alternatives, got %+v", tok)
	}
}

func TestLoadRejectsMissingVersion(t *testing.T) {
	_, err := Load([]byte("checks:\n  a:\n    type: noop\n"))
	if err == nil {
		t.Fatal("expected validation error for missing version")
	}
}

func TestLoadWarnsOnUnknownTopLevelKey(t *testing.T) {
	doc := `
version: "1"
checks:
  a:
    type: noop
extra_thing: true
`
	res, err := Load([]byte(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", res.Warnings)
	}
}

func TestLoadStrictRejectsUnknownKeys(t *testing.T) {
	doc := `
version: "1"
checks:
  a:
    type: noop
extra_thing: true
options:
  strict: true
`
	_, err := Load([]byte(doc))
	if err == nil {
		t.Fatal("expected strict-mode error for unknown key")
	}
}
