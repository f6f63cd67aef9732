package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseArgsDefaults(t *testing.T) {
	a := parseArgs([]string{})
	if a.err != nil {
		t.Fatalf("unexpected error: %v", a.err)
	}
	if a.event != "manual" {
		t.Errorf("event = %q, want %q", a.event, "manual")
	}
	if a.format != "text" {
		t.Errorf("format = %q, want %q", a.format, "text")
	}
	if a.prBase != "main" {
		t.Errorf("prBase = %q, want %q", a.prBase, "main")
	}
}

func TestParseArgsAllFlags(t *testing.T) {
	a := parseArgs([]string{
		"--config", "checks.yaml",
		"--event", "pull_request",
		"--format", "json",
		"--pr-number", "42",
		"--pr-title", "Add widget",
		"--pr-files", "a.go,b.go",
		"--ai-provider", "openai",
	})
	if a.err != nil {
		t.Fatalf("unexpected error: %v", a.err)
	}
	if a.configFile != "checks.yaml" || a.event != "pull_request" || a.format != "json" {
		t.Fatalf("unexpected parse: %+v", a)
	}
	if a.prNumber != 42 || a.prTitle != "Add widget" {
		t.Fatalf("unexpected PR fields: %+v", a)
	}
	if a.prFiles != "a.go,b.go" {
		t.Fatalf("prFiles = %q", a.prFiles)
	}
	if a.aiProvider != "openai" {
		t.Fatalf("aiProvider = %q", a.aiProvider)
	}
}

func TestParseArgsRejectsUnknownFlag(t *testing.T) {
	a := parseArgs([]string{"--not-a-flag"})
	if a.err == nil {
		t.Fatal("expected an error for an unrecognized flag")
	}
}

func TestExpandEnvVarsSubstitutesFromEnvironment(t *testing.T) {
	t.Setenv("CHECKCTL_TEST_TOKEN", "s3cr3t")
	out := expandEnvVars([]byte(`token: ${CHECKCTL_TEST_TOKEN}`))
	if string(out) != "token: s3cr3t" {
		t.Fatalf("got %q", out)
	}
}

func TestExpandEnvVarsLeavesUnsetVarsBlank(t *testing.T) {
	out := expandEnvVars([]byte(`token: ${CHECKCTL_DEFINITELY_UNSET}`))
	if string(out) != "token: " {
		t.Fatalf("got %q", out)
	}
}

func TestBuildPRInfoSplitsFileList(t *testing.T) {
	info := buildPRInfo(args{prNumber: 7, prFiles: "x.go,y.go", prBase: "main"})
	if info.Number != 7 || len(info.Files) != 2 || info.Files[0] != "x.go" {
		t.Fatalf("unexpected PRInfo: %+v", info)
	}
}

func TestBuildPRInfoEmptyFilesStaysNil(t *testing.T) {
	info := buildPRInfo(args{})
	if info.Files != nil {
		t.Fatalf("expected nil Files for an empty --pr-files, got %+v", info.Files)
	}
}

func TestBuildChatModelReturnsNilWithoutAPIKey(t *testing.T) {
	os.Unsetenv("OPENAI_API_KEY")
	if m := buildChatModel(args{aiProvider: "openai"}); m != nil {
		t.Fatalf("expected nil chat model without an API key, got %T", m)
	}
}

func TestBuildChatModelResolvesConfiguredProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	if m := buildChatModel(args{aiProvider: "anthropic"}); m == nil {
		t.Fatal("expected a non-nil chat model once the API key is set")
	}
}

// TestRunEndToEndWithInMemoryCatalog exercises run() against a tiny
// catalog of noop checks, mirroring the teacher's runWorkflow end-to-end
// helper test but driving the real CLI entry point and a temp config
// file instead of an in-process graph.
func TestRunEndToEndWithInMemoryCatalog(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "checks.yaml")
	const doc = `
version: 1
checks:
  hello:
    type: noop
`
	if err := os.WriteFile(cfgPath, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	code := run(args{configFile: cfgPath, event: "manual", format: "text", prBase: "main"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

func TestRunReportsNonZeroExitOnMissingConfig(t *testing.T) {
	code := run(args{configFile: filepath.Join(t.TempDir(), "missing.yaml"), format: "text"})
	if code == 0 {
		t.Fatal("expected a non-zero exit code for a missing config file")
	}
}
