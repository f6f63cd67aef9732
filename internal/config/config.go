// Package config loads and validates the run configuration document
// (spec §6.1): schema version, the checks catalog, and run options (read
// from the document's `options` mapping). YAML decoding uses gopkg.in/yaml.v3; struct-tag validation uses
// go-playground/validator/v10, both carried over from the pack's
// configuration-loading convention (jordigilh-kubernaut's go.mod pulls
// both for its own CRD/config validation).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/probelabs/visor-sub002/internal/engine"
)

// RunOptions holds §6.1's recognized run options. They are decoded from
// the document's `options` mapping under the flat keys below; top-level
// keys such as `max_parallelism` or `routing` are not read and are
// reported as unrecognized keys (a warning, or an error under strict).
type RunOptions struct {
	MaxParallelism     int  `yaml:"max_parallelism" validate:"omitempty,min=1"`
	MaxAIConcurrency   int  `yaml:"max_ai_concurrency" validate:"omitempty,min=1"`
	FailFast           bool `yaml:"fail_fast"`
	RoutingMaxLoops    int  `yaml:"routing_max_loops" validate:"omitempty,min=1"`
	MaxWorkflowDepth   int  `yaml:"max_workflow_depth" validate:"omitempty,min=1"`
	SuppressionEnabled bool `yaml:"suppression_enabled"`
	Strict             bool `yaml:"strict"`
}

// rawCheckSpec is the YAML-facing shape of one catalog entry; it is
// decoded then converted into engine.CheckSpec, whose DependsOn/Triggers/
// RoutingDirective fields use richer internal types than plain YAML
// scalars.
type rawCheckSpec struct {
	Type        string         `yaml:"type" validate:"required"`
	DependsOn   []string       `yaml:"depends_on"`
	Triggers    []string       `yaml:"triggers"`
	If          string         `yaml:"if"`
	FailIf      []rawFailIf    `yaml:"fail_if"`
	OnSuccess   rawRouting     `yaml:"on_success"`
	OnFail      rawRouting     `yaml:"on_fail"`
	OnFinish    bool           `yaml:"on_finish"`
	ForEach     bool           `yaml:"for_each"`
	Group       string         `yaml:"group"`
	Config      map[string]any `yaml:"config"`
	Retry       rawRetry       `yaml:"retry"`
	SessionMode string         `yaml:"session_mode" validate:"omitempty,oneof=clone append"`
}

type rawFailIf struct {
	Name          string `yaml:"name" validate:"required"`
	Expr          string `yaml:"expr" validate:"required"`
	Severity      string `yaml:"severity"`
	HaltExecution bool   `yaml:"halt_execution"`
}

type rawRouting struct {
	Goto   string   `yaml:"goto"`
	GotoJS string   `yaml:"goto_js"`
	Run    []string `yaml:"run"`
	RunJS  string   `yaml:"run_js"`
}

type rawRetry struct {
	MaxAttempts int     `yaml:"max_attempts" validate:"omitempty,min=1"`
	BaseDelayMs int     `yaml:"base_delay_ms" validate:"omitempty,min=0"`
	Backoff     float64 `yaml:"backoff" validate:"omitempty,min=1"`
}

// Document is the top-level recognized configuration shape (§6.1).
type Document struct {
	Version string                  `yaml:"version" validate:"required"`
	Checks  map[string]rawCheckSpec `yaml:"checks" validate:"required,dive"`
	Options RunOptions              `yaml:"options"`
}

// ParseResult is the validated, type-converted configuration plus any
// non-fatal warnings (§6.1 "unknown top-level keys emit a warning").
type ParseResult struct {
	Checks   map[string]engine.CheckSpec
	Options  RunOptions
	Warnings []string
}

var validate = validator.New()

// Load parses and validates raw YAML bytes into a ParseResult.
func Load(data []byte) (ParseResult, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ParseResult{}, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate.Struct(doc); err != nil {
		return ParseResult{}, fmt.Errorf("config: validate: %w", err)
	}

	warnings := detectUnknownKeys(data)
	if doc.Options.Strict && len(warnings) > 0 {
		return ParseResult{}, fmt.Errorf("config: unknown top-level keys under strict mode: %v", warnings)
	}

	checks := make(map[string]engine.CheckSpec, len(doc.Checks))
	for id, rc := range doc.Checks {
		checks[id] = toCheckSpec(id, rc)
	}

	return ParseResult{Checks: checks, Options: doc.Options, Warnings: warnings}, nil
}

var knownTopLevelKeys = map[string]bool{
	"version": true, "checks": true, "options": true,
}

func detectUnknownKeys(data []byte) []string {
	var generic map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil
	}
	var warnings []string
	for k := range generic {
		if !knownTopLevelKeys[k] {
			warnings = append(warnings, fmt.Sprintf("unrecognized top-level key %q", k))
		}
	}
	return warnings
}

func toCheckSpec(id string, rc rawCheckSpec) engine.CheckSpec {
	spec := engine.CheckSpec{
		ID:             id,
		Type:           engine.CheckType(rc.Type),
		IfExpr:         rc.If,
		OnFinish:       engine.OnFinishDirective{Enabled: rc.OnFinish},
		ForEach:        rc.ForEach,
		Group:          rc.Group,
		ProviderConfig: rc.Config,
		SessionMode:    engine.SessionMode(rc.SessionMode),
	}

	for _, dep := range rc.DependsOn {
		spec.DependsOn = append(spec.DependsOn, parseDependencyToken(dep))
	}

	if len(rc.Triggers) > 0 {
		spec.Triggers = make(map[string]struct{}, len(rc.Triggers))
		for _, t := range rc.Triggers {
			spec.Triggers[t] = struct{}{}
		}
	}

	for _, f := range rc.FailIf {
		spec.FailIf = append(spec.FailIf, engine.FailIfExpr{
			Name: f.Name, Expr: f.Expr, Severity: f.Severity, HaltExecution: f.HaltExecution,
		})
	}

	spec.OnSuccess = toRoutingDirective(rc.OnSuccess)
	spec.OnFail = toRoutingDirective(rc.OnFail)

	spec.Retry = engine.RetryConfig{
		MaxAttempts: rc.Retry.MaxAttempts,
		BaseDelay:   time.Duration(rc.Retry.BaseDelayMs) * time.Millisecond,
		Backoff:     rc.Retry.Backoff,
	}

	return spec
}

func toRoutingDirective(r rawRouting) engine.RoutingDirective {
	d := engine.RoutingDirective{Goto: r.Goto, GotoJS: r.GotoJS, RunJS: r.RunJS}
	for _, target := range r.Run {
		d.Run = append(d.Run, engine.RunTarget{CheckID: target})
	}
	return d
}

// parseDependencyToken splits an "A|B|C" OR-group into its alternatives;
// a bare "A" becomes a single-alternative token (§3).
func parseDependencyToken(raw string) engine.DependencyToken {
	alternatives := splitOr(raw)
	return engine.DependencyToken{Alternatives: alternatives}
}

func splitOr(raw string) []string {
	var out []string
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == '|' {
			out = append(out, raw[start:i])
			start = i + 1
		}
	}
	out = append(out, raw[start:])
	return out
}
