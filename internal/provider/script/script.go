// Package script implements the "script" check type: runs a sandboxed
// user-provided goja script with the check's dependency results and PR
// context injected, returning its exported result as outputValue. Grounded
// on r3e-network-service_layer's system/tee/script_engine.go
// (gojaScriptEngine.Execute): a fresh goja.Runtime per call, a console
// object capturing log lines, and JSON round-trip coercion of the result.
package script

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"

	"github.com/probelabs/visor-sub002/internal/provider"
)

// Provider executes one script per check invocation in an isolated
// runtime.
type Provider struct{}

// New constructs a script Provider.
func New() *Provider { return &Provider{} }

func (*Provider) Name() string        { return "script" }
func (*Provider) Description() string { return "runs a sandboxed script against dependency outputs" }

// ValidateConfig requires a non-empty "code" string and compiles it
// eagerly so a malformed script fails fast at catalog-load time rather
// than at execution time.
func (*Provider) ValidateConfig(config map[string]any) bool {
	code, ok := config["code"].(string)
	if !ok || code == "" {
		return false
	}
	_, err := goja.Compile("check.js", code, false)
	return err == nil
}

// Execute runs config["code"], binding `input` (dependencyResults),
// `pr`, and `console.log` (captured into the result's "logs" field), and
// exports the script's completion value as outputValue.
func (p *Provider) Execute(ctx context.Context, req provider.Request) (provider.Result, error) {
	code, _ := req.Config["code"].(string)
	if code == "" {
		return provider.Result{}, fmt.Errorf("script: missing code")
	}

	vm := goja.New()
	var logs []string
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		for _, a := range call.Arguments {
			logs = append(logs, a.String())
		}
		return goja.Undefined()
	})
	_ = vm.Set("console", console)
	_ = vm.Set("input", req.DependencyResults)
	_ = vm.Set("pr", req.PR)

	val, err := vm.RunString(code)
	if err != nil {
		return provider.Result{}, fmt.Errorf("script: execute: %w", err)
	}

	var output any
	if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
		exported := val.Export()
		switch v := exported.(type) {
		case map[string]any, []any, string, float64, bool:
			output = v
		default:
			raw, mErr := json.Marshal(exported)
			if mErr == nil {
				_ = json.Unmarshal(raw, &output)
			} else {
				output = exported
			}
		}
	}

	result := map[string]any{"result": output, "logs": logs}
	return provider.Result{OutputValue: result}, nil
}
