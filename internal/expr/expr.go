package expr

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// Kind distinguishes what shape a compiled expression's result is coerced
// to (§4.3 contract).
type Kind string

// Recognized expression kinds.
const (
	KindPredicate Kind = "predicate" // if / fail_if: coerced to bool
	KindGoto      Kind = "goto"      // gotoJs: coerced to string|nullish
	KindRun       Kind = "run"       // runJs: coerced to []RunDescriptor
)

// RunDescriptor is one decoded element of a runJs result array (mirrors
// engine.RunTarget, kept local so this package has no dependency on
// internal/engine).
type RunDescriptor struct {
	CheckID   string
	ItemIndex *int
}

// Event records one compile or evaluation failure for the debug trace
// (§4.3 "records an evaluation event").
type Event struct {
	Source string
	Err    error
	At     time.Time
}

// Expression is a compiled, reusable program (§4.3 "compile-once").
type Expression struct {
	source  string
	kind    Kind
	program *goja.Program
}

// Compile parses src once. A compile error is not returned to the caller
// as fatal: per §4.3's safe-default contract, callers should prefer
// CompileOrNil and let the zero Expression evaluate to the kind's safe
// default, recording the compile failure as an Event.
func Compile(src string, kind Kind) (*Expression, error) {
	prog, err := goja.Compile("expr.js", wrapExpression(src), false)
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return &Expression{source: src, kind: kind, program: prog}, nil
}

// CompileOrNil compiles src, returning (nil, event) instead of an error so
// callers can fall back to the safe default without special-casing.
func CompileOrNil(src string, kind Kind) (*Expression, *Event) {
	if src == "" {
		return nil, nil
	}
	e, err := Compile(src, kind)
	if err != nil {
		return nil, &Event{Source: src, Err: err}
	}
	return e, nil
}

// wrapExpression turns a bare expression body into a JS program whose
// completion value is the expression's value, matching how guard/fail_if/
// routing strings are authored (a single expression, not a statement list
// with an explicit return).
func wrapExpression(src string) string {
	return "(" + src + ")"
}

// Evaluator runs compiled Expressions against a Context. One Evaluator is
// safe for concurrent use: Eval builds a fresh goja.Runtime per call
// (goja.Runtime is not safe for concurrent use), matching the teacher
// pack's gojaScriptEngine.Execute pattern of "new runtime for isolation".
type Evaluator struct {
	onEvent func(Event)
}

// New constructs an Evaluator. onEvent, if non-nil, receives every compile/
// runtime failure so the runner can attach it to a JournalEntry's
// DebugInfo (§4.3 "records an evaluation event").
func New(onEvent func(Event)) *Evaluator {
	return &Evaluator{onEvent: onEvent}
}

func (ev *Evaluator) record(source string, err error) {
	if ev.onEvent != nil {
		ev.onEvent(Event{Source: source, Err: err, At: time.Now()})
	}
}

// EvalPredicate evaluates expr against ctx for an if/fail_if slot, coerced
// to bool. A nil expr or any compile/runtime error yields defaultVal
// without ever propagating into the caller (§4.3 "never throws into the
// engine loop").
func (ev *Evaluator) EvalPredicate(e *Expression, ctx Context, defaultVal bool) bool {
	if e == nil {
		return defaultVal
	}
	vm := ev.newRuntime(ctx, e.source)
	val, err := vm.RunProgram(e.program)
	if err != nil {
		ev.record(e.source, err)
		return defaultVal
	}
	return val.ToBoolean()
}

// EvalGoto evaluates expr for a gotoJs slot, coerced to string|nullish. An
// empty return means "do not route" (§4.3).
func (ev *Evaluator) EvalGoto(e *Expression, ctx Context) string {
	if e == nil {
		return ""
	}
	vm := ev.newRuntime(ctx, e.source)
	val, err := vm.RunProgram(e.program)
	if err != nil {
		ev.record(e.source, err)
		return ""
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return ""
	}
	return val.String()
}

// EvalRun evaluates expr for a runJs slot, coerced to a list of run
// descriptors. Any failure, or a non-array result, yields an empty slice.
func (ev *Evaluator) EvalRun(e *Expression, ctx Context) []RunDescriptor {
	if e == nil {
		return nil
	}
	vm := ev.newRuntime(ctx, e.source)
	val, err := vm.RunProgram(e.program)
	if err != nil {
		ev.record(e.source, err)
		return nil
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	exported := val.Export()
	items, ok := exported.([]any)
	if !ok {
		ev.record(e.source, fmt.Errorf("runJs result is not an array: %T", exported))
		return nil
	}
	out := make([]RunDescriptor, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, RunDescriptor{CheckID: v})
		case map[string]any:
			d := RunDescriptor{}
			if id, ok := v["check"].(string); ok {
				d.CheckID = id
			} else if id, ok := v["checkId"].(string); ok {
				d.CheckID = id
			}
			if idx, ok := v["itemIndex"].(float64); ok {
				i := int(idx)
				d.ItemIndex = &i
			}
			if d.CheckID != "" {
				out = append(out, d)
			}
		}
	}
	return out
}

// newRuntime builds one isolated goja.Runtime with the fixed vocabulary
// bound in, per §4.3's value/function list.
func (ev *Evaluator) newRuntime(ctx Context, source string) *goja.Runtime {
	vm := goja.New()

	_ = vm.Set("output", ctx.Output)
	_ = vm.Set("outputs", buildOutputsObject(vm, ctx.Outputs, ctx.History))
	_ = vm.Set("metadata", ctx.Metadata)
	_ = vm.Set("env", ctx.Env)
	_ = vm.Set("pr", buildPRObject(ctx.PR))
	_ = vm.Set("memory", buildMemoryObject(vm, ctx.Memory))

	_ = vm.Set("contains", containsHelper)
	_ = vm.Set("startsWith", startsWithHelper)
	_ = vm.Set("endsWith", endsWithHelper)
	_ = vm.Set("length", lengthHelper)
	_ = vm.Set("hasIssue", func(severity string) bool { return hasIssueHelper(ctx.PR, severity) })
	_ = vm.Set("countIssues", func(severity string) int { return countIssuesHelper(ctx.PR, severity) })
	_ = vm.Set("hasFileMatching", func(pattern string) bool { return hasFileMatchingHelper(ctx.PR, pattern) })
	_ = vm.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		ev.record(source, fmt.Errorf("log: %v", args))
		return goja.Undefined()
	})

	_ = vm.Set("isOwner", func() bool { return isOwner(ctx.PR) })
	_ = vm.Set("isMember", func() bool { return isMember(ctx.PR) })
	_ = vm.Set("hasMinPermission", func(level string) bool { return hasMinPermission(ctx.PR, level) })

	return vm
}

func buildOutputsObject(vm *goja.Runtime, outputs map[string]any, history map[string][]any) *goja.Object {
	obj := vm.NewObject()
	for id, v := range outputs {
		_ = obj.Set(id, v)
	}
	historyObj := vm.NewObject()
	for id, hs := range history {
		_ = historyObj.Set(id, hs)
	}
	_ = obj.Set("history", historyObj)
	return obj
}

func buildPRObject(pr PRInfo) map[string]any {
	issues := make([]map[string]any, len(pr.Issues))
	for i, iss := range pr.Issues {
		issues[i] = map[string]any{
			"file": iss.File, "line": iss.Line, "severity": iss.Severity,
			"message": iss.Message, "ruleId": iss.RuleID,
		}
	}
	return map[string]any{
		"number":            pr.Number,
		"title":             pr.Title,
		"author":            pr.Author,
		"baseBranch":        pr.BaseBranch,
		"headBranch":        pr.HeadBranch,
		"files":             pr.Files,
		"issues":            issues,
		"labels":            pr.Labels,
		"authorAssociation": pr.AuthorAssociation,
		"authorPermission":  pr.AuthorPermission,
	}
}

func buildMemoryObject(vm *goja.Runtime, m MemoryView) *goja.Object {
	obj := vm.NewObject()
	if m == nil {
		_ = obj.Set("get", func(string, string) any { return nil })
		_ = obj.Set("has", func(string, string) bool { return false })
		_ = obj.Set("list", func(string) []string { return nil })
		_ = obj.Set("getAll", func(string) map[string]any { return nil })
		return obj
	}
	_ = obj.Set("get", m.Get)
	_ = obj.Set("has", m.Has)
	_ = obj.Set("list", m.List)
	_ = obj.Set("getAll", m.GetAll)
	return obj
}
